package apportionment

import (
	"fmt"
	"math"
	"math/bits"
	"sort"
)

const (
	// Divisors are held in thousandths so quotients compare exactly.
	divisorScale = 1000
	// Thresholds are held in basis points.
	thresholdScale = 10000
	// maxScaled keeps every scaled value exactly representable as a float64.
	maxScaled = 1 << 53
)

// toScaled converts x to an integer number of 1/scale units. It fails when x
// is not finite, is out of range or has a finer resolution than the scale.
func toScaled(x, scale float64) (uint64, bool) {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return 0, false
	}
	v := x * scale
	r := math.Round(v)
	if r > maxScaled || math.Abs(v-r) > 1e-9*math.Max(1, r) {
		return 0, false
	}
	return uint64(r), true
}

type sainteLague struct{}

// New creates an Apportioner implementing the modified Sainte-Laguë method.
func New() Apportioner {
	return &sainteLague{}
}

// AllocateSeats distributes totalSeats among the parties with default options,
// optionally excluding parties below the 4% threshold first.
func AllocateSeats(partyVotes []PartyVotes, totalSeats int, applyThreshold bool) (map[string]Seats, error) {
	opts := DefaultOptions()
	opts.ApplyThreshold = applyThreshold

	result, err := New().Apportion(partyVotes, totalSeats, opts)
	if err != nil {
		return nil, err
	}
	return result.SeatMap(), nil
}

type contender struct {
	index   int
	party   string
	votes   uint64
	scaled  uint64
	divisor float64
	seats   int
}

func (c *contender) quotient() float64 {
	return float64(c.votes) / c.divisor
}

func (s *sainteLague) Apportion(votes []PartyVotes, totalSeats int, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	// Validate guarantees both conversions succeed and the divisor is non-zero.
	firstDivisor, _ := toScaled(opts.FirstDivisor, divisorScale)
	thresholdBP, _ := toScaled(opts.Threshold, thresholdScale)

	totalVotes, err := validateInput(votes, totalSeats)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		TotalSeats:       totalSeats,
		TotalVotes:       totalVotes,
		ThresholdApplied: opts.ApplyThreshold,
	}
	if opts.ApplyThreshold {
		result.MinVotesRequired = float64(totalVotes) * float64(thresholdBP) / thresholdScale
	}

	eligible := make([]bool, len(votes))
	contenders := make([]*contender, 0, len(votes))
	for i, pv := range votes {
		if !isEligible(uint64(pv.Votes), uint64(totalVotes), opts.ApplyThreshold, thresholdBP) {
			continue
		}
		eligible[i] = true
		contenders = append(contenders, &contender{
			index:   i,
			party:   pv.Party,
			votes:   uint64(pv.Votes),
			scaled:  firstDivisor,
			divisor: float64(firstDivisor) / divisorScale,
		})
	}

	if totalSeats > 0 && len(contenders) == 0 {
		return Result{}, fmt.Errorf("%w: %d seats to allocate among %d parties", ErrNoEligibleParties, totalSeats, len(votes))
	}

	// The first contender in this order wins a tie.
	if opts.TieBreak == TieBreakLexicographic {
		sort.SliceStable(contenders, func(i, j int) bool {
			return contenders[i].party < contenders[j].party
		})
	}

	seats := make([]int, len(votes))
	result.Rounds = make([]Round, 0, totalSeats)
	for seat := 1; seat <= totalSeats; seat++ {
		winner := contenders[0]
		var tied []string
		for _, c := range contenders[1:] {
			switch compareQuotients(c, winner) {
			case 1:
				winner = c
				tied = nil
			case 0:
				tied = append(tied, c.party)
			}
		}

		result.Rounds = append(result.Rounds, Round{
			Seat:     seat,
			Party:    winner.party,
			Quotient: winner.quotient(),
			Divisor:  winner.divisor,
			Tied:     tied,
		})

		winner.seats++
		seats[winner.index]++
		next := 2*winner.seats + 1
		winner.scaled = uint64(next) * divisorScale
		winner.divisor = float64(next)
	}

	seatless := seatlessValue(opts)
	result.Allocations = make([]Allocation, len(votes))
	for i, pv := range votes {
		value := SeatsOf(seats[i])
		if seats[i] == 0 {
			value = seatless
		}
		result.Allocations[i] = Allocation{
			Party:    pv.Party,
			Votes:    pv.Votes,
			Seats:    value,
			Eligible: eligible[i],
		}
	}

	return result, nil
}

func validateInput(votes []PartyVotes, totalSeats int) (int64, error) {
	if totalSeats < 0 {
		return 0, fmt.Errorf("%w: total seats must be non-negative, got %d", ErrInvalidInput, totalSeats)
	}

	seen := make(map[string]struct{}, len(votes))
	var total int64
	for _, pv := range votes {
		if pv.Party == "" {
			return 0, fmt.Errorf("%w: party identifier must not be empty", ErrInvalidInput)
		}
		if _, dup := seen[pv.Party]; dup {
			return 0, fmt.Errorf("%w: duplicate party %q", ErrInvalidInput, pv.Party)
		}
		seen[pv.Party] = struct{}{}

		if pv.Votes < 0 {
			return 0, fmt.Errorf("%w: party %q has negative votes %d", ErrInvalidInput, pv.Party, pv.Votes)
		}
		if total > math.MaxInt64-pv.Votes {
			return 0, fmt.Errorf("%w: total votes overflow", ErrInvalidInput)
		}
		total += pv.Votes
	}
	return total, nil
}

// isEligible reports whether a party may win seats. A party without votes never can.
func isEligible(votes, total uint64, applyThreshold bool, thresholdBP uint64) bool {
	if votes == 0 {
		return false
	}
	if !applyThreshold {
		return true
	}
	return mulCmp(votes, thresholdScale, total, thresholdBP) >= 0
}

// compareQuotients compares a.votes/a.divisor with b.votes/b.divisor.
func compareQuotients(a, b *contender) int {
	return mulCmp(a.votes, b.scaled, b.votes, a.scaled)
}

// mulCmp compares a*b with c*d without overflow.
func mulCmp(a, b, c, d uint64) int {
	hi1, lo1 := bits.Mul64(a, b)
	hi2, lo2 := bits.Mul64(c, d)
	switch {
	case hi1 < hi2:
		return -1
	case hi1 > hi2:
		return 1
	case lo1 < lo2:
		return -1
	case lo1 > lo2:
		return 1
	default:
		return 0
	}
}

func seatlessValue(opts Options) Seats {
	switch opts.NoSeats {
	case NoSeatsZero:
		return SeatsOf(0)
	case NoSeatsMarker:
		return NoSeats
	default:
		if opts.ApplyThreshold {
			return SeatsOf(0)
		}
		return NoSeats
	}
}
