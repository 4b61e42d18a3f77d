package apportionment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const (
	// DefaultThreshold is the minimum share of all votes a party needs to take part in the allocation.
	DefaultThreshold = 0.04
	// DefaultFirstDivisor is the divisor applied to a party that has not won a seat yet.
	DefaultFirstDivisor = 1.2

	noSeatsMarker = "no seats"
)

// PartyVotes is the vote count received by a single party.
type PartyVotes struct {
	Party string
	Votes int64
}

// Seats is either a seat count or an explicit "received no seats" marker.
type Seats struct {
	n    int
	none bool
}

// NoSeats marks a party that received no seats.
var NoSeats = Seats{none: true}

// SeatsOf returns a seat count of n.
func SeatsOf(n int) Seats {
	return Seats{n: n}
}

// Count returns the number of seats. The marker counts as zero.
func (s Seats) Count() int {
	if s.none {
		return 0
	}
	return s.n
}

// IsNone reports whether s is the NoSeats marker.
func (s Seats) IsNone() bool {
	return s.none
}

func (s Seats) String() string {
	if s.none {
		return noSeatsMarker
	}
	return fmt.Sprintf("%d", s.n)
}

// MarshalJSON encodes a count as a number and the marker as the string "no seats".
func (s Seats) MarshalJSON() ([]byte, error) {
	if s.none {
		return json.Marshal(noSeatsMarker)
	}
	return json.Marshal(s.n)
}

// UnmarshalJSON accepts either a number or the "no seats" marker.
func (s *Seats) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var marker string
		if err := json.Unmarshal(data, &marker); err != nil {
			return err
		}
		if marker != noSeatsMarker {
			return fmt.Errorf("unknown seats marker %q", marker)
		}
		*s = NoSeats
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = SeatsOf(n)
	return nil
}

// Allocation is the outcome for one party.
type Allocation struct {
	Party    string
	Votes    int64
	Seats    Seats
	Eligible bool
}

// Round records the award of a single seat.
type Round struct {
	Seat     int
	Party    string
	Quotient float64
	Divisor  float64
	// Tied lists the other parties whose quotient equalled the winner's.
	Tied []string
}

// Result is the full outcome of an apportionment run.
// Allocations follow the order of the input.
type Result struct {
	TotalSeats       int
	TotalVotes       int64
	MinVotesRequired float64
	ThresholdApplied bool
	Allocations      []Allocation
	Rounds           []Round
}

// SeatMap returns the seats keyed by party.
func (r Result) SeatMap() map[string]Seats {
	out := make(map[string]Seats, len(r.Allocations))
	for _, a := range r.Allocations {
		out[a.Party] = a.Seats
	}
	return out
}

// SeatCount returns the number of seats won by party, or zero if it is unknown.
func (r Result) SeatCount(party string) int {
	for _, a := range r.Allocations {
		if a.Party == party {
			return a.Seats.Count()
		}
	}
	return 0
}

// AwardedSeats returns the sum of all seat counts.
func (r Result) AwardedSeats() int {
	total := 0
	for _, a := range r.Allocations {
		total += a.Seats.Count()
	}
	return total
}

// TieBreak selects the winner among parties with equal quotients.
type TieBreak int

const (
	// TieBreakInputOrder awards the seat to the party listed first in the input.
	TieBreakInputOrder TieBreak = iota
	// TieBreakLexicographic awards the seat to the party with the smallest identifier.
	TieBreakLexicographic
)

func (t TieBreak) String() string {
	switch t {
	case TieBreakInputOrder:
		return "input-order"
	case TieBreakLexicographic:
		return "lexicographic"
	default:
		return fmt.Sprintf("TieBreak(%d)", int(t))
	}
}

// ParseTieBreak parses "input-order" or "lexicographic".
func ParseTieBreak(raw string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "input-order", "input":
		return TieBreakInputOrder, nil
	case "lexicographic", "name":
		return TieBreakLexicographic, nil
	default:
		return 0, fmt.Errorf("%w: unknown tie break %q", ErrInvalidInput, raw)
	}
}

// NoSeatsStyle controls how seatless parties are reported.
type NoSeatsStyle int

const (
	// NoSeatsAuto reports zero when the threshold is applied and the marker otherwise.
	NoSeatsAuto NoSeatsStyle = iota
	// NoSeatsZero always reports a seat count of zero.
	NoSeatsZero
	// NoSeatsMarker always reports the NoSeats marker.
	NoSeatsMarker
)

func (s NoSeatsStyle) String() string {
	switch s {
	case NoSeatsAuto:
		return "auto"
	case NoSeatsZero:
		return "zero"
	case NoSeatsMarker:
		return "marker"
	default:
		return fmt.Sprintf("NoSeatsStyle(%d)", int(s))
	}
}

// ParseNoSeatsStyle parses "auto", "zero" or "marker".
func ParseNoSeatsStyle(raw string) (NoSeatsStyle, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return NoSeatsAuto, nil
	case "zero":
		return NoSeatsZero, nil
	case "marker":
		return NoSeatsMarker, nil
	default:
		return 0, fmt.Errorf("%w: unknown no-seats style %q", ErrInvalidInput, raw)
	}
}

// Options parameterises a run.
type Options struct {
	ApplyThreshold bool
	// Threshold is a fraction of the total votes, e.g. 0.04.
	Threshold    float64
	FirstDivisor float64
	TieBreak     TieBreak
	NoSeats      NoSeatsStyle
}

// DefaultOptions returns the Swedish European Parliament settings without the threshold.
func DefaultOptions() Options {
	return Options{
		Threshold:    DefaultThreshold,
		FirstDivisor: DefaultFirstDivisor,
		TieBreak:     TieBreakInputOrder,
		NoSeats:      NoSeatsAuto,
	}
}

// Validate checks that the options describe a runnable configuration.
func (o Options) Validate() error {
	if math.IsNaN(o.Threshold) || o.Threshold < 0 || o.Threshold >= 1 {
		return fmt.Errorf("%w: threshold must be in [0, 1), got %v", ErrInvalidInput, o.Threshold)
	}
	if _, ok := toScaled(o.Threshold, thresholdScale); !ok {
		return fmt.Errorf("%w: threshold %v must be a whole number of basis points", ErrInvalidInput, o.Threshold)
	}
	if math.IsNaN(o.FirstDivisor) || o.FirstDivisor <= 0 {
		return fmt.Errorf("%w: first divisor must be positive, got %v", ErrInvalidInput, o.FirstDivisor)
	}
	if _, ok := toScaled(o.FirstDivisor, divisorScale); !ok {
		return fmt.Errorf("%w: first divisor %v must be a multiple of 0.001", ErrInvalidInput, o.FirstDivisor)
	}
	if o.TieBreak != TieBreakInputOrder && o.TieBreak != TieBreakLexicographic {
		return fmt.Errorf("%w: unknown tie break %d", ErrInvalidInput, int(o.TieBreak))
	}
	if o.NoSeats < NoSeatsAuto || o.NoSeats > NoSeatsMarker {
		return fmt.Errorf("%w: unknown no-seats style %d", ErrInvalidInput, int(o.NoSeats))
	}
	return nil
}

// Apportioner describes the behaviour required from a seat allocation method.
type Apportioner interface {
	Apportion(votes []PartyVotes, totalSeats int, opts Options) (Result, error)
}
