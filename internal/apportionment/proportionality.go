package apportionment

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// Disproportionality returns the Gallagher least-squares index of the result
// in percentage points: sqrt(1/2 * sum((vote% - seat%)^2)) over all parties.
// It is zero when no votes were cast or no seats were awarded.
func Disproportionality(r Result) (float64, error) {
	awarded := r.AwardedSeats()
	if r.TotalVotes == 0 || awarded == 0 {
		return 0, nil
	}

	squares := make(stats.Float64Data, 0, len(r.Allocations))
	for _, a := range r.Allocations {
		voteShare := 100 * float64(a.Votes) / float64(r.TotalVotes)
		seatShare := 100 * float64(a.Seats.Count()) / float64(awarded)
		diff := voteShare - seatShare
		squares = append(squares, diff*diff)
	}

	sum, err := stats.Sum(squares)
	if err != nil {
		return 0, fmt.Errorf("sum squared share differences: %w", err)
	}
	return math.Sqrt(sum / 2), nil
}
