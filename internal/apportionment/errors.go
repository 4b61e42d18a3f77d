package apportionment

import "errors"

var (
	// ErrInvalidInput is returned for negative seat totals or vote counts, empty or duplicate party identifiers, and invalid options.
	ErrInvalidInput = errors.New("invalid apportionment input")
	// ErrNoEligibleParties is returned when seats are to be allocated but no party can win one.
	ErrNoEligibleParties = errors.New("no party is eligible for a seat")
)
