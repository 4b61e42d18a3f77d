// Package apportionment distributes a fixed number of seats among parties with
// the modified Sainte-Laguë method used for Swedish European Parliament
// elections. Each party's votes are first divided by 1.2; the highest quotient
// wins a seat and the winner's votes are then divided by 2k+1, where k is the
// number of seats it holds. Parties below 4% of all votes can optionally be
// excluded before the first seat is awarded.
//
// Ties between equal quotients are resolved deterministically, by input order
// or by party identifier, and every tie is reported in the round trace.
package apportionment
