// pkg/core/position.go
package core

import "strconv"

// PositionID is a canonical hardpoint identifier, P1 through P13.
type PositionID string

// PositionCount is the number of hardpoints on an airframe.
const PositionCount = 13

const (
	P1  PositionID = "P1"
	P2  PositionID = "P2"
	P3  PositionID = "P3"
	P4  PositionID = "P4"
	P5  PositionID = "P5"
	P6  PositionID = "P6"
	P7  PositionID = "P7"
	P8  PositionID = "P8"
	P9  PositionID = "P9"
	P10 PositionID = "P10"
	P11 PositionID = "P11"
	P12 PositionID = "P12"
	P13 PositionID = "P13"
)

// AllPositions lists every canonical position in station order.
var AllPositions = []PositionID{P1, P2, P3, P4, P5, P6, P7, P8, P9, P10, P11, P12, P13}

// Number returns the station number of the position, or 0 if the id is not canonical.
func (p PositionID) Number() int {
	s := string(p)
	if len(s) < 2 || len(s) > 3 || s[0] != 'P' {
		return 0
	}
	// reject leading zeros such as P01
	if s[1] == '0' {
		return 0
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 1 || n > PositionCount {
		return 0
	}
	return n
}

// Valid reports whether p is one of P1..P13.
func (p PositionID) Valid() bool {
	return p.Number() != 0
}

// PositionFromNumber builds the canonical id for station n.
func PositionFromNumber(n int) (PositionID, bool) {
	if n < 1 || n > PositionCount {
		return "", false
	}
	return AllPositions[n-1], true
}
