// Package model contains the match-result domain values passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Sport is the racquet sport a match was played in.
type Sport string

// Supported sports. The string values are the wire values.
const (
	SportTennis      Sport = "tennis"
	SportTableTennis Sport = "table_tennis"
	SportBadminton   Sport = "badminton"
	SportSquash      Sport = "squash"
	SportPickleball  Sport = "pickleball"
)

// DefaultSport is what a fresh or reset form selects.
const DefaultSport = SportTennis

// Sports lists every supported sport in form order.
func Sports() []Sport {
	return []Sport{SportTennis, SportTableTennis, SportBadminton, SportSquash, SportPickleball}
}

// ParseSport maps a wire value onto a Sport.
func ParseSport(s string) (Sport, error) {
	sport := Sport(strings.TrimSpace(s))
	if !sport.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSport, s)
	}
	return sport, nil
}

// Valid reports whether s is one of the supported sports.
func (s Sport) Valid() bool {
	switch s {
	case SportTennis, SportTableTennis, SportBadminton, SportSquash, SportPickleball:
		return true
	}
	return false
}

// Label is the human readable name, e.g. "table tennis".
func (s Sport) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

func (s Sport) String() string { return string(s) }
