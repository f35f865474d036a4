// pkg/core/status.go
package core

import (
	"fmt"
	"strings"
)

// LoadoutStatus is the equipment state of a single hardpoint.
type LoadoutStatus uint8

const (
	StatusEmpty LoadoutStatus = iota
	StatusOnboard
	StatusFired
)

func (s LoadoutStatus) String() string {
	switch s {
	case StatusEmpty:
		return "EMPTY"
	case StatusOnboard:
		return "ONBOARD"
	case StatusFired:
		return "FIRED"
	default:
		return fmt.Sprintf("LoadoutStatus(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the three known states.
func (s LoadoutStatus) Valid() bool {
	return s <= StatusFired
}

// MarshalText encodes the status with its English name.
func (s LoadoutStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid loadout status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts both the English names and the persisted codes.
func (s *LoadoutStatus) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Persisted status codes, as written by the legacy flight-data screens.
const (
	CodeEmpty   = "VUOTO"
	CodeOnboard = "A_BORDO"
	CodeFired   = "SPARATO"
)

// StoreCode returns the persisted representation of s.
func (s LoadoutStatus) StoreCode() string {
	switch s {
	case StatusOnboard:
		return CodeOnboard
	case StatusFired:
		return CodeFired
	default:
		return CodeEmpty
	}
}

// ParseStatus maps a persisted code or English name to a LoadoutStatus.
// Unknown strings are a data-integrity error: the column is free text in legacy data.
func ParseStatus(code string) (LoadoutStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "", CodeEmpty, "EMPTY":
		return StatusEmpty, nil
	case CodeOnboard, "ONBOARD":
		return StatusOnboard, nil
	case CodeFired, "FIRED":
		return StatusFired, nil
	}
	return StatusEmpty, DataIntegrity("ParseStatus", fmt.Errorf("unknown loadout status %q", code))
}

// EncodeStatusSummary renders non-empty positions as "P1:SPARATO; P13:A_BORDO" in station order.
func EncodeStatusSummary(statuses map[PositionID]LoadoutStatus) string {
	parts := make([]string, 0, len(statuses))
	for _, p := range AllPositions {
		s, ok := statuses[p]
		if !ok || s == StatusEmpty {
			continue
		}
		parts = append(parts, string(p)+":"+s.StoreCode())
	}
	return strings.Join(parts, "; ")
}

// DecodeStatusSummary parses the output of EncodeStatusSummary.
func DecodeStatusSummary(summary string) (map[PositionID]LoadoutStatus, error) {
	const op = "DecodeStatusSummary"
	out := make(map[PositionID]LoadoutStatus)
	if strings.TrimSpace(summary) == "" {
		return out, nil
	}
	for _, item := range strings.Split(summary, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		pos, code, ok := strings.Cut(item, ":")
		if !ok {
			return nil, DataIntegrity(op, fmt.Errorf("malformed entry %q", item))
		}
		id := PositionID(strings.TrimSpace(pos))
		if !id.Valid() {
			return nil, DataIntegrity(op, fmt.Errorf("%w: %q", ErrUnmappedCode, pos))
		}
		if _, dup := out[id]; dup {
			return nil, DataIntegrity(op, fmt.Errorf("position %s listed twice", id))
		}
		st, err := ParseStatus(code)
		if err != nil {
			return nil, err
		}
		out[id] = st
	}
	return out, nil
}
