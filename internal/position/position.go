// Package position translates between canonical hardpoint ids (P1..P13) and the
// position codes found in historical installation, embarkation and firing data.
package position

import (
	"fmt"
	"strings"

	"github.com/fleetops/hardpoint/pkg/core"
)

// Scheme selects the code vocabulary FromCanonical produces when no observed code exists.
type Scheme uint8

const (
	// SchemeCanonical emits the P<n> id itself.
	SchemeCanonical Scheme = iota
	// SchemeMnemonic emits the station mnemonic used by the installation registers.
	SchemeMnemonic
)

// Context carries what the caller knows about the codes in use for one mission.
type Context struct {
	Scheme Scheme
	// Observed maps canonical ids to the raw code actually seen in this mission's data.
	Observed map[core.PositionID]string
}

// legacyCodes maps every recognised non-canonical code to exactly one position.
var legacyCodes = map[string]core.PositionID{
	"ADAtre1": core.P1,
	"ADAtre2": core.P2,
	"ADAtre3": core.P3,
	"TIP 1":   core.P1,
	"O/B 3":   core.P2,
	"CTR 5":   core.P3,
	"I/B 7":   core.P4,
	"FWD 9":   core.P5,
	"CL 13":   core.P6,
	"CL 14":   core.P7,
	"REA 12":  core.P8,
	"FWD 10":  core.P9,
	"I/B 8":   core.P10,
	"CTR 6":   core.P11,
	"O/B 4":   core.P12,
	"TIP 2":   core.P13,
}

// stationMnemonics is the default outbound code per position.
var stationMnemonics = [core.PositionCount]string{
	"TIP 1", "O/B 3", "CTR 5", "I/B 7", "FWD 9", "CL 13", "CL 14",
	"REA 12", "FWD 10", "I/B 8", "CTR 6", "O/B 4", "TIP 2",
}

// ToCanonical resolves a raw code to its canonical id.
// Empty and unmapped codes are data-integrity errors; there is no default position.
func ToCanonical(code string) (core.PositionID, error) {
	const op = "position.ToCanonical"
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "", core.DataIntegrity(op, core.ErrEmptyCode)
	}
	if id := core.PositionID(trimmed); id.Valid() {
		return id, nil
	}
	if id, ok := legacyCodes[trimmed]; ok {
		return id, nil
	}
	return "", core.DataIntegrity(op, fmt.Errorf("%w: %q", core.ErrUnmappedCode, code))
}

// FromCanonical returns the code to use for id when writing back to a code-keyed source.
func FromCanonical(id core.PositionID, ctx Context) (string, error) {
	n := id.Number()
	if n == 0 {
		return "", core.Validation("position.FromCanonical", fmt.Errorf("invalid position %q", id))
	}
	if raw, ok := ctx.Observed[id]; ok && raw != "" {
		return raw, nil
	}
	if ctx.Scheme == SchemeMnemonic {
		return stationMnemonics[n-1], nil
	}
	return string(id), nil
}

// Parse validates a caller-supplied canonical id. Unlike ToCanonical it does not accept
// legacy codes, and failures are validation errors because the input came from a user.
func Parse(s string) (core.PositionID, error) {
	id := core.PositionID(strings.ToUpper(strings.TrimSpace(s)))
	if !id.Valid() {
		return "", core.Validation("position.Parse", fmt.Errorf("invalid position %q, expected P1..P13", s))
	}
	return id, nil
}

// IsKnown reports whether code would resolve without error.
func IsKnown(code string) bool {
	_, err := ToCanonical(code)
	return err == nil
}
