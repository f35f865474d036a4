// pkg/core/errors.go
package core

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error crossing the engine/collaborator boundary.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation: caller input violates a precondition; correct and retry.
	KindValidation
	// KindConflict: duplicate flight number, stale version, position already configured.
	KindConflict
	// KindDataIntegrity: upstream data is corrupt or unexpected (unmapped codes, overlapping windows).
	KindDataIntegrity
	// KindNotFound: referenced mission, launcher or weapon does not exist.
	KindNotFound
	// KindStore: persistence failure not anticipated above.
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindDataIntegrity:
		return "data integrity"
	case KindNotFound:
		return "not found"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Sentinel causes. Match with errors.Is.
var (
	ErrLauncherRequired      = errors.New("launcher is required")
	ErrMissileBeforeLauncher = errors.New("a launcher must be selected before a missile")
	ErrPositionConfigured    = errors.New("position already configured")
	ErrPositionNotEditable   = errors.New("position is not configurable in this workflow")
	ErrAlreadyFired          = errors.New("missile already fired at this position")
	ErrIllegalTransition     = errors.New("illegal loadout transition")
	ErrDuplicateFlightNumber = errors.New("flight number already exists for aircraft")
	ErrStaleVersion          = errors.New("loadout was modified concurrently")
	ErrEmptyCode             = errors.New("empty position code")
	ErrUnmappedCode          = errors.New("unmapped position code")
	ErrOverlappingIntervals  = errors.New("overlapping installation intervals")
	ErrNotFound              = errors.New("not found")
)

// Error is the typed error returned by every engine operation.
type Error struct {
	Kind      Kind
	Op        string
	MissionID uint
	Position  PositionID
	Err       error
}

// NewError builds an Error of the given kind for operation op.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error whose cause is a formatted message. %w verbs are honoured.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// At attaches mission/position context and returns the same error.
func (e *Error) At(missionID uint, pos PositionID) *Error {
	e.MissionID = missionID
	e.Position = pos
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.MissionID != 0 {
		fmt.Fprintf(&b, " (mission %d", e.MissionID)
		if e.Position != "" {
			fmt.Fprintf(&b, ", position %s", e.Position)
		}
		b.WriteByte(')')
	} else if e.Position != "" {
		fmt.Fprintf(&b, " (position %s)", e.Position)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Convenience constructors used across packages.

func Validation(op string, err error) *Error    { return NewError(KindValidation, op, err) }
func Conflict(op string, err error) *Error      { return NewError(KindConflict, op, err) }
func DataIntegrity(op string, err error) *Error { return NewError(KindDataIntegrity, op, err) }
func NotFound(op string, err error) *Error      { return NewError(KindNotFound, op, err) }
func StoreFailure(op string, err error) *Error  { return NewError(KindStore, op, err) }
