// Package loadout holds the hardpoint equipment state machine and the service that
// commits its transitions through the mission store.
package loadout

import (
	"fmt"
	"strings"

	"github.com/fleetops/hardpoint/pkg/core"
)

// Event is an operator or administrative action on a position.
type Event uint8

const (
	EvAssign Event = iota + 1
	EvFire
	EvCorrect
)

func (e Event) String() string {
	switch e {
	case EvAssign:
		return "assign"
	case EvFire:
		return "fire"
	case EvCorrect:
		return "correct"
	default:
		return "unknown"
	}
}

// Outcome tells the caller whether a transition changed anything.
type Outcome uint8

const (
	// Applied: the record changed and must be persisted.
	Applied Outcome = iota
	// NothingToDo: the action is a no-op for the current state (e.g. firing an empty position).
	NothingToDo
	// AlreadyFired: firing a position that is already FIRED.
	AlreadyFired
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case NothingToDo:
		return "nothing to do"
	case AlreadyFired:
		return "already fired"
	default:
		return "unknown"
	}
}

// Result is the record after a transition together with its outcome.
type Result struct {
	Record  core.LoadoutRecord
	Outcome Outcome
}

// Transition is one allowed edge of the state machine.
type Transition struct {
	From  core.LoadoutStatus
	Event Event
	To    core.LoadoutStatus
}

var transitionsTable = []Transition{
	{From: core.StatusEmpty, Event: EvAssign, To: core.StatusOnboard},
	{From: core.StatusOnboard, Event: EvAssign, To: core.StatusOnboard},
	{From: core.StatusOnboard, Event: EvFire, To: core.StatusFired},

	// Administrative corrections
	{From: core.StatusFired, Event: EvCorrect, To: core.StatusOnboard},
	{From: core.StatusFired, Event: EvCorrect, To: core.StatusEmpty},
	{From: core.StatusOnboard, Event: EvCorrect, To: core.StatusEmpty},
}

// Allowed reports whether the table has an edge from -> to for ev.
func Allowed(from core.LoadoutStatus, ev Event, to core.LoadoutStatus) bool {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev && tr.To == to {
			return true
		}
	}
	return false
}

// AssignRequest is the equipment an operator wants at a position.
type AssignRequest struct {
	LauncherPN string
	MissilePN  string
	// Overwrite confirms replacing equipment already configured at the position.
	Overwrite bool
}

// Validate checks the request without looking at any position: a launcher is
// required, and a missile never comes before its launcher.
func (r AssignRequest) Validate() error {
	launcher := strings.TrimSpace(r.LauncherPN)
	switch {
	case launcher == "" && strings.TrimSpace(r.MissilePN) != "":
		return core.ErrMissileBeforeLauncher
	case launcher == "":
		return core.ErrLauncherRequired
	}
	return nil
}

// Assign moves a position to ONBOARD with the requested equipment.
func Assign(rec core.LoadoutRecord, req AssignRequest) (Result, error) {
	const op = "loadout.Assign"
	if err := req.Validate(); err != nil {
		return Result{Record: rec}, core.Validation(op, err).At(rec.MissionID, rec.Position)
	}
	launcher := strings.TrimSpace(req.LauncherPN)
	missile := strings.TrimSpace(req.MissilePN)

	switch rec.Status {
	case core.StatusFired:
		return Result{Record: rec}, core.Conflict(op, core.ErrAlreadyFired).At(rec.MissionID, rec.Position)
	case core.StatusOnboard:
		if rec.LauncherPN == launcher && rec.MissilePN == missile {
			return Result{Record: rec, Outcome: NothingToDo}, nil
		}
		// completing a launcher-only configuration with its first missile is not an overwrite
		completing := rec.LauncherPN == launcher && rec.MissilePN == ""
		if !completing && !req.Overwrite {
			return Result{Record: rec}, core.Conflict(op, core.ErrPositionConfigured).At(rec.MissionID, rec.Position)
		}
	}

	if !Allowed(rec.Status, EvAssign, core.StatusOnboard) {
		return Result{Record: rec}, illegal(op, rec, EvAssign, core.StatusOnboard)
	}

	next := rec
	next.LauncherPN = launcher
	next.MissilePN = missile
	next.Status = core.StatusOnboard
	if err := Check(next); err != nil {
		return Result{Record: rec}, err
	}
	return Result{Record: next, Outcome: Applied}, nil
}

// Fire declares the missile at an ONBOARD position fired.
// Firing an EMPTY position reports NothingToDo rather than an error.
func Fire(rec core.LoadoutRecord) (Result, error) {
	switch rec.Status {
	case core.StatusEmpty:
		return Result{Record: rec, Outcome: NothingToDo}, nil
	case core.StatusFired:
		return Result{Record: rec, Outcome: AlreadyFired}, nil
	}

	next := rec
	next.Status = core.StatusFired
	if err := Check(next); err != nil {
		return Result{Record: rec}, err
	}
	return Result{Record: next, Outcome: Applied}, nil
}

// Correct is the administrative path that may undo a firing or clear a position.
// A reason is mandatory so corrections are never a casual action.
func Correct(rec core.LoadoutRecord, to core.LoadoutStatus, reason string) (Result, error) {
	const op = "loadout.Correct"
	if strings.TrimSpace(reason) == "" {
		return Result{Record: rec}, core.Validation(op, fmt.Errorf("a correction reason is required")).At(rec.MissionID, rec.Position)
	}
	if rec.Status == to {
		return Result{Record: rec, Outcome: NothingToDo}, nil
	}
	if !Allowed(rec.Status, EvCorrect, to) {
		return Result{Record: rec}, illegal(op, rec, EvCorrect, to)
	}

	next := rec
	next.Status = to
	if to == core.StatusEmpty {
		next.LauncherPN = ""
		next.MissilePN = ""
	}
	if err := Check(next); err != nil {
		return Result{Record: rec}, err
	}
	return Result{Record: next, Outcome: Applied}, nil
}

// Check enforces the record invariants.
func Check(rec core.LoadoutRecord) error {
	const op = "loadout.Check"
	if !rec.Status.Valid() {
		return core.DataIntegrity(op, fmt.Errorf("invalid status %d", rec.Status)).At(rec.MissionID, rec.Position)
	}
	if !rec.Position.Valid() {
		return core.Validation(op, fmt.Errorf("invalid position %q", rec.Position)).At(rec.MissionID, rec.Position)
	}
	if rec.LauncherPN == "" && rec.MissilePN != "" {
		return core.Validation(op, core.ErrMissileBeforeLauncher).At(rec.MissionID, rec.Position)
	}
	if rec.Status != core.StatusEmpty && rec.LauncherPN == "" {
		return core.Validation(op, core.ErrLauncherRequired).At(rec.MissionID, rec.Position)
	}
	return nil
}

func illegal(op string, rec core.LoadoutRecord, ev Event, to core.LoadoutStatus) error {
	return core.Validation(op, fmt.Errorf("%w: %s from %s to %s", core.ErrIllegalTransition, ev, rec.Status, to)).
		At(rec.MissionID, rec.Position)
}
