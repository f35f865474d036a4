package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fleetops/hardpoint/pkg/core"
)

// ValidateLoadout checks a record at the store boundary before it is written.
func ValidateLoadout(op string, rec core.LoadoutRecord) error {
	if rec.MissionID == 0 {
		return core.Validation(op, fmt.Errorf("mission id is required"))
	}
	if !rec.Position.Valid() {
		return core.Validation(op, fmt.Errorf("invalid position %q", rec.Position)).At(rec.MissionID, "")
	}
	if !rec.Status.Valid() {
		return core.Validation(op, fmt.Errorf("invalid status %d", rec.Status)).At(rec.MissionID, rec.Position)
	}
	if rec.LauncherPN == "" && rec.MissilePN != "" {
		return core.Validation(op, core.ErrMissileBeforeLauncher).At(rec.MissionID, rec.Position)
	}
	if rec.Status != core.StatusEmpty && rec.LauncherPN == "" {
		return core.Validation(op, core.ErrLauncherRequired).At(rec.MissionID, rec.Position)
	}
	return nil
}

// ValidateInstallation checks an installation window before it is recorded.
// Overlaps with existing windows are not rejected here: imported registers are kept
// verbatim and overlaps surface as data-integrity errors when read.
func ValidateInstallation(op string, w core.InstallationWindow) error {
	switch {
	case w.Kind != core.KindLauncher && w.Kind != core.KindMissile:
		return core.Validation(op, fmt.Errorf("invalid item kind %q", w.Kind))
	case strings.TrimSpace(w.Aircraft) == "":
		return core.Validation(op, fmt.Errorf("aircraft is required"))
	case strings.TrimSpace(w.PartNumber) == "":
		return core.Validation(op, fmt.Errorf("part number is required"))
	case !w.Position.Valid():
		return core.Validation(op, fmt.Errorf("invalid position %q", w.Position))
	case w.InstalledAt.IsZero():
		return core.Validation(op, fmt.Errorf("installation date is required"))
	case w.RemovedAt != nil && w.RemovedAt.Before(w.InstalledAt):
		return core.Validation(op, fmt.Errorf("removal date precedes installation date"))
	}
	return nil
}

// SelectActive returns the single window among candidates that covers date.
func SelectActive(op string, candidates []core.InstallationWindow, aircraft string, pos core.PositionID, date time.Time) (core.InstallationWindow, bool, error) {
	var found []core.InstallationWindow
	for _, w := range candidates {
		if w.Covers(date) {
			found = append(found, w)
		}
	}
	switch len(found) {
	case 0:
		return core.InstallationWindow{}, false, nil
	case 1:
		return found[0], true, nil
	}
	pns := make([]string, len(found))
	for i, w := range found {
		pns[i] = w.PartNumber
	}
	return core.InstallationWindow{}, false, core.DataIntegrity(op,
		fmt.Errorf("%w: aircraft %s on %s has %s", core.ErrOverlappingIntervals, aircraft, date.Format(core.DateLayout), strings.Join(pns, ", "))).
		At(0, pos)
}

// ContextError converts a cancelled or expired context into a store error.
func ContextError(op string, ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return core.StoreFailure(op, err)
	}
	return nil
}
