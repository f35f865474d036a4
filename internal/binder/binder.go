// Package binder resolves which launcher and missile occupy each hardpoint of a mission.
//
// Explicit loadout records are authoritative. Missions without any explicit record
// are resolved from the installation and embarkation registers, where a position
// counts as loaded only when both a launcher and a missile are active on the
// mission date. Firing declarations are overlaid last.
package binder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetops/hardpoint/internal/logging"
	"github.com/fleetops/hardpoint/internal/position"
	"github.com/fleetops/hardpoint/internal/storage"
	"github.com/fleetops/hardpoint/pkg/core"
)

// Binder resolves mission loadouts against a mission store.
type Binder struct {
	store  storage.MissionStore
	logger *slog.Logger
}

// New creates a Binder. A nil logger falls back to slog.Default.
func New(store storage.MissionStore, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{store: store, logger: logger}
}

// ResolveLoadout returns exactly one entry per position, P1..P13.
func (b *Binder) ResolveLoadout(ctx context.Context, missionID uint) ([]core.PositionLoadout, error) {
	ctx = logging.WithMission(ctx, missionID)
	out, err := b.resolve(ctx, missionID)
	if err != nil && core.IsKind(err, core.KindDataIntegrity) {
		b.logger.WarnContext(ctx, "loadout data integrity", "error", err)
	}
	return out, err
}

// ResolvePosition resolves a single position of a mission.
func (b *Binder) ResolvePosition(ctx context.Context, missionID uint, pos core.PositionID) (core.PositionLoadout, error) {
	n := pos.Number()
	if n == 0 {
		return core.PositionLoadout{}, core.Validation("binder.ResolvePosition", fmt.Errorf("invalid position %q", pos)).At(missionID, "")
	}
	all, err := b.ResolveLoadout(ctx, missionID)
	if err != nil {
		return core.PositionLoadout{}, err
	}
	return all[n-1], nil
}

func (b *Binder) resolve(ctx context.Context, missionID uint) ([]core.PositionLoadout, error) {
	mission, err := b.store.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	records, err := b.store.GetLoadouts(ctx, missionID)
	if err != nil {
		return nil, err
	}

	var out []core.PositionLoadout
	written := make(map[core.PositionID]time.Time, len(records))
	if len(records) > 0 {
		out, err = fromRecords(missionID, records)
		for _, rec := range records {
			written[rec.Position] = rec.UpdatedAt
		}
	} else {
		out, err = b.fromRegisters(ctx, mission)
	}
	if err != nil {
		return nil, err
	}

	latest, err := b.declarations(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if err := overlay(missionID, out, latest, written); err != nil {
		return nil, err
	}
	return out, nil
}

func fromRecords(missionID uint, records []core.LoadoutRecord) ([]core.PositionLoadout, error) {
	out := emptyLoadout()
	for _, rec := range records {
		n := rec.Position.Number()
		if n == 0 {
			return nil, core.DataIntegrity("binder.ResolveLoadout", fmt.Errorf("stored record has invalid position %q", rec.Position)).At(missionID, "")
		}
		out[n-1] = core.PositionLoadout{
			Position:   rec.Position,
			RawCode:    string(rec.Position),
			LauncherPN: rec.LauncherPN,
			MissilePN:  rec.MissilePN,
			Status:     rec.Status,
			Source:     core.SourceExplicit,
			Version:    rec.Version,
		}
	}
	return out, nil
}

func (b *Binder) fromRegisters(ctx context.Context, m core.Mission) ([]core.PositionLoadout, error) {
	out := emptyLoadout()
	for i, pos := range core.AllPositions {
		launcher, hasLauncher, err := b.store.GetInstalledLauncherAt(ctx, m.Aircraft, pos, m.Date)
		if err != nil {
			return nil, withMission(err, m.ID, pos)
		}
		missile, hasMissile, err := b.store.GetEmbarkedMissileAt(ctx, m.Aircraft, pos, m.Date)
		if err != nil {
			return nil, withMission(err, m.ID, pos)
		}
		// a launcher alone, or a missile alone, is not a loaded position
		if !hasLauncher || !hasMissile {
			continue
		}
		out[i] = core.PositionLoadout{
			Position:   pos,
			RawCode:    launcher.PositionCode,
			LauncherPN: launcher.PartNumber,
			MissilePN:  missile.PartNumber,
			Status:     core.StatusOnboard,
			Source:     core.SourceHistorical,
		}
	}
	return out, nil
}

// declarations maps the mission's firing declarations to canonical positions.
// When several raw codes resolve to one position the most recent declaration wins,
// so a withdrawal recorded under any alias undoes an earlier firing.
func (b *Binder) declarations(ctx context.Context, missionID uint) (map[core.PositionID]core.FiringDeclaration, error) {
	decls, err := b.store.GetFiringDeclarations(ctx, missionID)
	if err != nil {
		return nil, err
	}
	latest := make(map[core.PositionID]core.FiringDeclaration, len(decls))
	for _, d := range decls {
		pos, err := position.ToCanonical(d.PositionCode)
		if err != nil {
			return nil, withMission(err, missionID, "")
		}
		if prev, ok := latest[pos]; ok && prev.DeclaredAt.After(d.DeclaredAt) {
			continue
		}
		latest[pos] = d
	}
	return latest, nil
}

// overlay upgrades loaded positions to FIRED. An explicit record written after a
// declaration already accounts for it: either the firing was carried into the record
// when the mission left its registers, or a later correction superseded it.
func overlay(missionID uint, out []core.PositionLoadout, latest map[core.PositionID]core.FiringDeclaration, written map[core.PositionID]time.Time) error {
	for pos, d := range latest {
		if !d.Fired {
			continue
		}
		if at, ok := written[pos]; ok && !d.DeclaredAt.After(at) {
			continue
		}
		pl := &out[pos.Number()-1]
		switch pl.Status {
		case core.StatusOnboard:
			pl.Status = core.StatusFired
		case core.StatusFired:
		default:
			return core.DataIntegrity("binder.ResolveLoadout",
				fmt.Errorf("firing declared on a position with no loaded missile")).At(missionID, pos)
		}
	}
	return nil
}

func emptyLoadout() []core.PositionLoadout {
	out := make([]core.PositionLoadout, core.PositionCount)
	for i, pos := range core.AllPositions {
		out[i] = core.PositionLoadout{Position: pos, Status: core.StatusEmpty, Source: core.SourceNone}
	}
	return out
}

// ObservedCodes returns the raw codes seen in a resolved loadout, for use as a
// position.Context when writing codes back to the registers.
func ObservedCodes(loadouts []core.PositionLoadout) map[core.PositionID]string {
	observed := make(map[core.PositionID]string)
	for _, pl := range loadouts {
		if pl.Source == core.SourceHistorical && pl.RawCode != "" {
			observed[pl.Position] = pl.RawCode
		}
	}
	return observed
}

func withMission(err error, missionID uint, pos core.PositionID) error {
	if e, ok := err.(*core.Error); ok {
		if e.MissionID == 0 {
			e.MissionID = missionID
		}
		if e.Position == "" {
			e.Position = pos
		}
	}
	return err
}
