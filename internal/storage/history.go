package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/fleetops/hardpoint/internal/position"
	"github.com/fleetops/hardpoint/pkg/core"
)

// ExplicitUse is a mission where a launcher appears in an explicit loadout record.
type ExplicitUse struct {
	Mission core.Mission
	Fired   bool
}

// HistorySource is the set of primitive reads a backend exposes so that launcher
// history is derived identically by every implementation.
type HistorySource interface {
	ExplicitLaunches(ctx context.Context, partNumber string) ([]ExplicitUse, error)
	LauncherWindows(ctx context.Context, partNumber string) ([]core.InstallationWindow, error)
	MissionsForAircraft(ctx context.Context, aircraft string) ([]core.Mission, error)
	HasExplicitLoadouts(ctx context.Context, missionID uint) (bool, error)
	GetInstalledLauncherAt(ctx context.Context, aircraft string, pos core.PositionID, date time.Time) (core.InstallationWindow, bool, error)
	GetEmbarkedMissileAt(ctx context.Context, aircraft string, pos core.PositionID, date time.Time) (core.InstallationWindow, bool, error)
	GetFiringDeclarations(ctx context.Context, missionID uint) ([]core.FiringDeclaration, error)
}

// BuildLauncherHistory lists the missions in which partNumber occupies a resolved loadout.
// Explicit loadout records are authoritative for their mission; missions without any
// explicit record count only where the launcher window and a missile embarkation at the
// same position both cover the mission date. Overlapping launcher windows at that
// position fail with a data-integrity error. Entries are most recent first.
func BuildLauncherHistory(ctx context.Context, src HistorySource, partNumber string) ([]core.MissionHistoryEntry, error) {
	entries := make(map[uint]*core.MissionHistoryEntry)
	add := func(m core.Mission, fired bool) {
		if e, ok := entries[m.ID]; ok {
			e.Fired = e.Fired || fired
			return
		}
		entries[m.ID] = &core.MissionHistoryEntry{
			MissionID:   m.ID,
			Date:        m.Date,
			Aircraft:    m.Aircraft,
			FlightHours: m.FlightHours(),
			Fired:       fired,
		}
	}

	uses, err := src.ExplicitLaunches(ctx, partNumber)
	if err != nil {
		return nil, err
	}
	for _, u := range uses {
		add(u.Mission, u.Fired)
	}

	windows, err := src.LauncherWindows(ctx, partNumber)
	if err != nil {
		return nil, err
	}

	missionsByAircraft := make(map[string][]core.Mission)
	explicit := make(map[uint]bool)
	for _, w := range windows {
		missions, ok := missionsByAircraft[w.Aircraft]
		if !ok {
			missions, err = src.MissionsForAircraft(ctx, w.Aircraft)
			if err != nil {
				return nil, err
			}
			missionsByAircraft[w.Aircraft] = missions
		}

		for _, m := range missions {
			if !w.Covers(m.Date) {
				continue
			}
			isExplicit, seen := explicit[m.ID]
			if !seen {
				isExplicit, err = src.HasExplicitLoadouts(ctx, m.ID)
				if err != nil {
					return nil, err
				}
				explicit[m.ID] = isExplicit
			}
			if isExplicit {
				continue
			}

			// the active launcher is resolved over every window at the position
			active, installed, err := src.GetInstalledLauncherAt(ctx, w.Aircraft, w.Position, m.Date)
			if err != nil {
				return nil, atMission(err, m.ID, w.Position)
			}
			if !installed || active.PartNumber != partNumber {
				continue
			}
			_, loaded, err := src.GetEmbarkedMissileAt(ctx, w.Aircraft, w.Position, m.Date)
			if err != nil {
				return nil, atMission(err, m.ID, w.Position)
			}
			if !loaded {
				continue
			}

			fired, err := declaredFired(ctx, src, m.ID, w.Position)
			if err != nil {
				return nil, err
			}
			add(m, fired)
		}
	}

	out := make([]core.MissionHistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].MissionID > out[j].MissionID
	})
	return out, nil
}

// declaredFired reports the latest declaration for pos, whichever alias it was made under.
func declaredFired(ctx context.Context, src HistorySource, missionID uint, pos core.PositionID) (bool, error) {
	decls, err := src.GetFiringDeclarations(ctx, missionID)
	if err != nil {
		return false, err
	}
	var latest *core.FiringDeclaration
	for i, d := range decls {
		id, err := position.ToCanonical(d.PositionCode)
		if err != nil {
			return false, atMission(err, missionID, "")
		}
		if id != pos {
			continue
		}
		if latest == nil || d.DeclaredAt.After(latest.DeclaredAt) {
			latest = &decls[i]
		}
	}
	return latest != nil && latest.Fired, nil
}

func atMission(err error, missionID uint, pos core.PositionID) error {
	var e *core.Error
	if errors.As(err, &e) && e.MissionID == 0 {
		e.MissionID = missionID
		if e.Position == "" {
			e.Position = pos
		}
	}
	return err
}
