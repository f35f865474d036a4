package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fleetops/hardpoint/internal/storage"
	"github.com/fleetops/hardpoint/pkg/core"
)

// GetLauncherByPartNumber looks up launcher master data.
func (b *Backend) GetLauncherByPartNumber(ctx context.Context, pn string) (core.LauncherInfo, error) {
	const op = "memory.GetLauncherByPartNumber"
	if err := storage.ContextError(op, ctx); err != nil {
		return core.LauncherInfo{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	l, ok := b.launchers[pn]
	if !ok {
		return core.LauncherInfo{}, core.NotFound(op, fmt.Errorf("%w: launcher %q", core.ErrNotFound, pn))
	}
	return l, nil
}

// GetWeaponByPartNumber looks up weapon master data.
func (b *Backend) GetWeaponByPartNumber(ctx context.Context, pn string) (core.WeaponInfo, error) {
	const op = "memory.GetWeaponByPartNumber"
	if err := storage.ContextError(op, ctx); err != nil {
		return core.WeaponInfo{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	w, ok := b.weapons[pn]
	if !ok {
		return core.WeaponInfo{}, core.NotFound(op, fmt.Errorf("%w: weapon %q", core.ErrNotFound, pn))
	}
	return w, nil
}

// ListLaunchers returns all launchers ordered by part number.
func (b *Backend) ListLaunchers(ctx context.Context) ([]core.LauncherInfo, error) {
	const op = "memory.ListLaunchers"
	if err := storage.ContextError(op, ctx); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.LauncherInfo, 0, len(b.launchers))
	for _, l := range b.launchers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartNumber < out[j].PartNumber })
	return out, nil
}

// PutLauncher creates or replaces launcher master data.
func (b *Backend) PutLauncher(ctx context.Context, l core.LauncherInfo) error {
	const op = "memory.PutLauncher"
	if err := storage.ContextError(op, ctx); err != nil {
		return err
	}
	if strings.TrimSpace(l.PartNumber) == "" {
		return core.Validation(op, fmt.Errorf("part number is required"))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.launchers[l.PartNumber] = l
	return nil
}

// PutWeapon creates or replaces weapon master data.
func (b *Backend) PutWeapon(ctx context.Context, w core.WeaponInfo) error {
	const op = "memory.PutWeapon"
	if err := storage.ContextError(op, ctx); err != nil {
		return err
	}
	if strings.TrimSpace(w.PartNumber) == "" {
		return core.Validation(op, fmt.Errorf("part number is required"))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.weapons[w.PartNumber] = w
	return nil
}

// HistorySource primitives

// ExplicitLaunches lists missions where pn appears in an explicit loadout record.
func (b *Backend) ExplicitLaunches(ctx context.Context, pn string) ([]storage.ExplicitUse, error) {
	if err := storage.ContextError("memory.ExplicitLaunches", ctx); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []storage.ExplicitUse
	for key, rec := range b.loadouts {
		if rec.LauncherPN != pn || rec.Status == core.StatusEmpty {
			continue
		}
		out = append(out, storage.ExplicitUse{Mission: b.missions[key.missionID], Fired: rec.Status == core.StatusFired})
	}
	return out, nil
}

// LauncherWindows lists launcher installation windows for pn.
func (b *Backend) LauncherWindows(ctx context.Context, pn string) ([]core.InstallationWindow, error) {
	if err := storage.ContextError("memory.LauncherWindows", ctx); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.InstallationWindow
	for _, w := range b.windows {
		if w.Kind == core.KindLauncher && w.PartNumber == pn {
			out = append(out, w)
		}
	}
	return out, nil
}

// MissionsForAircraft lists missions flown by aircraft.
func (b *Backend) MissionsForAircraft(ctx context.Context, aircraft string) ([]core.Mission, error) {
	if err := storage.ContextError("memory.MissionsForAircraft", ctx); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.Mission
	for _, m := range b.missions {
		if m.Aircraft == aircraft {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// HasExplicitLoadouts reports whether the mission has any explicit record.
func (b *Backend) HasExplicitLoadouts(ctx context.Context, missionID uint) (bool, error) {
	if err := storage.ContextError("memory.HasExplicitLoadouts", ctx); err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for key := range b.loadouts {
		if key.missionID == missionID {
			return true, nil
		}
	}
	return false, nil
}
