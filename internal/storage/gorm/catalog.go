package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fleetops/hardpoint/internal/model"
	"github.com/fleetops/hardpoint/internal/model/convert"
	"github.com/fleetops/hardpoint/internal/storage"
	"github.com/fleetops/hardpoint/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetLauncherByPartNumber returns launcher master data.
func (b *Backend) GetLauncherByPartNumber(ctx context.Context, pn string) (core.LauncherInfo, error) {
	const op = "gorm.GetLauncherByPartNumber"
	var row model.Launcher
	if err := b.db.WithContext(ctx).First(&row, "part_number = ?", pn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.LauncherInfo{}, core.NotFound(op, fmt.Errorf("%w: launcher %s", core.ErrNotFound, pn))
		}
		return core.LauncherInfo{}, storeErr(op, err)
	}
	return convert.LauncherToCore(row), nil
}

// GetWeaponByPartNumber returns missile master data.
func (b *Backend) GetWeaponByPartNumber(ctx context.Context, pn string) (core.WeaponInfo, error) {
	const op = "gorm.GetWeaponByPartNumber"
	var row model.Weapon
	if err := b.db.WithContext(ctx).First(&row, "part_number = ?", pn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.WeaponInfo{}, core.NotFound(op, fmt.Errorf("%w: weapon %s", core.ErrNotFound, pn))
		}
		return core.WeaponInfo{}, storeErr(op, err)
	}
	return convert.WeaponToCore(row), nil
}

// ListLaunchers returns all launchers ordered by part number.
func (b *Backend) ListLaunchers(ctx context.Context) ([]core.LauncherInfo, error) {
	var rows []model.Launcher
	if err := b.db.WithContext(ctx).Order("part_number").Find(&rows).Error; err != nil {
		return nil, storeErr("gorm.ListLaunchers", err)
	}
	out := make([]core.LauncherInfo, len(rows))
	for i, r := range rows {
		out[i] = convert.LauncherToCore(r)
	}
	return out, nil
}

// PutLauncher inserts or replaces launcher master data.
func (b *Backend) PutLauncher(ctx context.Context, l core.LauncherInfo) error {
	const op = "gorm.PutLauncher"
	if strings.TrimSpace(l.PartNumber) == "" {
		return core.Validation(op, fmt.Errorf("part number is required"))
	}
	row := convert.CoreToLauncher(l)
	return storeErr(op, b.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error)
}

// PutWeapon inserts or replaces missile master data.
func (b *Backend) PutWeapon(ctx context.Context, w core.WeaponInfo) error {
	const op = "gorm.PutWeapon"
	if strings.TrimSpace(w.PartNumber) == "" {
		return core.Validation(op, fmt.Errorf("part number is required"))
	}
	row := convert.CoreToWeapon(w)
	return storeErr(op, b.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error)
}

// ExplicitLaunches lists missions with a non-empty explicit record using pn.
func (b *Backend) ExplicitLaunches(ctx context.Context, pn string) ([]storage.ExplicitUse, error) {
	const op = "gorm.ExplicitLaunches"
	var rows []model.LoadoutRecord
	if err := b.db.WithContext(ctx).
		Preload("Mission").
		Where("launcher_pn = ? AND status <> ?", pn, core.CodeEmpty).
		Find(&rows).Error; err != nil {
		return nil, storeErr(op, err)
	}
	out := make([]storage.ExplicitUse, 0, len(rows))
	for _, r := range rows {
		rec, err := convert.LoadoutRecordToCore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, storage.ExplicitUse{
			Mission: convert.MissionToCore(r.Mission),
			Fired:   rec.Status == core.StatusFired,
		})
	}
	return out, nil
}

// LauncherWindows lists launcher installation windows for pn.
func (b *Backend) LauncherWindows(ctx context.Context, pn string) ([]core.InstallationWindow, error) {
	var rows []model.Installation
	if err := b.db.WithContext(ctx).
		Where("kind = ? AND part_number = ?", string(core.KindLauncher), pn).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, storeErr("gorm.LauncherWindows", err)
	}
	out := make([]core.InstallationWindow, len(rows))
	for i, r := range rows {
		out[i] = convert.InstallationToCore(r)
	}
	return out, nil
}

// MissionsForAircraft lists missions flown by aircraft.
func (b *Backend) MissionsForAircraft(ctx context.Context, aircraft string) ([]core.Mission, error) {
	var rows []model.Mission
	if err := b.db.WithContext(ctx).Where("aircraft = ?", aircraft).Order("id").Find(&rows).Error; err != nil {
		return nil, storeErr("gorm.MissionsForAircraft", err)
	}
	out := make([]core.Mission, len(rows))
	for i, r := range rows {
		out[i] = convert.MissionToCore(r)
	}
	return out, nil
}

// HasExplicitLoadouts reports whether the mission has any explicit record.
func (b *Backend) HasExplicitLoadouts(ctx context.Context, missionID uint) (bool, error) {
	var count int64
	if err := b.db.WithContext(ctx).Model(&model.LoadoutRecord{}).Where("mission_id = ?", missionID).Count(&count).Error; err != nil {
		return false, storeErr("gorm.HasExplicitLoadouts", err)
	}
	return count > 0, nil
}
