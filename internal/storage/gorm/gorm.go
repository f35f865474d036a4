// Package gormstorage implements storage.Backend on GORM. It is shared by the
// Postgres and SQLite backends, which only differ in how the connection is opened.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/fleetops/hardpoint/internal/database"
	"github.com/fleetops/hardpoint/internal/model"
	"github.com/fleetops/hardpoint/internal/model/convert"
	"github.com/fleetops/hardpoint/internal/queue"
	"github.com/fleetops/hardpoint/internal/storage"
	"github.com/fleetops/hardpoint/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
	// ImportFlushInterval drives the background writer for bulk register imports.
	// Zero disables it; queued rows are then written by Flush or Close.
	ImportFlushInterval time.Duration
	Now                 func() time.Time
}

// Backend implements storage.Backend using GORM.
type Backend struct {
	deps     Dependencies
	db       *gorm.DB
	imports  *queue.Batch[model.Installation]
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Backend{
		deps:    deps,
		db:      deps.DB,
		imports: queue.New[model.Installation](0),
	}
}

// DB exposes the underlying connection for maintenance tasks such as dumps.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Init migrates the schema and starts the import writer.
func (b *Backend) Init() error {
	if b.db == nil {
		return fmt.Errorf("gorm backend: no database connection")
	}
	b.deps.Logger.Info("Migrating schema", "dialect", b.db.Name())
	if err := database.Migrate(b.db); err != nil {
		return err
	}

	if b.deps.ImportFlushInterval > 0 {
		b.stopChan = make(chan struct{})
		b.done = make(chan struct{})
		go b.importWriter()
	}
	return nil
}

// Close stops the import writer and writes any rows still queued.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	if b.db == nil {
		return nil
	}
	return b.Flush(context.Background())
}

// storeErr maps GORM errors onto the core taxonomy.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.NotFound(op, core.ErrNotFound)
	}
	return core.StoreFailure(op, err)
}

func missionNotFound(op string, id uint) *core.Error {
	return core.NotFound(op, fmt.Errorf("%w: mission %d", core.ErrNotFound, id))
}

func (b *Backend) requireMission(tx *gorm.DB, op string, id uint) error {
	var count int64
	if err := tx.Model(&model.Mission{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return storeErr(op, err)
	}
	if count == 0 {
		return missionNotFound(op, id)
	}
	return nil
}

// CreateMission stores m and assigns its ID.
func (b *Backend) CreateMission(ctx context.Context, m *core.Mission) (uint, error) {
	const op = "gorm.CreateMission"
	row := convert.CoreToMission(*m)
	row.ID = 0

	duplicate := core.Conflict(op, fmt.Errorf("%w: flight %d on %s", core.ErrDuplicateFlightNumber, m.FlightNumber, m.Aircraft))
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Mission{}).
			Where("aircraft = ? AND flight_number = ?", row.Aircraft, row.FlightNumber).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return duplicate
		}
		return tx.Create(&row).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return 0, duplicate
	}
	if err != nil {
		return 0, storeErr(op, err)
	}

	m.ID = row.ID
	m.Date = core.DateOnly(m.Date)
	return row.ID, nil
}

// GetMission returns the mission with the given id.
func (b *Backend) GetMission(ctx context.Context, id uint) (core.Mission, error) {
	const op = "gorm.GetMission"
	var row model.Mission
	if err := b.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Mission{}, missionNotFound(op, id)
		}
		return core.Mission{}, storeErr(op, err)
	}
	return convert.MissionToCore(row), nil
}

// UpsertLoadout writes rec in one transaction if the stored version matches expectedVersion.
func (b *Backend) UpsertLoadout(ctx context.Context, rec core.LoadoutRecord, expectedVersion uint) (core.LoadoutRecord, error) {
	const op = "gorm.UpsertLoadout"
	if err := storage.ValidateLoadout(op, rec); err != nil {
		return core.LoadoutRecord{}, err
	}

	stale := func(stored uint) error {
		return core.Conflict(op,
			fmt.Errorf("%w: expected version %d, stored %d", core.ErrStaleVersion, expectedVersion, stored)).
			At(rec.MissionID, rec.Position)
	}

	row := convert.CoreToLoadoutRecord(rec)
	row.Version = expectedVersion + 1
	row.UpdatedAt = b.deps.Now()

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := b.requireMission(tx, op, rec.MissionID); err != nil {
			return err
		}

		var current model.LoadoutRecord
		res := tx.Where("mission_id = ? AND position = ?", row.MissionID, row.Position).Limit(1).Find(&current)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			if expectedVersion != 0 {
				return stale(0)
			}
			if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return stale(expectedVersion + 1)
				}
				return err
			}
			return nil
		}

		if current.Version != expectedVersion {
			return stale(current.Version)
		}
		upd := tx.Model(&model.LoadoutRecord{}).
			Where("id = ? AND version = ?", current.ID, expectedVersion).
			Updates(map[string]any{
				"launcher_pn": row.LauncherPN,
				"missile_pn":  row.MissilePN,
				"status":      row.Status,
				"version":     row.Version,
				"updated_at":  row.UpdatedAt,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return stale(current.Version)
		}
		return nil
	})
	if err != nil {
		return core.LoadoutRecord{}, storeErr(op, err)
	}

	rec.Version = row.Version
	rec.UpdatedAt = row.UpdatedAt
	return rec, nil
}

// SeedLoadouts writes the first explicit records of a mission.
func (b *Backend) SeedLoadouts(ctx context.Context, missionID uint, recs []core.LoadoutRecord) ([]core.LoadoutRecord, error) {
	const op = "gorm.SeedLoadouts"
	rows := make([]model.LoadoutRecord, 0, len(recs))
	now := b.deps.Now()
	for _, rec := range recs {
		rec.MissionID = missionID
		if err := storage.ValidateLoadout(op, rec); err != nil {
			return nil, err
		}
		row := convert.CoreToLoadoutRecord(rec)
		row.Version = 1
		row.UpdatedAt = now
		rows = append(rows, row)
	}

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := b.requireMission(tx, op, missionID); err != nil {
			return err
		}
		var existing int64
		if err := tx.Model(&model.LoadoutRecord{}).Where("mission_id = ?", missionID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return core.Conflict(op, fmt.Errorf("%w: mission already has %d explicit records", core.ErrStaleVersion, existing)).At(missionID, "")
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Omit(clause.Associations).Create(&rows).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return core.Conflict(op, fmt.Errorf("%w: concurrent seed", core.ErrStaleVersion)).At(missionID, "")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(op, err)
	}

	out := make([]core.LoadoutRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := convert.LoadoutRecordToCore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetLoadouts returns the explicit records of a mission in station order.
func (b *Backend) GetLoadouts(ctx context.Context, missionID uint) ([]core.LoadoutRecord, error) {
	const op = "gorm.GetLoadouts"
	var rows []model.LoadoutRecord
	if err := b.db.WithContext(ctx).Where("mission_id = ?", missionID).Find(&rows).Error; err != nil {
		return nil, storeErr(op, err)
	}

	out := make([]core.LoadoutRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := convert.LoadoutRecordToCore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position.Number() < out[j].Position.Number() })
	return out, nil
}

// GetLoadout returns the explicit record of one position.
func (b *Backend) GetLoadout(ctx context.Context, missionID uint, pos core.PositionID) (core.LoadoutRecord, error) {
	const op = "gorm.GetLoadout"
	var row model.LoadoutRecord
	res := b.db.WithContext(ctx).Where("mission_id = ? AND position = ?", missionID, string(pos)).Limit(1).Find(&row)
	if res.Error != nil {
		return core.LoadoutRecord{}, storeErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return core.LoadoutRecord{}, core.NotFound(op, core.ErrNotFound).At(missionID, pos)
	}
	return convert.LoadoutRecordToCore(row)
}

// DeclareFiring upserts the declaration for (mission, code).
func (b *Backend) DeclareFiring(ctx context.Context, d core.FiringDeclaration) error {
	const op = "gorm.DeclareFiring"
	if strings.TrimSpace(d.PositionCode) == "" {
		return core.Validation(op, core.ErrEmptyCode)
	}
	if d.DeclaredAt.IsZero() {
		d.DeclaredAt = b.deps.Now()
	}
	row := convert.CoreToFiringDeclaration(d)

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := b.requireMission(tx, op, d.MissionID); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mission_id"}, {Name: "position_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"fired", "declared_at"}),
		}).Create(&row).Error
	})
	return storeErr(op, err)
}

// GetFiringDeclarations returns a mission's declarations ordered by code.
func (b *Backend) GetFiringDeclarations(ctx context.Context, missionID uint) ([]core.FiringDeclaration, error) {
	const op = "gorm.GetFiringDeclarations"
	var rows []model.FiringDeclaration
	if err := b.db.WithContext(ctx).Where("mission_id = ?", missionID).Order("position_code").Find(&rows).Error; err != nil {
		return nil, storeErr(op, err)
	}
	out := make([]core.FiringDeclaration, len(rows))
	for i, r := range rows {
		out[i] = convert.FiringDeclarationToCore(r)
	}
	return out, nil
}

// GetMissionHistoryForLauncher derives the launcher's mission history.
func (b *Backend) GetMissionHistoryForLauncher(ctx context.Context, partNumber string) ([]core.MissionHistoryEntry, error) {
	return storage.BuildLauncherHistory(ctx, b, partNumber)
}

// GetInstalledLauncherAt returns the launcher window active at the position on date.
func (b *Backend) GetInstalledLauncherAt(ctx context.Context, aircraft string, pos core.PositionID, date time.Time) (core.InstallationWindow, bool, error) {
	return b.activeWindow(ctx, "gorm.GetInstalledLauncherAt", core.KindLauncher, aircraft, pos, date)
}

// GetEmbarkedMissileAt returns the missile window active at the position on date.
func (b *Backend) GetEmbarkedMissileAt(ctx context.Context, aircraft string, pos core.PositionID, date time.Time) (core.InstallationWindow, bool, error) {
	return b.activeWindow(ctx, "gorm.GetEmbarkedMissileAt", core.KindMissile, aircraft, pos, date)
}

// activeWindow loads the slot's windows and filters coverage in Go, so that date
// comparison does not depend on how each dialect stores DATE columns.
func (b *Backend) activeWindow(ctx context.Context, op string, kind core.ItemKind, aircraft string, pos core.PositionID, date time.Time) (core.InstallationWindow, bool, error) {
	var rows []model.Installation
	if err := b.db.WithContext(ctx).
		Where("kind = ? AND aircraft = ? AND position = ?", string(kind), aircraft, string(pos)).
		Order("id").
		Find(&rows).Error; err != nil {
		return core.InstallationWindow{}, false, storeErr(op, err)
	}
	candidates := make([]core.InstallationWindow, len(rows))
	for i, r := range rows {
		candidates[i] = convert.InstallationToCore(r)
	}
	return storage.SelectActive(op, candidates, aircraft, pos, date)
}

// RecordInstallation stores an installation window.
func (b *Backend) RecordInstallation(ctx context.Context, w core.InstallationWindow) error {
	const op = "gorm.RecordInstallation"
	if err := storage.ValidateInstallation(op, w); err != nil {
		return err
	}
	row := convert.CoreToInstallation(w)
	return storeErr(op, b.db.WithContext(ctx).Create(&row).Error)
}

// GetMovementHistory returns all windows for a part number, newest installation first.
func (b *Backend) GetMovementHistory(ctx context.Context, partNumber string) ([]core.InstallationWindow, error) {
	const op = "gorm.GetMovementHistory"
	var rows []model.Installation
	if err := b.db.WithContext(ctx).Where("part_number = ?", partNumber).Order("id").Find(&rows).Error; err != nil {
		return nil, storeErr(op, err)
	}
	out := make([]core.InstallationWindow, len(rows))
	for i, r := range rows {
		out[i] = convert.InstallationToCore(r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].InstalledAt.After(out[j].InstalledAt) })
	return out, nil
}

// RecordFlightData stores the recorded values for a mission, replacing earlier ones.
func (b *Backend) RecordFlightData(ctx context.Context, fd core.FlightData) error {
	const op = "gorm.RecordFlightData"
	row := convert.CoreToFlightData(fd)
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := b.requireMission(tx, op, fd.MissionID); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	})
	return storeErr(op, err)
}

// GetFlightData returns the recorded values for a mission.
func (b *Backend) GetFlightData(ctx context.Context, missionID uint) (core.FlightData, error) {
	const op = "gorm.GetFlightData"
	var row model.FlightData
	if err := b.db.WithContext(ctx).Where("mission_id = ?", missionID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.FlightData{}, core.NotFound(op, fmt.Errorf("%w: flight data for mission %d", core.ErrNotFound, missionID))
		}
		return core.FlightData{}, storeErr(op, err)
	}
	return convert.FlightDataToCore(row), nil
}
