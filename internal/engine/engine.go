// Package engine wires the mission store, binder, loadout service and fatigue
// calculator behind one facade used by the HTTP API and the command line.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fleetops/hardpoint/internal/binder"
	"github.com/fleetops/hardpoint/internal/cache"
	"github.com/fleetops/hardpoint/internal/fatigue"
	"github.com/fleetops/hardpoint/internal/loadout"
	"github.com/fleetops/hardpoint/internal/logging"
	"github.com/fleetops/hardpoint/internal/storage"
	"github.com/fleetops/hardpoint/pkg/core"
)

// Options configures an Engine.
type Options struct {
	ConfigurablePositions []core.PositionID
	StoreTimeout          time.Duration
	DamagePerMission      float64
	// Sink receives every computed fatigue snapshot. May be nil.
	Sink   fatigue.Sink
	Logger *slog.Logger
}

// Engine is the loadout and fatigue tracking facade.
type Engine struct {
	missions storage.MissionStore
	catalog  storage.CatalogStore

	binder   *binder.Binder
	loadouts *loadout.Service
	fatigue  *fatigue.Calculator
	resolved *cache.LoadoutCache
	names    *cache.CatalogCache

	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Engine over the given stores.
func New(missions storage.MissionStore, catalog storage.CatalogStore, opts Options) (*Engine, error) {
	if missions == nil || catalog == nil {
		return nil, errors.New("engine: mission and catalog stores are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.StoreTimeout
	if timeout <= 0 {
		timeout = loadout.DefaultStoreTimeout
	}

	e := &Engine{
		missions: missions,
		catalog:  catalog,
		binder:   binder.New(missions, logger),
		resolved: cache.NewLoadoutCache(),
		names:    cache.NewCatalogCache(),
		timeout:  timeout,
		logger:   logger,
	}

	var err error
	e.loadouts, err = loadout.NewService(missions, catalog, e.binder, e.resolved, loadout.Options{
		ConfigurablePositions: opts.ConfigurablePositions,
		StoreTimeout:          timeout,
		Logger:                logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating loadout service: %w", err)
	}

	fopts := []fatigue.Option{fatigue.WithCatalogCache(e.names)}
	if opts.DamagePerMission != 0 {
		fopts = append(fopts, fatigue.WithDamagePerMission(opts.DamagePerMission))
	}
	if opts.Sink != nil {
		fopts = append(fopts, fatigue.WithSink(opts.Sink))
	}
	e.fatigue, err = fatigue.New(missions, catalog, fopts...)
	if err != nil {
		return nil, fmt.Errorf("creating fatigue calculator: %w", err)
	}
	return e, nil
}

// Loadouts exposes the loadout service.
func (e *Engine) Loadouts() *loadout.Service {
	return e.loadouts
}

func (e *Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

// CreateMission validates and stores a new mission. A duplicate flight number
// for the same aircraft is a conflict.
func (e *Engine) CreateMission(ctx context.Context, in MissionInput) (core.Mission, error) {
	m, err := in.Mission()
	if err != nil {
		return core.Mission{}, err
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	id, err := e.missions.CreateMission(ctx, &m)
	if err != nil {
		return core.Mission{}, err
	}
	m.ID = id
	e.logger.InfoContext(logging.WithMission(ctx, id), "mission created",
		"aircraft", m.Aircraft, "flight", m.FlightNumber, "date", m.Date.Format(core.DateLayout))
	return m, nil
}

// GetMission returns a stored mission.
func (e *Engine) GetMission(ctx context.Context, id uint) (core.Mission, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.missions.GetMission(ctx, id)
}

// ResolveLoadout returns the thirteen positions of a mission, P1 first.
// Results are cached until the next write to the mission. A result resolved while
// a write was committing is returned but not cached.
func (e *Engine) ResolveLoadout(ctx context.Context, missionID uint) ([]core.PositionLoadout, error) {
	gen := e.resolved.Generation(missionID)
	if out, ok := e.resolved.Get(missionID); ok {
		return out, nil
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	out, err := e.binder.ResolveLoadout(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if !e.resolved.PutAt(missionID, gen, out) {
		e.logger.DebugContext(ctx, "mission changed while resolving, result not cached", "mission_id", missionID)
	}
	return out, nil
}

// AssignPosition places equipment at a configurable position.
func (e *Engine) AssignPosition(ctx context.Context, missionID uint, pos core.PositionID, req loadout.AssignRequest) (loadout.Result, error) {
	return e.loadouts.AssignPosition(ctx, missionID, pos, req)
}

// FirePosition declares the missile at pos fired.
func (e *Engine) FirePosition(ctx context.Context, missionID uint, pos core.PositionID) (loadout.Result, error) {
	return e.loadouts.FirePosition(ctx, missionID, pos)
}

// CorrectPosition is the administrative correction path.
func (e *Engine) CorrectPosition(ctx context.Context, missionID uint, pos core.PositionID, to core.LoadoutStatus, reason string) (loadout.Result, error) {
	res, err := e.loadouts.CorrectPosition(ctx, missionID, pos, to, reason)
	if err == nil && res.Outcome == loadout.Applied {
		e.logger.InfoContext(logging.WithPosition(logging.WithMission(ctx, missionID), string(pos)),
			"loadout corrected", "status", to.String(), "reason", reason)
	}
	return res, err
}

// LauncherStatus computes the fatigue snapshot of a launcher.
func (e *Engine) LauncherStatus(ctx context.Context, partNumber string) (core.LauncherStatus, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.fatigue.ComputeStatus(ctx, partNumber)
}

// LauncherHistory returns the missions a launcher flew, most recent first.
func (e *Engine) LauncherHistory(ctx context.Context, partNumber string) ([]core.MissionHistoryEntry, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	if _, err := e.catalog.GetLauncherByPartNumber(ctx, partNumber); err != nil {
		return nil, err
	}
	return e.fatigue.History(ctx, partNumber)
}

// FleetStatus computes a snapshot for every catalogued launcher, ordered by part number.
// Launchers whose history cannot be read are logged and skipped.
func (e *Engine) FleetStatus(ctx context.Context) ([]core.LauncherStatus, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	launchers, err := e.catalog.ListLaunchers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.LauncherStatus, 0, len(launchers))
	for _, l := range launchers {
		e.names.Set(l)
		s, err := e.fatigue.ComputeStatus(ctx, l.PartNumber)
		if err != nil {
			if core.IsKind(err, core.KindStore) {
				return nil, err
			}
			e.logger.WarnContext(ctx, "skipping launcher", "partNumber", l.PartNumber, "error", err)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// RecordFlightData stores the values recorded after a flight. When the missile
// status summary is left empty it is derived from the resolved loadout.
func (e *Engine) RecordFlightData(ctx context.Context, fd core.FlightData) (core.FlightData, error) {
	const op = "engine.RecordFlightData"
	if fd.GLoadMin > fd.GLoadMax {
		return core.FlightData{}, core.Validation(op, fmt.Errorf("minimum G-load %.2f exceeds maximum %.2f", fd.GLoadMin, fd.GLoadMax)).At(fd.MissionID, "")
	}
	if fd.AvgAltitude < 0 || fd.MaxSpeed < 0 {
		return core.FlightData{}, core.Validation(op, fmt.Errorf("altitude and speed must not be negative")).At(fd.MissionID, "")
	}

	if strings.TrimSpace(fd.MissileStatus) == "" {
		loadouts, err := e.ResolveLoadout(ctx, fd.MissionID)
		if err != nil {
			return core.FlightData{}, err
		}
		statuses := make(map[core.PositionID]core.LoadoutStatus, len(loadouts))
		for _, pl := range loadouts {
			statuses[pl.Position] = pl.Status
		}
		fd.MissileStatus = core.EncodeStatusSummary(statuses)
	} else {
		statuses, err := core.DecodeStatusSummary(fd.MissileStatus)
		if err != nil {
			return core.FlightData{}, core.Validation(op, err).At(fd.MissionID, "")
		}
		fd.MissileStatus = core.EncodeStatusSummary(statuses)
	}

	ctx, cancel := e.bounded(ctx)
	defer cancel()
	if err := e.missions.RecordFlightData(ctx, fd); err != nil {
		return core.FlightData{}, err
	}
	return fd, nil
}

// GetFlightData returns the values recorded for a mission.
func (e *Engine) GetFlightData(ctx context.Context, missionID uint) (core.FlightData, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.missions.GetFlightData(ctx, missionID)
}

// RecordInstallation adds a window to the installation registers. Cached
// loadouts are dropped since any historical mission may now resolve differently.
func (e *Engine) RecordInstallation(ctx context.Context, w core.InstallationWindow) error {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	if err := e.missions.RecordInstallation(ctx, w); err != nil {
		return err
	}
	e.resolved.Reset()
	return nil
}

// MovementHistory lists the installation windows of a part, newest first.
func (e *Engine) MovementHistory(ctx context.Context, partNumber string) ([]core.InstallationWindow, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.missions.GetMovementHistory(ctx, partNumber)
}

// Launchers lists the launcher catalog.
func (e *Engine) Launchers(ctx context.Context) ([]core.LauncherInfo, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.catalog.ListLaunchers(ctx)
}

// PutLauncher adds or replaces a launcher catalog entry.
func (e *Engine) PutLauncher(ctx context.Context, l core.LauncherInfo) error {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	if err := e.catalog.PutLauncher(ctx, l); err != nil {
		return err
	}
	e.names.Delete(l.PartNumber)
	return nil
}

// PutWeapon adds or replaces a missile catalog entry.
func (e *Engine) PutWeapon(ctx context.Context, w core.WeaponInfo) error {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.catalog.PutWeapon(ctx, w)
}
