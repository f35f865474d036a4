// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fleetops/hardpoint/internal/storage"
	"github.com/fleetops/hardpoint/pkg/core"
)

type flightKey struct {
	aircraft string
	number   int
}

type loadoutKey struct {
	missionID uint
	position  core.PositionID
}

// Backend keeps missions, loadouts and catalog data in process memory.
// It is used for tests and for the "memory" storage type.
type Backend struct {
	missions     map[uint]core.Mission
	flights      map[flightKey]uint
	loadouts     map[loadoutKey]core.LoadoutRecord
	declarations map[uint]map[string]core.FiringDeclaration // keyed by mission, then raw code
	windows      []core.InstallationWindow
	flightData   map[uint]core.FlightData

	launchers map[string]core.LauncherInfo
	weapons   map[string]core.WeaponInfo

	idCounter uint
	now       func() time.Time
	mu        sync.RWMutex
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{
		missions:     make(map[uint]core.Mission),
		flights:      make(map[flightKey]uint),
		loadouts:     make(map[loadoutKey]core.LoadoutRecord),
		declarations: make(map[uint]map[string]core.FiringDeclaration),
		flightData:   make(map[uint]core.FlightData),
		launchers:    make(map[string]core.LauncherInfo),
		weapons:      make(map[string]core.WeaponInfo),
		now:          time.Now,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// CreateMission stores m and assigns its ID.
func (b *Backend) CreateMission(ctx context.Context, m *core.Mission) (uint, error) {
	const op = "memory.CreateMission"
	if err := storage.ContextError(op, ctx); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := flightKey{aircraft: m.Aircraft, number: m.FlightNumber}
	if _, exists := b.flights[key]; exists {
		return 0, core.Conflict(op, fmt.Errorf("%w: flight %d on %s", core.ErrDuplicateFlightNumber, m.FlightNumber, m.Aircraft))
	}

	b.idCounter++
	m.ID = b.idCounter
	m.Date = core.DateOnly(m.Date)
	b.missions[m.ID] = *m
	b.flights[key] = m.ID
	return m.ID, nil
}

// GetMission returns the mission with the given id.
func (b *Backend) GetMission(ctx context.Context, id uint) (core.Mission, error) {
	const op = "memory.GetMission"
	if err := storage.ContextError(op, ctx); err != nil {
		return core.Mission{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	m, ok := b.missions[id]
	if !ok {
		return core.Mission{}, core.NotFound(op, fmt.Errorf("%w: mission %d", core.ErrNotFound, id))
	}
	return m, nil
}

// UpsertLoadout writes rec if the stored version matches expectedVersion.
func (b *Backend) UpsertLoadout(ctx context.Context, rec core.LoadoutRecord, expectedVersion uint) (core.LoadoutRecord, error) {
	const op = "memory.UpsertLoadout"
	if err := storage.ContextError(op, ctx); err != nil {
		return core.LoadoutRecord{}, err
	}
	if err := storage.ValidateLoadout(op, rec); err != nil {
		return core.LoadoutRecord{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.missions[rec.MissionID]; !ok {
		return core.LoadoutRecord{}, core.NotFound(op, fmt.Errorf("%w: mission %d", core.ErrNotFound, rec.MissionID))
	}

	key := loadoutKey{missionID: rec.MissionID, position: rec.Position}
	current := b.loadouts[key]
	if current.Version != expectedVersion {
		return core.LoadoutRecord{}, core.Conflict(op,
			fmt.Errorf("%w: expected version %d, stored %d", core.ErrStaleVersion, expectedVersion, current.Version)).
			At(rec.MissionID, rec.Position)
	}

	rec.Version = current.Version + 1
	rec.UpdatedAt = b.now()
	b.loadouts[key] = rec
	return rec, nil
}

// SeedLoadouts writes the first explicit records of a mission.
func (b *Backend) SeedLoadouts(ctx context.Context, missionID uint, recs []core.LoadoutRecord) ([]core.LoadoutRecord, error) {
	const op = "memory.SeedLoadouts"
	if err := storage.ContextError(op, ctx); err != nil {
		return nil, err
	}
	recs = append([]core.LoadoutRecord(nil), recs...)
	for i := range recs {
		recs[i].MissionID = missionID
		if err := storage.ValidateLoadout(op, recs[i]); err != nil {
			return nil, err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.missions[missionID]; !ok {
		return nil, core.NotFound(op, fmt.Errorf("%w: mission %d", core.ErrNotFound, missionID))
	}
	for _, p := range core.AllPositions {
		if _, ok := b.loadouts[loadoutKey{missionID: missionID, position: p}]; ok {
			return nil, core.Conflict(op, fmt.Errorf("%w: mission already has explicit records", core.ErrStaleVersion)).At(missionID, "")
		}
	}

	now := b.now()
	out := make([]core.LoadoutRecord, 0, len(recs))
	for _, rec := range recs {
		rec.Version = 1
		rec.UpdatedAt = now
		b.loadouts[loadoutKey{missionID: missionID, position: rec.Position}] = rec
		out = append(out, rec)
	}
	return out, nil
}

// GetLoadouts returns the explicit records of a mission in station order.
func (b *Backend) GetLoadouts(ctx context.Context, missionID uint) ([]core.LoadoutRecord, error) {
	const op = "memory.GetLoadouts"
	if err := storage.ContextError(op, ctx); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.LoadoutRecord
	for _, p := range core.AllPositions {
		if rec, ok := b.loadouts[loadoutKey{missionID: missionID, position: p}]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// GetLoadout returns the explicit record of one position.
func (b *Backend) GetLoadout(ctx context.Context, missionID uint, pos core.PositionID) (core.LoadoutRecord, error) {
	const op = "memory.GetLoadout"
	if err := storage.ContextError(op, ctx); err != nil {
		return core.LoadoutRecord{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.loadouts[loadoutKey{missionID: missionID, position: pos}]
	if !ok {
		return core.LoadoutRecord{}, core.NotFound(op, core.ErrNotFound).At(missionID, pos)
	}
	return rec, nil
}

// DeclareFiring upserts the declaration for (mission, code).
func (b *Backend) DeclareFiring(ctx context.Context, d core.FiringDeclaration) error {
	const op = "memory.DeclareFiring"
	if err := storage.ContextError(op, ctx); err != nil {
		return err
	}
	if strings.TrimSpace(d.PositionCode) == "" {
		return core.Validation(op, core.ErrEmptyCode)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.missions[d.MissionID]; !ok {
		return core.NotFound(op, fmt.Errorf("%w: mission %d", core.ErrNotFound, d.MissionID))
	}
	if d.DeclaredAt.IsZero() {
		d.DeclaredAt = b.now()
	}
	byCode, ok := b.declarations[d.MissionID]
	if !ok {
		byCode = make(map[string]core.FiringDeclaration)
		b.declarations[d.MissionID] = byCode
	}
	byCode[d.PositionCode] = d
	return nil
}

// GetFiringDeclarations returns a mission's declarations ordered by code.
func (b *Backend) GetFiringDeclarations(ctx context.Context, missionID uint) ([]core.FiringDeclaration, error) {
	const op = "memory.GetFiringDeclarations"
	if err := storage.ContextError(op, ctx); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.FiringDeclaration, 0, len(b.declarations[missionID]))
	for _, d := range b.declarations[missionID] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PositionCode < out[j].PositionCode })
	return out, nil
}

// GetMissionHistoryForLauncher derives the launcher's mission history.
func (b *Backend) GetMissionHistoryForLauncher(ctx context.Context, partNumber string) ([]core.MissionHistoryEntry, error) {
	return storage.BuildLauncherHistory(ctx, b, partNumber)
}

// GetInstalledLauncherAt returns the launcher window active at the position on date.
func (b *Backend) GetInstalledLauncherAt(ctx context.Context, aircraft string, pos core.PositionID, date time.Time) (core.InstallationWindow, bool, error) {
	return b.activeWindow(ctx, "memory.GetInstalledLauncherAt", core.KindLauncher, aircraft, pos, date)
}

// GetEmbarkedMissileAt returns the missile window active at the position on date.
func (b *Backend) GetEmbarkedMissileAt(ctx context.Context, aircraft string, pos core.PositionID, date time.Time) (core.InstallationWindow, bool, error) {
	return b.activeWindow(ctx, "memory.GetEmbarkedMissileAt", core.KindMissile, aircraft, pos, date)
}

func (b *Backend) activeWindow(ctx context.Context, op string, kind core.ItemKind, aircraft string, pos core.PositionID, date time.Time) (core.InstallationWindow, bool, error) {
	if err := storage.ContextError(op, ctx); err != nil {
		return core.InstallationWindow{}, false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var candidates []core.InstallationWindow
	for _, w := range b.windows {
		if w.Kind == kind && w.Aircraft == aircraft && w.Position == pos {
			candidates = append(candidates, w)
		}
	}
	return storage.SelectActive(op, candidates, aircraft, pos, date)
}

// RecordInstallation appends an installation window.
func (b *Backend) RecordInstallation(ctx context.Context, w core.InstallationWindow) error {
	const op = "memory.RecordInstallation"
	if err := storage.ContextError(op, ctx); err != nil {
		return err
	}
	if err := storage.ValidateInstallation(op, w); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	w.InstalledAt = core.DateOnly(w.InstalledAt)
	if w.RemovedAt != nil {
		removed := core.DateOnly(*w.RemovedAt)
		w.RemovedAt = &removed
	}
	b.windows = append(b.windows, w)
	return nil
}

// GetMovementHistory returns all windows for a part number, newest installation first.
func (b *Backend) GetMovementHistory(ctx context.Context, partNumber string) ([]core.InstallationWindow, error) {
	const op = "memory.GetMovementHistory"
	if err := storage.ContextError(op, ctx); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.InstallationWindow
	for _, w := range b.windows {
		if w.PartNumber == partNumber {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].InstalledAt.After(out[j].InstalledAt) })
	return out, nil
}

// RecordFlightData stores the recorded values for a mission, replacing earlier ones.
func (b *Backend) RecordFlightData(ctx context.Context, fd core.FlightData) error {
	const op = "memory.RecordFlightData"
	if err := storage.ContextError(op, ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.missions[fd.MissionID]; !ok {
		return core.NotFound(op, fmt.Errorf("%w: mission %d", core.ErrNotFound, fd.MissionID))
	}
	b.flightData[fd.MissionID] = fd
	return nil
}

// GetFlightData returns the recorded values for a mission.
func (b *Backend) GetFlightData(ctx context.Context, missionID uint) (core.FlightData, error) {
	const op = "memory.GetFlightData"
	if err := storage.ContextError(op, ctx); err != nil {
		return core.FlightData{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	fd, ok := b.flightData[missionID]
	if !ok {
		return core.FlightData{}, core.NotFound(op, fmt.Errorf("%w: flight data for mission %d", core.ErrNotFound, missionID))
	}
	return fd, nil
}
