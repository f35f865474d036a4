package loadout

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fleetops/hardpoint/internal/logging"
	"github.com/fleetops/hardpoint/internal/position"
	"github.com/fleetops/hardpoint/internal/storage"
	"github.com/fleetops/hardpoint/pkg/core"
)

// DefaultStoreTimeout bounds each store round trip when none is configured.
const DefaultStoreTimeout = 5 * time.Second

// Resolver resolves a mission from the historical installation registers when it
// has no explicit record. The binder implements it.
type Resolver interface {
	ResolveLoadout(ctx context.Context, missionID uint) ([]core.PositionLoadout, error)
	ResolvePosition(ctx context.Context, missionID uint, pos core.PositionID) (core.PositionLoadout, error)
}

// Invalidator drops cached reads of a mission after a write.
type Invalidator interface {
	Invalidate(missionID uint)
}

// Options configures a Service.
type Options struct {
	// ConfigurablePositions are the positions the primary workflow may assign.
	ConfigurablePositions []core.PositionID
	StoreTimeout          time.Duration
	Logger                *slog.Logger
}

// Service commits loadout transitions through the mission store, one position at a time.
type Service struct {
	missions storage.MissionStore
	catalog  storage.CatalogStore
	resolver Resolver
	cache    Invalidator

	configurable []core.PositionID
	timeout      time.Duration
	logger       *slog.Logger
	locks        keyedMutex

	// OTEL metrics
	transitions metric.Int64Counter
	conflicts   metric.Int64Counter
}

// NewService creates a Service. cache may be nil.
// Uses the global OTel meter for metrics (no-op if not configured).
func NewService(missions storage.MissionStore, catalog storage.CatalogStore, resolver Resolver, cache Invalidator, opts Options) (*Service, error) {
	s := &Service{
		missions:     missions,
		catalog:      catalog,
		resolver:     resolver,
		cache:        cache,
		configurable: opts.ConfigurablePositions,
		timeout:      opts.StoreTimeout,
		logger:       opts.Logger,
	}
	if len(s.configurable) == 0 {
		s.configurable = []core.PositionID{core.P1, core.P13}
	}
	if s.timeout <= 0 {
		s.timeout = DefaultStoreTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	m := otel.Meter("github.com/fleetops/hardpoint/internal/loadout")
	var err error

	s.transitions, err = m.Int64Counter(
		"loadout.transitions",
		metric.WithDescription("Loadout transitions by event and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transitions counter: %w", err)
	}

	s.conflicts, err = m.Int64Counter(
		"loadout.conflicts",
		metric.WithDescription("Writes rejected because the position changed concurrently"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating conflicts counter: %w", err)
	}

	return s, nil
}

// Configurable reports whether pos accepts assignments in the primary workflow.
func (s *Service) Configurable(pos core.PositionID) bool {
	return slices.Contains(s.configurable, pos)
}

// AssignPosition places a launcher, and optionally a missile, at a configurable position.
// The first assignment on a mission resolved from the registers switches it to explicit
// records, carrying every loaded position over so nothing is lost in the switch.
func (s *Service) AssignPosition(ctx context.Context, missionID uint, pos core.PositionID, req AssignRequest) (Result, error) {
	const op = "loadout.AssignPosition"
	if !pos.Valid() {
		return Result{}, core.Validation(op, fmt.Errorf("invalid position %q", pos)).At(missionID, "")
	}
	if !s.Configurable(pos) {
		return Result{}, core.Validation(op, core.ErrPositionNotEditable).At(missionID, pos)
	}
	if err := req.Validate(); err != nil {
		return Result{}, core.Validation(op, err).At(missionID, pos)
	}

	ctx, cancel := context.WithTimeout(logging.WithPosition(logging.WithMission(ctx, missionID), string(pos)), s.timeout)
	defer cancel()
	unlock := s.locks.Lock(missionID, pos)
	defer unlock()

	if _, err := s.missions.GetMission(ctx, missionID); err != nil {
		return Result{}, err
	}
	if err := s.checkCatalog(ctx, req); err != nil {
		return Result{}, err
	}

	rec, found, err := s.lookup(ctx, missionID, pos)
	if err != nil {
		return Result{}, err
	}
	if found {
		return s.assign(ctx, rec, req)
	}

	unlockMission := s.locks.Lock(missionID, missionWide)
	defer unlockMission()

	historical, err := s.historical(ctx, missionID)
	if err != nil {
		return Result{}, err
	}
	if historical == nil {
		// another position may have switched the mission, and seeded this one, since the lookup
		if rec, _, err = s.lookup(ctx, missionID, pos); err != nil {
			return Result{}, err
		}
		return s.assign(ctx, rec, req)
	}

	res, err := Assign(recordOf(missionID, historical[pos.Number()-1]), req)
	if err != nil {
		s.count(ctx, EvAssign, "rejected")
		return res, err
	}
	if res.Outcome != Applied {
		s.count(ctx, EvAssign, res.Outcome.String())
		return res, nil
	}
	return s.seed(ctx, EvAssign, missionID, historical, res.Record)
}

func (s *Service) assign(ctx context.Context, rec core.LoadoutRecord, req AssignRequest) (Result, error) {
	res, err := Assign(rec, req)
	if err != nil {
		s.count(ctx, EvAssign, "rejected")
		return res, err
	}
	return s.commit(ctx, EvAssign, rec.Version, res)
}

// FirePosition declares the missile at pos fired.
// Positions with an explicit record go through the state machine. Missions without
// any explicit record are resolved from the historical registers and the firing
// is stored as a declaration against the position's raw code.
func (s *Service) FirePosition(ctx context.Context, missionID uint, pos core.PositionID) (Result, error) {
	const op = "loadout.FirePosition"
	if !pos.Valid() {
		return Result{}, core.Validation(op, fmt.Errorf("invalid position %q", pos)).At(missionID, "")
	}

	ctx, cancel := context.WithTimeout(logging.WithPosition(logging.WithMission(ctx, missionID), string(pos)), s.timeout)
	defer cancel()
	unlock := s.locks.Lock(missionID, pos)
	defer unlock()

	rec, found, err := s.lookup(ctx, missionID, pos)
	if err != nil {
		return Result{}, err
	}
	if found {
		return s.fire(ctx, rec)
	}

	unlockMission := s.locks.Lock(missionID, missionWide)
	defer unlockMission()

	historical, err := s.historical(ctx, missionID)
	if err != nil {
		return Result{}, err
	}
	if historical == nil {
		if rec, found, err = s.lookup(ctx, missionID, pos); err != nil {
			return Result{}, err
		}
		if found {
			return s.fire(ctx, rec)
		}
		// explicit mission without a record at pos: the position is empty
		s.count(ctx, EvFire, NothingToDo.String())
		return Result{Record: emptyRecord(missionID, pos), Outcome: NothingToDo}, nil
	}

	pl := historical[pos.Number()-1]
	res, err := Fire(recordOf(missionID, pl))
	if err != nil || res.Outcome != Applied {
		s.count(ctx, EvFire, res.Outcome.String())
		return res, err
	}
	if err := s.missions.DeclareFiring(ctx, core.FiringDeclaration{
		MissionID:    missionID,
		PositionCode: rawCode(pl),
		Fired:        true,
	}); err != nil {
		return Result{}, err
	}
	s.invalidate(missionID)
	s.count(ctx, EvFire, Applied.String())
	s.logger.InfoContext(ctx, "historical position fired", "code", rawCode(pl))
	return res, nil
}

func (s *Service) fire(ctx context.Context, rec core.LoadoutRecord) (Result, error) {
	res, err := Fire(rec)
	if err != nil {
		return res, err
	}
	return s.commit(ctx, EvFire, rec.Version, res)
}

// CorrectPosition is the administrative path. It may touch any position.
func (s *Service) CorrectPosition(ctx context.Context, missionID uint, pos core.PositionID, to core.LoadoutStatus, reason string) (Result, error) {
	const op = "loadout.CorrectPosition"
	if !pos.Valid() {
		return Result{}, core.Validation(op, fmt.Errorf("invalid position %q", pos)).At(missionID, "")
	}
	if !to.Valid() {
		return Result{}, core.Validation(op, fmt.Errorf("invalid target status %d", to)).At(missionID, pos)
	}

	ctx, cancel := context.WithTimeout(logging.WithPosition(logging.WithMission(ctx, missionID), string(pos)), s.timeout)
	defer cancel()
	unlock := s.locks.Lock(missionID, pos)
	defer unlock()

	rec, found, err := s.lookup(ctx, missionID, pos)
	if err != nil {
		return Result{}, err
	}
	if found {
		return s.correct(ctx, rec, to, reason)
	}

	unlockMission := s.locks.Lock(missionID, missionWide)
	defer unlockMission()

	historical, err := s.historical(ctx, missionID)
	if err != nil {
		return Result{}, err
	}
	if historical == nil {
		if rec, _, err = s.lookup(ctx, missionID, pos); err != nil {
			return Result{}, err
		}
		return s.correct(ctx, rec, to, reason)
	}

	pl := historical[pos.Number()-1]
	current := recordOf(missionID, pl)
	res, err := Correct(current, to, reason)
	if err != nil || res.Outcome != Applied {
		return res, err
	}
	// historical registers are read-only: the only correction is withdrawing a declaration
	if current.Status != core.StatusFired || to != core.StatusOnboard {
		return Result{Record: current}, core.Validation(op,
			fmt.Errorf("%w: historical positions can only have their firing withdrawn", core.ErrIllegalTransition)).At(missionID, pos)
	}
	if err := s.missions.DeclareFiring(ctx, core.FiringDeclaration{
		MissionID:    missionID,
		PositionCode: rawCode(pl),
		Fired:        false,
	}); err != nil {
		return Result{}, err
	}
	s.invalidate(missionID)
	s.count(ctx, EvCorrect, Applied.String())
	s.logger.WarnContext(ctx, "firing declaration withdrawn", "code", rawCode(pl), "reason", reason)
	return res, nil
}

func (s *Service) correct(ctx context.Context, rec core.LoadoutRecord, to core.LoadoutStatus, reason string) (Result, error) {
	res, err := Correct(rec, to, reason)
	if err != nil {
		return res, err
	}
	res, err = s.commit(ctx, EvCorrect, rec.Version, res)
	if err == nil && res.Outcome == Applied {
		s.logger.WarnContext(ctx, "loadout corrected", "from", rec.Status, "to", to, "reason", reason)
	}
	return res, err
}

// GetPosition returns the committed state of one position.
func (s *Service) GetPosition(ctx context.Context, missionID uint, pos core.PositionID) (core.PositionLoadout, error) {
	const op = "loadout.GetPosition"
	if !pos.Valid() {
		return core.PositionLoadout{}, core.Validation(op, fmt.Errorf("invalid position %q", pos)).At(missionID, "")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.resolver.ResolvePosition(ctx, missionID, pos)
}

func (s *Service) checkCatalog(ctx context.Context, req AssignRequest) error {
	if req.LauncherPN != "" {
		if _, err := s.catalog.GetLauncherByPartNumber(ctx, req.LauncherPN); err != nil {
			return err
		}
	}
	if req.MissilePN != "" {
		if _, err := s.catalog.GetWeaponByPartNumber(ctx, req.MissilePN); err != nil {
			return err
		}
	}
	return nil
}

// lookup returns the explicit record at pos, reporting found=false when there is none.
func (s *Service) lookup(ctx context.Context, missionID uint, pos core.PositionID) (core.LoadoutRecord, bool, error) {
	rec, err := s.missions.GetLoadout(ctx, missionID, pos)
	if err == nil {
		return rec, true, nil
	}
	if core.IsKind(err, core.KindNotFound) {
		return emptyRecord(missionID, pos), false, nil
	}
	return core.LoadoutRecord{}, false, err
}

// historical resolves the mission from the installation registers. It returns nil when
// the mission already has explicit records, which makes them authoritative for every position.
// Callers hold the mission-wide lock so the answer cannot change under them.
func (s *Service) historical(ctx context.Context, missionID uint) ([]core.PositionLoadout, error) {
	if _, err := s.missions.GetMission(ctx, missionID); err != nil {
		return nil, err
	}
	recs, err := s.missions.GetLoadouts(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		return nil, nil
	}
	return s.resolver.ResolveLoadout(ctx, missionID)
}

// seed switches a mission from its registers to explicit records. Every loaded position
// is carried over with its declared firings, and changed takes the place of its position.
func (s *Service) seed(ctx context.Context, ev Event, missionID uint, historical []core.PositionLoadout, changed core.LoadoutRecord) (Result, error) {
	recs := make([]core.LoadoutRecord, 0, len(historical))
	for _, pl := range historical {
		switch {
		case pl.Position == changed.Position:
			recs = append(recs, changed)
		case pl.Status != core.StatusEmpty:
			recs = append(recs, recordOf(missionID, pl))
		}
	}

	stored, err := s.missions.SeedLoadouts(ctx, missionID, recs)
	if err != nil {
		if core.IsKind(err, core.KindConflict) {
			s.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("event", ev.String())))
		}
		return Result{Record: changed}, err
	}
	s.invalidate(missionID)
	s.count(ctx, ev, Applied.String())
	s.logger.InfoContext(ctx, "mission switched to explicit loadout", "records", len(stored))

	for _, rec := range stored {
		if rec.Position == changed.Position {
			return Result{Record: rec, Outcome: Applied}, nil
		}
	}
	return Result{Record: changed, Outcome: Applied}, nil
}

func (s *Service) commit(ctx context.Context, ev Event, expected uint, res Result) (Result, error) {
	if res.Outcome != Applied {
		s.count(ctx, ev, res.Outcome.String())
		return res, nil
	}
	stored, err := s.missions.UpsertLoadout(ctx, res.Record, expected)
	if err != nil {
		if core.IsKind(err, core.KindConflict) {
			s.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("event", ev.String())))
		}
		return Result{Record: res.Record}, err
	}
	s.invalidate(stored.MissionID)
	s.count(ctx, ev, Applied.String())
	s.logger.DebugContext(ctx, "loadout committed", "event", ev, "status", stored.Status, "version", stored.Version)
	return Result{Record: stored, Outcome: Applied}, nil
}

func (s *Service) invalidate(missionID uint) {
	if s.cache != nil {
		s.cache.Invalidate(missionID)
	}
}

func (s *Service) count(ctx context.Context, ev Event, outcome string) {
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", ev.String()),
		attribute.String("outcome", outcome),
	))
}

func emptyRecord(missionID uint, pos core.PositionID) core.LoadoutRecord {
	return core.LoadoutRecord{MissionID: missionID, Position: pos, Status: core.StatusEmpty}
}

func recordOf(missionID uint, pl core.PositionLoadout) core.LoadoutRecord {
	return core.LoadoutRecord{
		MissionID:  missionID,
		Position:   pl.Position,
		LauncherPN: pl.LauncherPN,
		MissilePN:  pl.MissilePN,
		Status:     pl.Status,
		Version:    pl.Version,
	}
}

func rawCode(pl core.PositionLoadout) string {
	if pl.RawCode != "" {
		return pl.RawCode
	}
	code, err := position.FromCanonical(pl.Position, position.Context{Scheme: position.SchemeMnemonic})
	if err != nil {
		return string(pl.Position)
	}
	return code
}

// missionWide is the lock key taken, after the position lock, by operations that read or
// change whether a mission is resolved from its registers.
const missionWide core.PositionID = ""

type lockKey struct {
	missionID uint
	position  core.PositionID
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex serializes work per (mission, position) and forgets idle keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[lockKey]*lockEntry
}

func (k *keyedMutex) Lock(missionID uint, pos core.PositionID) (unlock func()) {
	key := lockKey{missionID: missionID, position: pos}

	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[lockKey]*lockEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
