package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/hardpoint/internal/loadout"
	"github.com/fleetops/hardpoint/internal/storage/memory"
	"github.com/fleetops/hardpoint/pkg/core"
)

type recordingSink struct {
	mu  sync.Mutex
	got []core.LauncherStatus
}

func (s *recordingSink) Record(status core.LauncherStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, status)
}

func newTestEngine(t *testing.T) (*Engine, *memory.Backend, *recordingSink) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.PutLauncher(ctx, core.LauncherInfo{PartNumber: "LX-100", Nomenclature: "LAU-7"}))
	require.NoError(t, store.PutWeapon(ctx, core.WeaponInfo{PartNumber: "MX-200", Nomenclature: "AIM-9"}))

	sink := &recordingSink{}
	e, err := New(store, store, Options{StoreTimeout: time.Second, Sink: sink})
	require.NoError(t, err)
	return e, store, sink
}

func TestNewRequiresStores(t *testing.T) {
	_, err := New(nil, nil, Options{})
	assert.Error(t, err)
}

func TestMissionLifecycle(t *testing.T) {
	e, _, sink := newTestEngine(t)
	ctx := context.Background()

	m, err := e.CreateMission(ctx, MissionInput{
		Aircraft: "AC-01", FlightNumber: 42, Date: "2024-01-10", Departure: "08:00", Arrival: "10:30",
	})
	require.NoError(t, err)
	require.NotZero(t, m.ID)

	res, err := e.AssignPosition(ctx, m.ID, core.P1, loadout.AssignRequest{LauncherPN: "LX-100", MissilePN: "MX-200"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusOnboard, res.Record.Status)

	out, err := e.ResolveLoadout(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, out, core.PositionCount)
	assert.Equal(t, core.StatusOnboard, out[0].Status)
	assert.Equal(t, core.SourceExplicit, out[0].Source)

	res, err = e.FirePosition(ctx, m.ID, core.P1)
	require.NoError(t, err)
	assert.Equal(t, loadout.Applied, res.Outcome)

	// the fire invalidated the cached resolution
	out, err = e.ResolveLoadout(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFired, out[0].Status)

	_, err = e.AssignPosition(ctx, m.ID, core.P13, loadout.AssignRequest{MissilePN: "MX-200"})
	assert.True(t, core.IsKind(err, core.KindValidation))

	_, err = e.CreateMission(ctx, MissionInput{Aircraft: "AC-01", FlightNumber: 42, Date: "2024-02-01"})
	assert.True(t, core.IsKind(err, core.KindConflict))
	assert.ErrorIs(t, err, core.ErrDuplicateFlightNumber)

	status, err := e.LauncherStatus(ctx, "LX-100")
	require.NoError(t, err)
	assert.Equal(t, "LAU-7", status.Name)
	assert.Equal(t, 1, status.MissionCount)
	assert.Equal(t, 1, status.FiringCount)
	assert.Equal(t, 0, status.NonFiringCount)
	assert.InDelta(t, 2.5, status.FlightHours, 1e-9)
	assert.InDelta(t, 95.0, status.RemainingLifePct, 1e-9)
	assert.Equal(t, core.ClassOK, status.Maintenance)
	require.Len(t, sink.got, 1)

	history, err := e.LauncherHistory(ctx, "LX-100")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, m.ID, history[0].MissionID)
	assert.True(t, history[0].Fired)
}

func TestCreateMissionValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   MissionInput
	}{
		{"missing aircraft", MissionInput{FlightNumber: 1, Date: "2024-01-10"}},
		{"zero flight", MissionInput{Aircraft: "AC-01", Date: "2024-01-10"}},
		{"missing date", MissionInput{Aircraft: "AC-01", FlightNumber: 1}},
		{"bad date", MissionInput{Aircraft: "AC-01", FlightNumber: 1, Date: "10/01/2024"}},
		{"bad departure", MissionInput{Aircraft: "AC-01", FlightNumber: 1, Date: "2024-01-10", Departure: "25:00"}},
		{"bad arrival", MissionInput{Aircraft: "AC-01", FlightNumber: 1, Date: "2024-01-10", Arrival: "8am"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateMission(ctx, tt.in)
			assert.True(t, core.IsKind(err, core.KindValidation), "got %v", err)
		})
	}
}

func TestMissionInputTimes(t *testing.T) {
	m, err := MissionInput{Aircraft: " AC-01 ", FlightNumber: 3, Date: "2024-01-10", Departure: "22:30", Arrival: "01:15"}.Mission()
	require.NoError(t, err)
	assert.Equal(t, "AC-01", m.Aircraft)
	assert.Equal(t, "22:30", m.Departure.String())
	assert.InDelta(t, 2.75, m.FlightHours(), 1e-9)

	m, err = MissionInput{Aircraft: "AC-01", FlightNumber: 3, Date: "2024-01-10"}.Mission()
	require.NoError(t, err)
	assert.Nil(t, m.Departure)
	assert.Nil(t, m.Arrival)
}

func TestLauncherStatusUnknown(t *testing.T) {
	e, _, sink := newTestEngine(t)
	_, err := e.LauncherStatus(context.Background(), "LX-404")
	assert.True(t, core.IsKind(err, core.KindNotFound))
	assert.Empty(t, sink.got)

	_, err = e.LauncherHistory(context.Background(), "LX-404")
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestFatigueClassificationOverMissions(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		m, err := e.CreateMission(ctx, MissionInput{Aircraft: "AC-01", FlightNumber: i, Date: "2024-01-10"})
		require.NoError(t, err)
		_, err = e.AssignPosition(ctx, m.ID, core.P13, loadout.AssignRequest{LauncherPN: "LX-100", MissilePN: "MX-200"})
		require.NoError(t, err)
	}

	status, err := e.LauncherStatus(ctx, "LX-100")
	require.NoError(t, err)
	assert.Equal(t, 7, status.MissionCount)
	assert.Equal(t, 7, status.NonFiringCount)
	assert.InDelta(t, 65.0, status.RemainingLifePct, 1e-9)
	assert.Equal(t, core.ClassAttention, status.Maintenance)
}

func TestFleetStatus(t *testing.T) {
	e, store, sink := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, store.PutLauncher(ctx, core.LauncherInfo{PartNumber: "LX-050"}))

	fleet, err := e.FleetStatus(ctx)
	require.NoError(t, err)
	require.Len(t, fleet, 2)
	assert.Equal(t, "LX-050", fleet[0].PartNumber)
	assert.Equal(t, "LX-100", fleet[1].PartNumber)
	assert.InDelta(t, 100.0, fleet[0].RemainingLifePct, 1e-9)
	assert.Len(t, sink.got, 2)
}

func TestRecordFlightDataDerivesSummary(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	m, err := e.CreateMission(ctx, MissionInput{Aircraft: "AC-01", FlightNumber: 1, Date: "2024-01-10"})
	require.NoError(t, err)
	_, err = e.AssignPosition(ctx, m.ID, core.P1, loadout.AssignRequest{LauncherPN: "LX-100", MissilePN: "MX-200"})
	require.NoError(t, err)
	_, err = e.AssignPosition(ctx, m.ID, core.P13, loadout.AssignRequest{LauncherPN: "LX-100", MissilePN: "MX-200"})
	require.NoError(t, err)
	_, err = e.FirePosition(ctx, m.ID, core.P1)
	require.NoError(t, err)

	fd, err := e.RecordFlightData(ctx, core.FlightData{MissionID: m.ID, GLoadMax: 7.5, GLoadMin: -2, AvgAltitude: 18000, MaxSpeed: 620})
	require.NoError(t, err)
	assert.Equal(t, "P1:SPARATO; P13:A_BORDO", fd.MissileStatus)

	got, err := e.GetFlightData(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, fd.MissileStatus, got.MissileStatus)
	assert.Equal(t, 620, got.MaxSpeed)
}

func TestRecordFlightDataValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	m, err := e.CreateMission(ctx, MissionInput{Aircraft: "AC-01", FlightNumber: 1, Date: "2024-01-10"})
	require.NoError(t, err)

	_, err = e.RecordFlightData(ctx, core.FlightData{MissionID: m.ID, GLoadMax: 1, GLoadMin: 3})
	assert.True(t, core.IsKind(err, core.KindValidation))

	_, err = e.RecordFlightData(ctx, core.FlightData{MissionID: m.ID, MissileStatus: "P1:LOST"})
	assert.True(t, core.IsKind(err, core.KindValidation))

	fd, err := e.RecordFlightData(ctx, core.FlightData{MissionID: m.ID, MissileStatus: "P13:a_bordo;P1:SPARATO"})
	require.NoError(t, err)
	assert.Equal(t, "P1:SPARATO; P13:A_BORDO", fd.MissileStatus)

	_, err = e.RecordFlightData(ctx, core.FlightData{MissionID: 999})
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestRecordInstallationDropsCachedLoadouts(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	m, err := e.CreateMission(ctx, MissionInput{Aircraft: "AC-01", FlightNumber: 1, Date: "2024-01-10"})
	require.NoError(t, err)

	out, err := e.ResolveLoadout(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusEmpty, out[2].Status)

	installed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, w := range []core.InstallationWindow{
		{Kind: core.KindLauncher, Aircraft: "AC-01", Position: core.P3, PositionCode: "CTR 5", PartNumber: "LX-100", InstalledAt: installed},
		{Kind: core.KindMissile, Aircraft: "AC-01", Position: core.P3, PositionCode: "CTR 5", PartNumber: "MX-200", InstalledAt: installed},
	} {
		require.NoError(t, e.RecordInstallation(ctx, w))
	}

	out, err = e.ResolveLoadout(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusOnboard, out[2].Status)
	assert.Equal(t, core.SourceHistorical, out[2].Source)

	moves, err := e.MovementHistory(ctx, "LX-100")
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, "Embarkation", moves[0].Action())
}

func TestCorrectPosition(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	m, err := e.CreateMission(ctx, MissionInput{Aircraft: "AC-01", FlightNumber: 1, Date: "2024-01-10"})
	require.NoError(t, err)
	_, err = e.AssignPosition(ctx, m.ID, core.P1, loadout.AssignRequest{LauncherPN: "LX-100", MissilePN: "MX-200"})
	require.NoError(t, err)
	_, err = e.FirePosition(ctx, m.ID, core.P1)
	require.NoError(t, err)

	res, err := e.CorrectPosition(ctx, m.ID, core.P1, core.StatusOnboard, "fired by mistake")
	require.NoError(t, err)
	assert.Equal(t, core.StatusOnboard, res.Record.Status)

	out, err := e.ResolveLoadout(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusOnboard, out[0].Status)
}

func TestCatalogUpdatesRefreshNames(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	s, err := e.LauncherStatus(ctx, "LX-100")
	require.NoError(t, err)
	assert.Equal(t, "LAU-7", s.Name)

	require.NoError(t, e.PutLauncher(ctx, core.LauncherInfo{PartNumber: "LX-100", Nomenclature: "LAU-7/A"}))
	s, err = e.LauncherStatus(ctx, "LX-100")
	require.NoError(t, err)
	assert.Equal(t, "LAU-7/A", s.Name)

	require.NoError(t, e.PutWeapon(ctx, core.WeaponInfo{PartNumber: "MX-300"}))
	launchers, err := e.Launchers(ctx)
	require.NoError(t, err)
	assert.Len(t, launchers, 1)
}

// stallingStore holds the first armed read of firing declarations until released,
// leaving a resolve suspended after it has read the mission's records.
type stallingStore struct {
	*memory.Backend
	armed   bool
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (s *stallingStore) GetFiringDeclarations(ctx context.Context, missionID uint) ([]core.FiringDeclaration, error) {
	if s.armed {
		s.once.Do(func() {
			close(s.reached)
			<-s.release
		})
	}
	return s.Backend.GetFiringDeclarations(ctx, missionID)
}

func TestWriteDuringResolveIsNotCachedStale(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, backend.PutLauncher(ctx, core.LauncherInfo{PartNumber: "LX-100"}))
	require.NoError(t, backend.PutWeapon(ctx, core.WeaponInfo{PartNumber: "MX-200"}))
	store := &stallingStore{Backend: backend, reached: make(chan struct{}), release: make(chan struct{})}

	e, err := New(store, backend, Options{StoreTimeout: time.Second})
	require.NoError(t, err)
	m, err := e.CreateMission(ctx, MissionInput{Aircraft: "AC-01", FlightNumber: 1, Date: "2024-01-10"})
	require.NoError(t, err)
	_, err = e.AssignPosition(ctx, m.ID, core.P1, loadout.AssignRequest{LauncherPN: "LX-100", MissilePN: "MX-200"})
	require.NoError(t, err)

	store.armed = true
	done := make(chan []core.PositionLoadout)
	go func() {
		out, err := e.ResolveLoadout(ctx, m.ID)
		assert.NoError(t, err)
		done <- out
	}()

	<-store.reached
	res, err := e.FirePosition(ctx, m.ID, core.P1)
	require.NoError(t, err)
	require.Equal(t, loadout.Applied, res.Outcome)
	close(store.release)

	stale := <-done
	assert.Equal(t, core.StatusOnboard, stale[0].Status)

	out, err := e.ResolveLoadout(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFired, out[0].Status)
}
