package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fleetops/hardpoint/internal/storage"
	"github.com/fleetops/hardpoint/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*Backend)(nil)

// Verify Backend implements storage.HistorySource interface
var _ storage.HistorySource = (*Backend)(nil)

func day(s string) time.Time {
	t, err := time.Parse(core.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

func newMission(t *testing.T, b *Backend, aircraft string, flight int, date string) uint {
	t.Helper()
	dep := core.NewTimeOfDay(9, 0)
	arr := core.NewTimeOfDay(11, 30)
	id, err := b.CreateMission(context.Background(), &core.Mission{
		Aircraft:     aircraft,
		FlightNumber: flight,
		Date:         day(date),
		Departure:    &dep,
		Arrival:      &arr,
	})
	require.NoError(t, err)
	return id
}

func TestInitAndClose(t *testing.T) {
	b := New()
	assert.NoError(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestCreateMission(t *testing.T) {
	b := New()
	ctx := context.Background()

	m := &core.Mission{Aircraft: "AC-01", FlightNumber: 42, Date: time.Date(2024, 1, 10, 15, 4, 0, 0, time.UTC)}
	id, err := b.CreateMission(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, uint(1), id)
	assert.Equal(t, id, m.ID)

	got, err := b.GetMission(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-10"), got.Date)

	_, err = b.CreateMission(ctx, &core.Mission{Aircraft: "AC-01", FlightNumber: 42, Date: day("2024-02-01")})
	assert.True(t, core.IsKind(err, core.KindConflict))
	assert.ErrorIs(t, err, core.ErrDuplicateFlightNumber)

	// same flight number on another aircraft is allowed
	_, err = b.CreateMission(ctx, &core.Mission{Aircraft: "AC-02", FlightNumber: 42, Date: day("2024-01-10")})
	assert.NoError(t, err)
}

func TestGetMissionNotFound(t *testing.T) {
	_, err := New().GetMission(context.Background(), 99)
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestUpsertLoadoutVersioning(t *testing.T) {
	b := New()
	ctx := context.Background()
	id := newMission(t, b, "AC-01", 1, "2024-01-10")

	rec := core.LoadoutRecord{MissionID: id, Position: core.P1, LauncherPN: "LX-100", MissilePN: "MX-200", Status: core.StatusOnboard}
	stored, err := b.UpsertLoadout(ctx, rec, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(1), stored.Version)
	assert.False(t, stored.UpdatedAt.IsZero())

	stored.Status = core.StatusFired
	stored, err = b.UpsertLoadout(ctx, stored, stored.Version)
	require.NoError(t, err)
	assert.Equal(t, uint(2), stored.Version)

	// a writer still holding version 1 loses
	_, err = b.UpsertLoadout(ctx, rec, 1)
	assert.True(t, core.IsKind(err, core.KindConflict))
	assert.ErrorIs(t, err, core.ErrStaleVersion)

	got, err := b.GetLoadout(ctx, id, core.P1)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFired, got.Status)
}

func TestSeedLoadouts(t *testing.T) {
	b := New()
	ctx := context.Background()
	id := newMission(t, b, "AC-01", 1, "2024-01-10")

	seeded, err := b.SeedLoadouts(ctx, id, []core.LoadoutRecord{
		{Position: core.P1, LauncherPN: "LX-100", MissilePN: "MX-200", Status: core.StatusFired},
		{Position: core.P13, LauncherPN: "LX-101", Status: core.StatusOnboard},
	})
	require.NoError(t, err)
	require.Len(t, seeded, 2)
	for _, rec := range seeded {
		assert.Equal(t, id, rec.MissionID)
		assert.Equal(t, uint(1), rec.Version)
	}

	recs, err := b.GetLoadouts(ctx, id)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, core.StatusFired, recs[0].Status)
	assert.Equal(t, "LX-101", recs[1].LauncherPN)

	// only the first explicit write may seed
	_, err = b.SeedLoadouts(ctx, id, []core.LoadoutRecord{{Position: core.P2, LauncherPN: "LX", Status: core.StatusOnboard}})
	assert.True(t, core.IsKind(err, core.KindConflict))
	assert.ErrorIs(t, err, core.ErrStaleVersion)

	_, err = b.SeedLoadouts(ctx, 77, []core.LoadoutRecord{{Position: core.P1, LauncherPN: "LX", Status: core.StatusOnboard}})
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestSeedLoadoutsRejectsInvalid(t *testing.T) {
	b := New()
	ctx := context.Background()
	id := newMission(t, b, "AC-01", 1, "2024-01-10")

	_, err := b.SeedLoadouts(ctx, id, []core.LoadoutRecord{
		{Position: core.P1, LauncherPN: "LX-100", Status: core.StatusOnboard},
		{Position: core.P13, MissilePN: "MX-200", Status: core.StatusOnboard},
	})
	assert.ErrorIs(t, err, core.ErrMissileBeforeLauncher)

	recs, err := b.GetLoadouts(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestUpsertLoadoutRejectsInvalid(t *testing.T) {
	b := New()
	ctx := context.Background()
	id := newMission(t, b, "AC-01", 1, "2024-01-10")

	_, err := b.UpsertLoadout(ctx, core.LoadoutRecord{MissionID: id, Position: core.P13, MissilePN: "MX-200", Status: core.StatusOnboard}, 0)
	assert.ErrorIs(t, err, core.ErrMissileBeforeLauncher)

	_, err = b.UpsertLoadout(ctx, core.LoadoutRecord{MissionID: 77, Position: core.P1, LauncherPN: "LX", Status: core.StatusOnboard}, 0)
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestUpsertLoadoutConcurrentWritersOneWins(t *testing.T) {
	b := New()
	ctx := context.Background()
	id := newMission(t, b, "AC-01", 1, "2024-01-10")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.UpsertLoadout(ctx, core.LoadoutRecord{MissionID: id, Position: core.P1, LauncherPN: "LX-100", Status: core.StatusOnboard}, 0)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, core.ErrStaleVersion) {
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 9, conflicts)
}

func TestGetLoadoutsStationOrder(t *testing.T) {
	b := New()
	ctx := context.Background()
	id := newMission(t, b, "AC-01", 1, "2024-01-10")

	for _, p := range []core.PositionID{core.P13, core.P1} {
		_, err := b.UpsertLoadout(ctx, core.LoadoutRecord{MissionID: id, Position: p, LauncherPN: "LX", Status: core.StatusOnboard}, 0)
		require.NoError(t, err)
	}
	recs, err := b.GetLoadouts(ctx, id)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, core.P1, recs[0].Position)
	assert.Equal(t, core.P13, recs[1].Position)

	_, err = b.GetLoadout(ctx, id, core.P5)
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestDeclareFiringUpserts(t *testing.T) {
	b := New()
	ctx := context.Background()
	id := newMission(t, b, "AC-01", 1, "2024-01-10")

	require.NoError(t, b.DeclareFiring(ctx, core.FiringDeclaration{MissionID: id, PositionCode: "O/B 3", Fired: true}))
	require.NoError(t, b.DeclareFiring(ctx, core.FiringDeclaration{MissionID: id, PositionCode: "O/B 3", Fired: false}))
	require.NoError(t, b.DeclareFiring(ctx, core.FiringDeclaration{MissionID: id, PositionCode: "ADAtre1", Fired: true}))

	decls, err := b.GetFiringDeclarations(ctx, id)
	require.NoError(t, err)
	require.Len(t, decls, 2)
	assert.Equal(t, "ADAtre1", decls[0].PositionCode)
	assert.Equal(t, "O/B 3", decls[1].PositionCode)
	assert.False(t, decls[1].Fired)
	assert.False(t, decls[1].DeclaredAt.IsZero())

	err = b.DeclareFiring(ctx, core.FiringDeclaration{MissionID: id, PositionCode: "  "})
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestInstallationWindows(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.RecordInstallation(ctx, core.InstallationWindow{
		Kind: core.KindLauncher, Aircraft: "AC-01", Position: core.P2, PositionCode: "O/B 3",
		PartNumber: "LX-1", InstalledAt: day("2024-01-01"), RemovedAt: ptr(day("2024-01-31")),
	}))
	require.NoError(t, b.RecordInstallation(ctx, core.InstallationWindow{
		Kind: core.KindLauncher, Aircraft: "AC-01", Position: core.P2, PositionCode: "O/B 3",
		PartNumber: "LX-2", InstalledAt: day("2024-02-01"),
	}))

	w, ok, err := b.GetInstalledLauncherAt(ctx, "AC-01", core.P2, day("2024-01-31"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "LX-1", w.PartNumber)

	w, ok, err = b.GetInstalledLauncherAt(ctx, "AC-01", core.P2, day("2024-06-01"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "LX-2", w.PartNumber)

	_, ok, err = b.GetInstalledLauncherAt(ctx, "AC-01", core.P2, day("2023-12-31"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = b.GetEmbarkedMissileAt(ctx, "AC-01", core.P2, day("2024-06-01"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInstallationOverlapIsDataIntegrity(t *testing.T) {
	b := New()
	ctx := context.Background()

	for _, pn := range []string{"MX-1", "MX-2"} {
		require.NoError(t, b.RecordInstallation(ctx, core.InstallationWindow{
			Kind: core.KindMissile, Aircraft: "AC-01", Position: core.P3, PositionCode: "CTR 5",
			PartNumber: pn, InstalledAt: day("2024-01-01"),
		}))
	}
	_, _, err := b.GetEmbarkedMissileAt(ctx, "AC-01", core.P3, day("2024-01-05"))
	assert.True(t, core.IsKind(err, core.KindDataIntegrity))
	assert.ErrorIs(t, err, core.ErrOverlappingIntervals)
}

func TestRecordInstallationValidation(t *testing.T) {
	b := New()
	err := b.RecordInstallation(context.Background(), core.InstallationWindow{
		Kind: core.KindLauncher, Aircraft: "AC-01", Position: core.P1, PartNumber: "LX",
		InstalledAt: day("2024-02-01"), RemovedAt: ptr(day("2024-01-01")),
	})
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestMovementHistory(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.NoError(t, b.RecordInstallation(ctx, core.InstallationWindow{
		Kind: core.KindLauncher, Aircraft: "AC-01", Position: core.P1, PartNumber: "LX-1",
		InstalledAt: day("2024-01-01"), RemovedAt: ptr(day("2024-01-31")),
	}))
	require.NoError(t, b.RecordInstallation(ctx, core.InstallationWindow{
		Kind: core.KindLauncher, Aircraft: "AC-02", Position: core.P13, PartNumber: "LX-1",
		InstalledAt: day("2024-03-01"),
	}))

	moves, err := b.GetMovementHistory(ctx, "LX-1")
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, "AC-02", moves[0].Aircraft)
	assert.Equal(t, "Embarkation", moves[0].Action())
	assert.Equal(t, "Disembarkation", moves[1].Action())
}

func TestFlightData(t *testing.T) {
	b := New()
	ctx := context.Background()
	id := newMission(t, b, "AC-01", 1, "2024-01-10")

	_, err := b.GetFlightData(ctx, id)
	assert.True(t, core.IsKind(err, core.KindNotFound))

	require.NoError(t, b.RecordFlightData(ctx, core.FlightData{MissionID: id, GLoadMax: 6.5, MissileStatus: "P1:SPARATO"}))
	fd, err := b.GetFlightData(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 6.5, fd.GLoadMax, 1e-9)
}

func TestCatalog(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.PutLauncher(ctx, core.LauncherInfo{PartNumber: "LX-2", Nomenclature: "Rail"}))
	require.NoError(t, b.PutLauncher(ctx, core.LauncherInfo{PartNumber: "LX-1", Nomenclature: "Pylon"}))
	require.NoError(t, b.PutWeapon(ctx, core.WeaponInfo{PartNumber: "MX-1"}))

	l, err := b.GetLauncherByPartNumber(ctx, "LX-1")
	require.NoError(t, err)
	assert.Equal(t, "Pylon", l.Nomenclature)

	all, err := b.ListLaunchers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "LX-1", all[0].PartNumber)

	_, err = b.GetWeaponByPartNumber(ctx, "MX-9")
	assert.True(t, core.IsKind(err, core.KindNotFound))

	assert.True(t, core.IsKind(b.PutLauncher(ctx, core.LauncherInfo{}), core.KindValidation))
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().GetMission(ctx, 1)
	assert.True(t, core.IsKind(err, core.KindStore))
}

func TestLauncherHistory(t *testing.T) {
	b := New()
	ctx := context.Background()

	explicitID := newMission(t, b, "AC-01", 1, "2024-01-05")
	historicalID := newMission(t, b, "AC-01", 2, "2024-01-10")
	unloadedID := newMission(t, b, "AC-01", 3, "2024-01-20")
	outsideID := newMission(t, b, "AC-01", 4, "2024-03-01")

	// explicit mission carries LX-1 at P1
	_, err := b.UpsertLoadout(ctx, core.LoadoutRecord{MissionID: explicitID, Position: core.P1, LauncherPN: "LX-1", MissilePN: "MX-1", Status: core.StatusFired}, 0)
	require.NoError(t, err)

	// LX-1 installed at P2 through January, missile embarked until the 15th
	require.NoError(t, b.RecordInstallation(ctx, core.InstallationWindow{
		Kind: core.KindLauncher, Aircraft: "AC-01", Position: core.P2, PositionCode: "O/B 3",
		PartNumber: "LX-1", InstalledAt: day("2024-01-01"), RemovedAt: ptr(day("2024-01-31")),
	}))
	require.NoError(t, b.RecordInstallation(ctx, core.InstallationWindow{
		Kind: core.KindMissile, Aircraft: "AC-01", Position: core.P2, PositionCode: "O/B 3",
		PartNumber: "MX-7", InstalledAt: day("2024-01-01"), RemovedAt: ptr(day("2024-01-15")),
	}))
	require.NoError(t, b.DeclareFiring(ctx, core.FiringDeclaration{MissionID: historicalID, PositionCode: "O/B 3", Fired: true}))

	history, err := b.GetMissionHistoryForLauncher(ctx, "LX-1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, historicalID, history[0].MissionID)
	assert.True(t, history[0].Fired)
	assert.InDelta(t, 2.5, history[0].FlightHours, 1e-9)

	assert.Equal(t, explicitID, history[1].MissionID)
	assert.True(t, history[1].Fired)

	for _, e := range history {
		assert.NotEqual(t, unloadedID, e.MissionID)
		assert.NotEqual(t, outsideID, e.MissionID)
	}
}

func TestLauncherHistoryUnmappedDeclaration(t *testing.T) {
	b := New()
	ctx := context.Background()
	id := newMission(t, b, "AC-01", 1, "2024-01-10")

	for _, kind := range []core.ItemKind{core.KindLauncher, core.KindMissile} {
		require.NoError(t, b.RecordInstallation(ctx, core.InstallationWindow{
			Kind: kind, Aircraft: "AC-01", Position: core.P1, PositionCode: "TIP 1",
			PartNumber: "PN-" + string(kind), InstalledAt: day("2024-01-01"),
		}))
	}
	require.NoError(t, b.DeclareFiring(ctx, core.FiringDeclaration{MissionID: id, PositionCode: "WING 99", Fired: true}))

	_, err := b.GetMissionHistoryForLauncher(ctx, "PN-launcher")
	assert.True(t, core.IsKind(err, core.KindDataIntegrity))
	assert.ErrorIs(t, err, core.ErrUnmappedCode)
}

func TestLauncherHistoryOverlappingLaunchers(t *testing.T) {
	b := New()
	ctx := context.Background()
	id := newMission(t, b, "AC-01", 1, "2024-01-10")

	// two launchers recorded at P2 over the same dates
	for _, pn := range []string{"LX-1", "LX-2"} {
		require.NoError(t, b.RecordInstallation(ctx, core.InstallationWindow{
			Kind: core.KindLauncher, Aircraft: "AC-01", Position: core.P2, PositionCode: "O/B 3",
			PartNumber: pn, InstalledAt: day("2024-01-01"),
		}))
	}
	require.NoError(t, b.RecordInstallation(ctx, core.InstallationWindow{
		Kind: core.KindMissile, Aircraft: "AC-01", Position: core.P2, PositionCode: "O/B 3",
		PartNumber: "MX-7", InstalledAt: day("2024-01-01"),
	}))

	_, err := b.GetMissionHistoryForLauncher(ctx, "LX-1")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindDataIntegrity))
	assert.ErrorIs(t, err, core.ErrOverlappingIntervals)

	var e *core.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, id, e.MissionID)
}

func TestLauncherHistoryWithdrawnDeclaration(t *testing.T) {
	b := New()
	ctx := context.Background()
	id := newMission(t, b, "AC-01", 1, "2024-01-10")

	for _, kind := range []core.ItemKind{core.KindLauncher, core.KindMissile} {
		require.NoError(t, b.RecordInstallation(ctx, core.InstallationWindow{
			Kind: kind, Aircraft: "AC-01", Position: core.P2, PositionCode: "O/B 3",
			PartNumber: "PN-" + string(kind), InstalledAt: day("2024-01-01"),
		}))
	}
	t0 := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, b.DeclareFiring(ctx, core.FiringDeclaration{MissionID: id, PositionCode: "ADAtre2", Fired: true, DeclaredAt: t0}))
	require.NoError(t, b.DeclareFiring(ctx, core.FiringDeclaration{MissionID: id, PositionCode: "O/B 3", Fired: false, DeclaredAt: t0.Add(time.Hour)}))

	history, err := b.GetMissionHistoryForLauncher(ctx, "PN-launcher")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Fired)
}
