package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/fleetops/hardpoint/internal/storage"
	"github.com/fleetops/hardpoint/pkg/core"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db
}

func TestNew(t *testing.T) {
	b := New(Dependencies{})
	require.NotNil(t, b)
	assert.Equal(t, 10, b.deps.MaxOpenConns)
	assert.NoError(t, b.Close(), "closing before Init is a no-op")
}

func TestInitClose(t *testing.T) {
	// the injected connection stands in for Postgres; only one connection keeps
	// the in-memory database alive
	b := New(Dependencies{DB: openTestDB(t), MaxOpenConns: 1})

	require.NoError(t, b.Init())
	require.NotNil(t, b.Backend)

	ctx := context.Background()
	id, err := b.CreateMission(ctx, &core.Mission{Aircraft: "AC-01", FlightNumber: 42, Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	rec, err := b.UpsertLoadout(ctx, core.LoadoutRecord{MissionID: id, Position: core.P13, LauncherPN: "LX-100", Status: core.StatusOnboard}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(1), rec.Version)

	require.NoError(t, b.Close())
}

func TestInitFailsWhenUnreachable(t *testing.T) {
	db := openTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	b := New(Dependencies{DB: db})
	assert.Error(t, b.Init())
}
