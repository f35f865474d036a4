// internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/fleetops/hardpoint/pkg/core"
)

// MissionStore persists missions, per-position loadouts and installation history.
// Every method returns *core.Error values; driver failures surface as core.KindStore.
type MissionStore interface {
	// CreateMission assigns m.ID. Fails with core.ErrDuplicateFlightNumber (conflict)
	// when (aircraft, flight number) already exists.
	CreateMission(ctx context.Context, m *core.Mission) (uint, error)
	GetMission(ctx context.Context, id uint) (core.Mission, error)

	// UpsertLoadout writes rec atomically if the stored version equals expectedVersion
	// (zero for a position never written). Returns the stored record with its new version.
	UpsertLoadout(ctx context.Context, rec core.LoadoutRecord, expectedVersion uint) (core.LoadoutRecord, error)
	// SeedLoadouts writes the first explicit records of a mission in one transaction,
	// each at version 1. It fails with core.ErrStaleVersion (conflict) when the mission
	// already has any explicit record.
	SeedLoadouts(ctx context.Context, missionID uint, recs []core.LoadoutRecord) ([]core.LoadoutRecord, error)
	GetLoadouts(ctx context.Context, missionID uint) ([]core.LoadoutRecord, error)
	// GetLoadout returns a core.KindNotFound error when the position has no record.
	GetLoadout(ctx context.Context, missionID uint, pos core.PositionID) (core.LoadoutRecord, error)

	DeclareFiring(ctx context.Context, d core.FiringDeclaration) error
	GetFiringDeclarations(ctx context.Context, missionID uint) ([]core.FiringDeclaration, error)

	GetMissionHistoryForLauncher(ctx context.Context, partNumber string) ([]core.MissionHistoryEntry, error)

	// GetInstalledLauncherAt and GetEmbarkedMissileAt return ok=false when nothing is installed.
	// More than one active window is a core.ErrOverlappingIntervals data-integrity error.
	GetInstalledLauncherAt(ctx context.Context, aircraft string, pos core.PositionID, date time.Time) (core.InstallationWindow, bool, error)
	GetEmbarkedMissileAt(ctx context.Context, aircraft string, pos core.PositionID, date time.Time) (core.InstallationWindow, bool, error)

	RecordInstallation(ctx context.Context, w core.InstallationWindow) error
	GetMovementHistory(ctx context.Context, partNumber string) ([]core.InstallationWindow, error)

	RecordFlightData(ctx context.Context, fd core.FlightData) error
	GetFlightData(ctx context.Context, missionID uint) (core.FlightData, error)
}

// CatalogStore is the read side of launcher and weapon master data.
// PutLauncher and PutWeapon exist for seeding and tests.
type CatalogStore interface {
	GetLauncherByPartNumber(ctx context.Context, pn string) (core.LauncherInfo, error)
	GetWeaponByPartNumber(ctx context.Context, pn string) (core.WeaponInfo, error)
	ListLaunchers(ctx context.Context) ([]core.LauncherInfo, error)
	PutLauncher(ctx context.Context, l core.LauncherInfo) error
	PutWeapon(ctx context.Context, w core.WeaponInfo) error
}

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	MissionStore
	CatalogStore
}
