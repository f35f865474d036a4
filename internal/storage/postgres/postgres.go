// Package postgres implements the storage.Backend interface on PostgreSQL.
// Queries are shared with the SQLite backend through the GORM backend; this
// package owns the connection lifecycle.
package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetops/hardpoint/internal/database"
	gormstorage "github.com/fleetops/hardpoint/internal/storage/gorm"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	// DB is optional. When nil, Init connects using the db.* configuration keys.
	DB                  *gorm.DB
	Logger              *slog.Logger
	MaxOpenConns        int
	ImportFlushInterval time.Duration
}

// Backend implements storage.Backend on PostgreSQL.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new Postgres storage backend. No connection is made until Init.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxOpenConns <= 0 {
		deps.MaxOpenConns = 10
	}
	return &Backend{deps: deps}
}

// Init connects if needed, validates the connection and migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.GetPostgresDBStandalone()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.deps.DB = db
	}

	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(b.deps.MaxOpenConns)

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:                  b.deps.DB,
		Logger:              b.deps.Logger,
		ImportFlushInterval: b.deps.ImportFlushInterval,
	})
	if err := b.Backend.Init(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.deps.Logger.Info("Database setup complete", "dialect", b.deps.DB.Name())
	return nil
}

// Close flushes pending writes and closes the connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	err := b.Backend.Close()
	if sqlDB, dbErr := b.deps.DB.DB(); dbErr == nil {
		if closeErr := sqlDB.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
