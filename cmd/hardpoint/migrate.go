package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fleetops/hardpoint/internal/config"
	"github.com/fleetops/hardpoint/internal/database"
	"github.com/fleetops/hardpoint/pkg/core"
	"gorm.io/gorm"
)

// migrateSummary is printed after migratebackups.
type migrateSummary struct {
	Target   string         `json:"target"`
	Migrated []string       `json:"migrated"`
	Rows     map[string]int `json:"rows"`
}

// openMergeTarget opens the persistent database the backups are merged into.
func openMergeTarget(cfg config.StorageConfig) (*gorm.DB, string, error) {
	switch {
	case cfg.Type == "postgres":
		db, err := database.GetPostgresDBStandalone()
		return db, "postgres", err
	case cfg.Type == "sqlite" && cfg.SqlitePath != "":
		db, err := database.GetSqliteDBStandalone(cfg.SqlitePath)
		return db, cfg.SqlitePath, err
	default:
		return nil, "", core.Validation("migratebackups",
			fmt.Errorf("storage type %q has no persistent database to merge into", cfg.Type))
	}
}

// cmdMigrateBackups merges every SQLite backup in DIR into the configured
// store and renames each merged file to *.migrated.
func cmdMigrateBackups(ctx context.Context, a *app, args []string) (any, error) {
	const op = "migratebackups"
	if err := usageError(op, args, 0, 1); err != nil {
		return nil, err
	}
	if a.remote != nil {
		return nil, core.Validation(op, fmt.Errorf("%s runs against the local store, drop --remote", op))
	}

	cfg := config.GetStorageConfig()
	dir := filepath.Join(filepath.Dir(cfg.DumpPath), "backups")
	if len(args) == 1 {
		dir = args[0]
	}

	paths, err := database.GetBackupDBPaths(dir)
	if err != nil {
		return nil, fmt.Errorf("error getting backup database paths: %w", err)
	}

	target, name, err := openMergeTarget(cfg)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := target.DB(); err == nil {
		defer sqlDB.Close()
	}

	summary := migrateSummary{Target: name, Migrated: []string{}, Rows: map[string]int{}}
	log := ZLogger.With().Str("component", "migrate").Logger()
	for _, path := range paths {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if cfg.SqlitePath != "" && mustAbs(path) == mustAbs(cfg.SqlitePath) {
			continue
		}

		src, err := database.GetSqliteDBStandalone(path)
		if err != nil {
			return summary, fmt.Errorf("error opening backup %s: %w", path, err)
		}
		stats, err := database.MergeBackup(ctx, src, target, log.With().Str("backup", path).Logger())
		if sqlDB, dbErr := src.DB(); dbErr == nil {
			sqlDB.Close()
		}
		if err != nil {
			return summary, fmt.Errorf("error merging backup %s: %w", path, err)
		}

		if err := os.Rename(path, path+".migrated"); err != nil {
			Logger.Warn("Merged backup could not be renamed", "path", path, "error", err)
		}
		summary.Migrated = append(summary.Migrated, path)
		for table, n := range stats {
			summary.Rows[table] += n
		}
		Logger.Info("Merged backup", "path", path, "rows", stats.Total())
	}
	return summary, nil
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
