package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fleetops/hardpoint/internal/config"
	"github.com/fleetops/hardpoint/internal/engine"
	"github.com/fleetops/hardpoint/internal/influx"
	"github.com/fleetops/hardpoint/internal/position"
	"github.com/fleetops/hardpoint/internal/storage"
	"github.com/fleetops/hardpoint/internal/storage/memory"
	pgstorage "github.com/fleetops/hardpoint/internal/storage/postgres"
	sqlitestorage "github.com/fleetops/hardpoint/internal/storage/sqlite"
)

func createStorageBackend(storageCfg config.StorageConfig, logger *slog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Dependencies{
			Logger:              logger,
			ImportFlushInterval: storageCfg.ImportFlushInterval,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:                storageCfg.SqlitePath,
			DumpInterval:        storageCfg.DumpInterval,
			DumpPath:            storageCfg.DumpPath,
			ImportFlushInterval: storageCfg.ImportFlushInterval,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "path", storageCfg.SqlitePath, "dumpPath", storageCfg.DumpPath)
		return backend, nil

	case "memory":
		logger.Info("Memory storage backend initialized")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// local is the in-process side of the binary: store, exporter and engine.
type local struct {
	backend storage.Backend
	influx  *influx.Manager
	engine  *engine.Engine
}

func openLocal(ctx context.Context, logger *slog.Logger) (*local, error) {
	backend, err := createStorageBackend(config.GetStorageConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	l := &local{backend: backend}

	opts := engine.Options{Logger: logger}

	influxCfg := config.GetInfluxConfig()
	mgr := influx.NewManager(ZLogger.With().Str("component", "influx").Logger(), influxCfg)
	switch err := mgr.Connect(ctx); {
	case err == nil:
		mgr.Start(influxCfg.FlushInterval)
		l.influx = mgr
		opts.Sink = mgr
	case errors.Is(err, influx.ErrDisabled):
		logger.Debug("Fatigue snapshot export disabled")
	default:
		logger.Warn("Fatigue snapshot export unavailable", "error", err)
	}

	loadoutCfg := config.GetLoadoutConfig()
	for _, code := range loadoutCfg.ConfigurablePositions {
		pos, err := position.Parse(code)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("loadout.configurablePositions: %w", err)
		}
		opts.ConfigurablePositions = append(opts.ConfigurablePositions, pos)
	}
	opts.StoreTimeout = loadoutCfg.StoreTimeout
	opts.DamagePerMission = config.GetFatigueConfig().DamagePerMission

	l.engine, err = engine.New(backend, backend, opts)
	if err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Close flushes the exporter, then the store.
func (l *local) Close() error {
	var errs []error
	if l.influx != nil {
		errs = append(errs, l.influx.Close())
	}
	errs = append(errs, l.backend.Close())
	return errors.Join(errs...)
}

