// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend; the only SQLite-specific concerns are creating the
// database, restoring the last dump at startup and the periodic dump itself.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fleetops/hardpoint/internal/database"
	"github.com/fleetops/hardpoint/internal/model"
	gormstorage "github.com/fleetops/hardpoint/internal/storage/gorm"

	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	// Path of a file database. Empty means in-memory with dumps to DumpPath.
	Path         string
	DumpInterval time.Duration
	DumpPath     string // Path for periodic VACUUM INTO dumps
	// ImportFlushInterval is passed through to the GORM backend.
	ImportFlushInterval time.Duration
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	log      *slog.Logger
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new SQLite storage backend.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := database.GetSqliteDBStandalone(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:                  db,
		Logger:              logger,
		ImportFlushInterval: cfg.ImportFlushInterval,
	})

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		log:      logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (b *Backend) dumping() bool {
	return b.cfg.Path == "" && b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0
}

// Init migrates, restores the last dump into memory and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.Path == "" && b.cfg.DumpPath != "" {
		if err := b.restore(); err != nil {
			return err
		}
	}

	if b.dumping() {
		go b.dumpLoop()
	} else {
		close(b.done)
	}
	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the embedded GORM backend.
func (b *Backend) Close() error {
	close(b.stopChan)
	<-b.done

	err := b.Backend.Close()
	if b.dumping() {
		if dumpErr := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); dumpErr != nil && err == nil {
			err = dumpErr
		}
	}
	if sqlDB, dbErr := b.db.DB(); dbErr == nil {
		_ = sqlDB.Close()
	}
	return err
}

// restore copies the rows of an earlier dump into the freshly migrated in-memory
// database. Tables are copied in model order so foreign keys resolve, and only
// columns present in both schemas are copied.
func (b *Backend) restore() error {
	if _, err := os.Stat(b.cfg.DumpPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat dump: %w", err)
	}

	if err := b.db.Exec("ATTACH DATABASE ? AS dump", b.cfg.DumpPath).Error; err != nil {
		return fmt.Errorf("failed to attach dump: %w", err)
	}
	defer b.db.Exec("DETACH DATABASE dump")

	restored := 0
	for _, m := range model.DatabaseModels {
		table := m.(tabler).TableName()

		var dumpCols []string
		if err := b.db.Raw("SELECT name FROM pragma_table_info(?, 'dump')", table).Scan(&dumpCols).Error; err != nil {
			return fmt.Errorf("failed to read dump columns of %s: %w", table, err)
		}
		if len(dumpCols) == 0 {
			continue
		}

		var cols []string
		for _, c := range dumpCols {
			if b.db.Migrator().HasColumn(m, c) {
				cols = append(cols, fmt.Sprintf("%q", c))
			}
		}
		list := strings.Join(cols, ", ")
		if err := b.db.Exec(fmt.Sprintf("INSERT INTO main.%q (%s) SELECT %s FROM dump.%q", table, list, list, table)).Error; err != nil {
			return fmt.Errorf("failed to restore table %s: %w", table, err)
		}
		restored++
	}
	b.log.Info("Restored SQLite dump", "path", b.cfg.DumpPath, "tables", restored)
	return nil
}

type tabler interface {
	TableName() string
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); err != nil {
				b.log.Error("Error dumping to disk", "error", err)
			} else {
				b.log.Debug("Dumped to disk", "duration", time.Since(start))
			}
		}
	}
}
