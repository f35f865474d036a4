// Package influx exports launcher fatigue snapshots as a time series.
//
// Snapshots are queued by Record and written on Flush, either to an InfluxDB
// bucket or, when the server is disabled or unreachable, to a gzip file of
// line protocol that can be replayed later with the influx CLI.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/fleetops/hardpoint/internal/config"
	"github.com/fleetops/hardpoint/internal/queue"
	"github.com/fleetops/hardpoint/pkg/core"
)

// Measurement is the line-protocol measurement of a fatigue snapshot.
const Measurement = "launcher_fatigue"

// MaxPending bounds the snapshots held while InfluxDB and the backup file are both unavailable.
const MaxPending = 10000

// ErrDisabled is returned by Connect when the exporter has neither a server nor a backup file.
var ErrDisabled = errors.New("influx exporter disabled and no backup path set")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger

	cfg        config.InfluxConfig
	backupFile *os.File
	pending    *queue.Batch[core.LauncherStatus]

	mu       sync.Mutex // guards writers
	stopChan chan struct{}
	done     chan struct{}
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig) *Manager {
	return &Manager{
		Logger:  log,
		cfg:     cfg,
		pending: queue.New[core.LauncherStatus](MaxPending),
	}
}

// Connect establishes a connection to InfluxDB, falling back to the backup file.
func (m *Manager) Connect(ctx context.Context) error {
	if m.cfg.Enabled {
		m.Client = influxdb2.NewClientWithOptions(
			m.cfg.URL,
			m.cfg.Token,
			influxdb2.DefaultOptions().
				SetBatchSize(500).
				SetFlushInterval(1000),
		)

		// validate client connection health
		running, err := m.Client.Ping(ctx)
		if err == nil && running {
			if err := m.setupOrganizationAndBucket(ctx); err != nil {
				return err
			}
			m.createWriter()
			m.IsValid = true
			m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
			return nil
		}
		m.Client.Close()
		m.Client = nil
		m.Logger.Warn().Err(err).Msg("InfluxDB unreachable, using backup writer")
	}

	if m.cfg.BackupPath == "" {
		return ErrDisabled
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	m.Logger.Info().Str("backupPath", m.cfg.BackupPath).Msg("Writing fatigue snapshots to backup file")
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.cfg.Org

	// ensure org exists
	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// fatigue history is kept for the life of the launcher, so no retention rule
	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
		if _, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, m.cfg.Bucket); err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())
}

// Record queues a snapshot for the next flush. It never blocks on I/O.
func (m *Manager) Record(status core.LauncherStatus) {
	if m.pending.Push(status) == 0 {
		m.Logger.Warn().Str("partNumber", status.PartNumber).Int("dropped", m.pending.Dropped()).
			Msg("Snapshot backlog full, dropping fatigue snapshot")
	}
}

// Pending returns the number of queued snapshots.
func (m *Manager) Pending() int {
	return m.pending.Len()
}

// Flush writes every queued snapshot. Snapshots not written stay queued.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.pending.Drain(func(items []core.LauncherStatus) (int, error) {
		for i, s := range items {
			if err := ctx.Err(); err != nil {
				return i, err
			}
			if err := m.WritePoint(StatusPoint(s)); err != nil {
				return i, err
			}
		}
		return len(items), nil
	})
	if err != nil || n == 0 {
		return err
	}
	if m.IsValid {
		m.Writer.Flush()
	} else if err := m.BackupWriter.Flush(); err != nil {
		return fmt.Errorf("error flushing backup file: %w", err)
	}
	m.Logger.Debug().Int("count", n).Msg("Flushed fatigue snapshots")
	return nil
}

// WritePoint writes a point to InfluxDB or backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Start flushes the queue every interval until Close.
func (m *Manager) Start(interval time.Duration) {
	if interval <= 0 || m.stopChan != nil {
		return
	}
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopChan:
				return
			case <-ticker.C:
				if err := m.Flush(context.Background()); err != nil {
					m.Logger.Error().Err(err).Msg("Error flushing fatigue snapshots")
				}
			}
		}
	}()
}

// Close stops the flush loop, writes what is left and releases the writers.
func (m *Manager) Close() error {
	if m.stopChan != nil {
		close(m.stopChan)
		<-m.done
		m.stopChan = nil
	}

	var errs []error
	if m.IsValid || m.BackupWriter != nil {
		errs = append(errs, m.Flush(context.Background()))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Client != nil {
		m.Client.Close()
		m.Client = nil
		m.IsValid = false
	}
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close(), m.backupFile.Close())
		m.BackupWriter = nil
	}
	return errors.Join(errs...)
}

// StatusPoint converts a fatigue snapshot to a point.
func StatusPoint(s core.LauncherStatus) *influxdb2_write.Point {
	ts := s.ComputedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2_write.NewPoint(
		Measurement,
		map[string]string{
			"part_number": s.PartNumber,
			"maintenance": string(s.Maintenance),
		},
		map[string]any{
			"missions":           int64(s.MissionCount),
			"firings":            int64(s.FiringCount),
			"non_firings":        int64(s.NonFiringCount),
			"flight_hours":       s.FlightHours,
			"remaining_life_pct": s.RemainingLifePct,
		},
		ts,
	)
}
