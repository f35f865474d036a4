// Package monitor periodically sweeps the fleet's fatigue status while the
// server runs, rewriting a plain-text status file and warning about launchers
// that need urgent maintenance.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fleetops/hardpoint/pkg/core"
)

// DefaultInterval is used when Dependencies.Interval is not positive.
const DefaultInterval = time.Minute

// FleetSource computes the fatigue snapshot of every catalogued launcher.
type FleetSource interface {
	FleetStatus(ctx context.Context) ([]core.LauncherStatus, error)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Fleet  FleetSource
	Logger *slog.Logger
	// StatusFile is rewritten after every sweep. Empty disables it.
	StatusFile string
	Interval   time.Duration
}

// Service manages the fleet sweep goroutine
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
	last      []core.LauncherStatus
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the sweep goroutine is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Last returns the snapshots of the most recent successful sweep.
func (s *Service) Last() []core.LauncherStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.LauncherStatus(nil), s.last...)
}

// Sweep computes the fleet status once, updates the status file and logs
// launchers flagged for urgent maintenance.
func (s *Service) Sweep(ctx context.Context) error {
	fleet, err := s.deps.Fleet.FleetStatus(ctx)
	if err != nil {
		return fmt.Errorf("fleet sweep: %w", err)
	}

	urgent := 0
	for _, st := range fleet {
		if st.Maintenance == core.ClassUrgent {
			urgent++
			s.deps.Logger.WarnContext(ctx, "Launcher needs urgent maintenance",
				"partNumber", st.PartNumber, "remainingLifePct", st.RemainingLifePct)
		}
	}

	s.mu.Lock()
	s.last = fleet
	s.mu.Unlock()

	if s.deps.StatusFile != "" {
		if err := s.writeStatusFile(fleet); err != nil {
			return err
		}
	}
	s.deps.Logger.DebugContext(ctx, "Fleet sweep complete", "launchers", len(fleet), "urgent", urgent)
	return nil
}

func (s *Service) writeStatusFile(fleet []core.LauncherStatus) error {
	tmp := s.deps.StatusFile + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("error creating status file: %w", err)
	}
	if err := WriteReport(f, fleet); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing status file: %w", err)
	}
	return os.Rename(tmp, s.deps.StatusFile)
}

// WriteReport writes one line per launcher: part number, missions, flight
// hours, remaining life and maintenance label.
func WriteReport(w io.Writer, fleet []core.LauncherStatus) error {
	for _, st := range fleet {
		_, err := fmt.Fprintf(w, "%-24s missions=%-4d hours=%-8.2f life=%5.1f%%  %s\n",
			st.PartNumber, st.MissionCount, st.FlightHours, st.RemainingLifePct, st.Maintenance)
		if err != nil {
			return fmt.Errorf("error writing status report: %w", err)
		}
	}
	return nil
}

// Start starts the sweep goroutine. The first sweep runs immediately.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.Fleet == nil {
		s.mu.Unlock()
		return fmt.Errorf("monitor: no fleet source")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		s.deps.Logger.Debug("Starting fleet monitor", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			ctx, cancel := context.WithTimeout(context.Background(), s.deps.Interval)
			if err := s.Sweep(ctx); err != nil {
				s.deps.Logger.Error("Fleet sweep failed", "error", err)
			}
			cancel()

			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()

	return nil
}

// Stop stops the sweep goroutine and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
