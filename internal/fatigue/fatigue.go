// Package fatigue derives a launcher's remaining life and maintenance urgency
// from the missions it has flown.
package fatigue

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetops/hardpoint/internal/cache"
	"github.com/fleetops/hardpoint/internal/storage"
	"github.com/fleetops/hardpoint/pkg/core"
)

const (
	// DefaultDamagePerMission is the life consumed by one mission, in percentage points.
	DefaultDamagePerMission = 5.0

	// Classification thresholds. Boundary values fall in the lower-urgency tier.
	OKThreshold        = 70.0
	AttentionThreshold = 30.0
)

// Remaining returns the remaining-life percentage after missions, clamped to [0, 100].
func Remaining(missions int, damagePerMission float64) float64 {
	if missions <= 0 {
		return 100
	}
	pct := 100 - float64(missions)*damagePerMission
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Classify maps a remaining-life percentage to its maintenance tier.
func Classify(pct float64) core.Classification {
	switch {
	case pct >= OKThreshold:
		return core.ClassOK
	case pct >= AttentionThreshold:
		return core.ClassAttention
	default:
		return core.ClassUrgent
	}
}

// Sink receives every computed snapshot, e.g. a time-series exporter.
type Sink interface {
	Record(status core.LauncherStatus)
}

// Calculator computes launcher status snapshots.
type Calculator struct {
	history storage.MissionStore
	catalog storage.CatalogStore
	names   *cache.CatalogCache
	sink    Sink

	damage float64
	now    func() time.Time
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithDamagePerMission overrides the per-mission damage, in percentage points.
func WithDamagePerMission(points float64) Option {
	return func(c *Calculator) {
		c.damage = points
	}
}

// WithSink forwards every snapshot to s.
func WithSink(s Sink) Option {
	return func(c *Calculator) {
		c.sink = s
	}
}

// WithCatalogCache memoizes catalog lookups.
func WithCatalogCache(cc *cache.CatalogCache) Option {
	return func(c *Calculator) {
		c.names = cc
	}
}

// WithClock replaces time.Now for ComputedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		c.now = now
	}
}

// New creates a Calculator. The damage factor must lie in (0, 100].
func New(history storage.MissionStore, catalog storage.CatalogStore, opts ...Option) (*Calculator, error) {
	c := &Calculator{
		history: history,
		catalog: catalog,
		damage:  DefaultDamagePerMission,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.damage <= 0 || c.damage > 100 {
		return nil, core.Validation("fatigue.New", fmt.Errorf("damage per mission must be in (0, 100], got %v", c.damage))
	}
	return c, nil
}

// DamagePerMission returns the configured damage in percentage points.
func (c *Calculator) DamagePerMission() float64 {
	return c.damage
}

// ComputeStatus builds the fatigue snapshot of a launcher.
// An unknown part number is a not-found error; a launcher with no history is at 100%.
func (c *Calculator) ComputeStatus(ctx context.Context, partNumber string) (core.LauncherStatus, error) {
	info, err := c.launcher(ctx, partNumber)
	if err != nil {
		return core.LauncherStatus{}, err
	}
	history, err := c.History(ctx, partNumber)
	if err != nil {
		return core.LauncherStatus{}, err
	}

	status := Summarize(info, history, c.damage)
	status.ComputedAt = c.now()
	if c.sink != nil {
		c.sink.Record(status)
	}
	return status, nil
}

// History returns the launcher's missions, most recent first, with the damage
// factor of each entry filled in as a fraction of rated life.
func (c *Calculator) History(ctx context.Context, partNumber string) ([]core.MissionHistoryEntry, error) {
	history, err := c.history.GetMissionHistoryForLauncher(ctx, partNumber)
	if err != nil {
		return nil, err
	}
	for i := range history {
		history[i].DamageFactor = c.damage / 100
	}
	return history, nil
}

// Summarize aggregates a history into a status snapshot without I/O.
func Summarize(info core.LauncherInfo, history []core.MissionHistoryEntry, damage float64) core.LauncherStatus {
	s := core.LauncherStatus{
		PartNumber:   info.PartNumber,
		Name:         info.Nomenclature,
		MissionCount: len(history),
	}
	for _, e := range history {
		if e.Fired {
			s.FiringCount++
		}
		s.FlightHours += e.FlightHours
	}
	s.NonFiringCount = s.MissionCount - s.FiringCount
	s.RemainingLifePct = Remaining(s.MissionCount, damage)
	s.Maintenance = Classify(s.RemainingLifePct)
	return s
}

func (c *Calculator) launcher(ctx context.Context, pn string) (core.LauncherInfo, error) {
	if c.names != nil {
		if info, ok := c.names.Get(pn); ok {
			return info, nil
		}
	}
	info, err := c.catalog.GetLauncherByPartNumber(ctx, pn)
	if err != nil {
		return core.LauncherInfo{}, err
	}
	if c.names != nil {
		c.names.Set(info)
	}
	return info, nil
}
