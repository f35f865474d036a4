package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Sink is a named destination for log records: the session file, the OTel
// exporter or a Graylog input.
type Sink struct {
	Name    string
	Handler slog.Handler
}

// Fanout delivers each record to every sink enabled for its level. A failing
// sink does not stop delivery to the others; its failures are counted by name.
type Fanout struct {
	sinks    []Sink
	failures *failureCounts
}

type failureCounts struct {
	mu sync.Mutex
	n  map[string]int
}

func (f *failureCounts) add(name string) {
	f.mu.Lock()
	f.n[name]++
	f.mu.Unlock()
}

// NewFanout builds a Fanout over sinks, skipping those without a handler.
func NewFanout(sinks ...Sink) *Fanout {
	valid := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s.Handler != nil {
			valid = append(valid, s)
		}
	}
	return &Fanout{sinks: valid, failures: &failureCounts{n: make(map[string]int)}}
}

// Sinks returns the names of the attached sinks in delivery order.
func (f *Fanout) Sinks() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name
	}
	return names
}

// Failures returns the number of records each sink failed to handle.
// Derived handlers share the counts of the Fanout they came from.
func (f *Fanout) Failures() map[string]int {
	f.failures.mu.Lock()
	defer f.failures.mu.Unlock()
	out := make(map[string]int, len(f.failures.n))
	for k, v := range f.failures.n {
		out[k] = v
	}
	return out
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range f.sinks {
		if s.Handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle returns the joined errors of the sinks that failed.
func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range f.sinks {
		if !s.Handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handler.Handle(ctx, r.Clone()); err != nil {
			f.failures.add(s.Name)
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *Fanout) derive(fn func(slog.Handler) slog.Handler) *Fanout {
	sinks := make([]Sink, len(f.sinks))
	for i, s := range f.sinks {
		sinks[i] = Sink{Name: s.Name, Handler: fn(s.Handler)}
	}
	return &Fanout{sinks: sinks, failures: f.failures}
}

// failureSummary flattens counts into slog key/value pairs in name order.
func failureSummary(counts map[string]int) []any {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	kv := make([]any, 0, 2*len(names))
	for _, name := range names {
		kv = append(kv, name, counts[name])
	}
	return kv
}
