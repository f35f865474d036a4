package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// indirections so tests can capture console output
var (
	osStdout = os.Stdout
	osPipe   = os.Pipe
)

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger
	fanout *Fanout

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// ParseLevel converts a string log level to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system with file and optional OTel output.
// If provider is nil, OTel logging is disabled. Extra sinks (e.g. GELF) receive
// every record as well. Records carry the mission/position attached to their context.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, extra ...Sink) {
	lvl := ParseLevel(level)
	m.logProvider = provider

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var sinks []Sink

	// File sink, console only when no file is given
	if file != nil {
		sinks = append(sinks, Sink{Name: "file", Handler: slog.NewTextHandler(file, handlerOpts)})
	} else {
		sinks = append(sinks, Sink{Name: "console", Handler: slog.NewTextHandler(osStdout, handlerOpts)})
	}

	if provider != nil {
		sinks = append(sinks, Sink{Name: "otel", Handler: otelslog.NewHandler("hardpoint", otelslog.WithLoggerProvider(provider))})
	}

	sinks = append(sinks, extra...)

	m.fanout = NewFanout(sinks...)
	m.logger = slog.New(NewContextHandler(m.fanout, MissionAttrs))
	m.logger.Info("Logging initialized", "level", level, "sinks", m.fanout.Sinks())
}

// SinkFailures returns how many records each sink failed to write since Setup.
func (m *SlogManager) SinkFailures() map[string]int {
	if m.fanout == nil {
		return nil
	}
	return m.fanout.Failures()
}

// ReportSinkFailures logs one warning summarising failed sinks, if any.
func (m *SlogManager) ReportSinkFailures() {
	if failures := m.SinkFailures(); len(failures) > 0 {
		m.Logger().Warn("Log sinks dropped records", failureSummary(failures)...)
	}
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

