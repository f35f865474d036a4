// Package otel exports the engine's structured logs through OpenTelemetry:
// to the session log file, and to an OTLP collector when one is configured.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultBatchTimeout bounds each export when the configuration leaves it unset.
const DefaultBatchTimeout = 5 * time.Second

// Config mirrors config.OTelConfig plus what only the process knows.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	BatchTimeout   time.Duration
	LogWriter      io.Writer // session log file
	Endpoint       string    // OTLP/HTTP collector, optional
	Insecure       bool
}

// Provider owns the log pipeline. A disabled Provider has no LoggerProvider
// and its Flush and Shutdown are no-ops.
type Provider struct {
	logProvider *sdklog.LoggerProvider
	shutdown    sync.Once
	shutdownErr error
}

// New builds the log pipeline. Enabling OTel without a log writer or an
// endpoint is a configuration error.
func New(cfg Config) (*Provider, error) {
	p := &Provider{}
	if !cfg.Enabled {
		return p, nil
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}

	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building otel resource: %w", err)
	}

	exporters, err := logExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout))))
	}
	p.logProvider = sdklog.NewLoggerProvider(opts...)
	return p, nil
}

func logExporters(ctx context.Context, cfg Config) ([]sdklog.Exporter, error) {
	var out []sdklog.Exporter
	if cfg.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter))
		if err != nil {
			return nil, fmt.Errorf("creating file log exporter: %w", err)
		}
		out = append(out, exp)
	}
	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP log exporter for %s: %w", cfg.Endpoint, err)
		}
		out = append(out, exp)
	}
	if len(out) == 0 {
		return nil, errors.New("otel enabled but neither a log writer nor an endpoint is configured")
	}
	return out, nil
}

// LoggerProvider feeds the otelslog bridge. It is nil when OTel is disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logProvider
}

// Enabled reports whether a log pipeline was built.
func (p *Provider) Enabled() bool {
	return p.logProvider != nil
}

// Flush exports every pending record.
func (p *Provider) Flush(ctx context.Context) error {
	if p.logProvider == nil {
		return nil
	}
	if err := p.logProvider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("flushing otel logs: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the pipeline. Later calls return the first result.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.logProvider == nil {
		return nil
	}
	p.shutdown.Do(func() {
		if err := p.logProvider.Shutdown(ctx); err != nil {
			p.shutdownErr = fmt.Errorf("shutting down otel logs: %w", err)
		}
	})
	return p.shutdownErr
}
