package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
)

func TestNewDisabled(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewEnabledWithoutSinks(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "hardpoint"})
	assert.Error(t, err)
}

func TestNewEnabledWritesLogs(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{Enabled: true, ServiceName: "hardpoint", ServiceVersion: "1.2.0", BatchTimeout: time.Second, LogWriter: &buf})
	require.NoError(t, err)
	require.True(t, p.Enabled())
	require.NotNil(t, p.LoggerProvider())

	var rec otellog.Record
	rec.SetBody(otellog.StringValue("launcher status computed"))
	p.LoggerProvider().Logger("test").Emit(context.Background(), rec)

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "launcher status computed")
	assert.Contains(t, buf.String(), "1.2.0")
	require.NoError(t, p.Shutdown(context.Background()))
	// a second shutdown reports the first result instead of failing on a stopped provider
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewDefaultsBatchTimeout(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{Enabled: true, ServiceName: "hardpoint", LogWriter: &buf})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}
