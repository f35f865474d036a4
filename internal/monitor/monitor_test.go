package monitor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/hardpoint/pkg/core"
)

type fakeFleet struct {
	calls  atomic.Int32
	fleet  []core.LauncherStatus
	failed error
}

func (f *fakeFleet) FleetStatus(context.Context) ([]core.LauncherStatus, error) {
	f.calls.Add(1)
	return f.fleet, f.failed
}

func sampleFleet() []core.LauncherStatus {
	return []core.LauncherStatus{
		{PartNumber: "LX-100", MissionCount: 1, FlightHours: 2.5, RemainingLifePct: 95, Maintenance: core.ClassOK},
		{PartNumber: "LX-200", MissionCount: 19, FlightHours: 40, RemainingLifePct: 5, Maintenance: core.ClassUrgent},
	}
}

func TestSweepWritesStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.txt")
	svc := NewService(Dependencies{Fleet: &fakeFleet{fleet: sampleFleet()}, StatusFile: path})

	require.NoError(t, svc.Sweep(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "LX-100")
	assert.Contains(t, string(data), "life= 95.0%")
	assert.Contains(t, string(data), "MANUTENZIONE URGENTE")
	assert.Len(t, svc.Last(), 2)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSweepError(t *testing.T) {
	svc := NewService(Dependencies{Fleet: &fakeFleet{failed: errors.New("store down")}})
	err := svc.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
	assert.Empty(t, svc.Last())
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleFleet()))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[1]), "missions=19")
}

func TestStartStop(t *testing.T) {
	fleet := &fakeFleet{fleet: sampleFleet()}
	svc := NewService(Dependencies{Fleet: fleet, Interval: 10 * time.Millisecond})

	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start(), "second start is a no-op")
	assert.True(t, svc.IsRunning())

	assert.Eventually(t, func() bool { return fleet.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	svc.Stop()
	svc.Stop()
	assert.False(t, svc.IsRunning())

	calls := fleet.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, fleet.calls.Load())
}

func TestStartWithoutSource(t *testing.T) {
	assert.Error(t, NewService(Dependencies{}).Start())
}

func TestDefaults(t *testing.T) {
	svc := NewService(Dependencies{})
	assert.Equal(t, DefaultInterval, svc.deps.Interval)
	assert.NotNil(t, svc.deps.Logger)
}
