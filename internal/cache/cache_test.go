package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/hardpoint/pkg/core"
)

func resolved(statuses ...core.LoadoutStatus) []core.PositionLoadout {
	out := make([]core.PositionLoadout, len(statuses))
	for i, s := range statuses {
		out[i] = core.PositionLoadout{Position: core.AllPositions[i], Status: s}
	}
	return out
}

func TestLoadoutCache_NewLoadoutCache(t *testing.T) {
	cache := NewLoadoutCache()

	require.NotNil(t, cache)
	assert.NotNil(t, cache.Missions)
	assert.Equal(t, 0, cache.Len())
}

func TestLoadoutCache_PutAndGet(t *testing.T) {
	cache := NewLoadoutCache()
	cache.Put(7, resolved(core.StatusOnboard, core.StatusEmpty))

	got, ok := cache.Get(7)
	require.True(t, ok, "expected to find mission 7")
	require.Len(t, got, 2)
	assert.Equal(t, core.StatusOnboard, got[0].Status)
	assert.Equal(t, 1, cache.Hits.Value())
}

func TestLoadoutCache_GetReturnsCopy(t *testing.T) {
	cache := NewLoadoutCache()
	cache.Put(1, resolved(core.StatusOnboard))

	got, _ := cache.Get(1)
	got[0].Status = core.StatusFired

	again, _ := cache.Get(1)
	assert.Equal(t, core.StatusOnboard, again[0].Status)
}

func TestLoadoutCache_Miss(t *testing.T) {
	cache := NewLoadoutCache()

	_, ok := cache.Get(999)
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Misses.Value())
}

func TestLoadoutCache_Invalidate(t *testing.T) {
	cache := NewLoadoutCache()
	cache.Put(1, resolved(core.StatusOnboard))
	cache.Put(2, resolved(core.StatusFired))

	cache.Invalidate(1)

	_, ok := cache.Get(1)
	assert.False(t, ok)
	_, ok = cache.Get(2)
	assert.True(t, ok)
}

func TestLoadoutCache_PutAtDropsResultsOlderThanInvalidate(t *testing.T) {
	cache := NewLoadoutCache()

	gen := cache.Generation(1)
	cache.Invalidate(1) // a write commits while the reader resolves
	assert.False(t, cache.PutAt(1, gen, resolved(core.StatusOnboard)))
	_, ok := cache.Get(1)
	assert.False(t, ok)

	gen = cache.Generation(1)
	cache.Invalidate(2)
	assert.True(t, cache.PutAt(1, gen, resolved(core.StatusFired)))
	got, ok := cache.Get(1)
	require.True(t, ok)
	assert.Equal(t, core.StatusFired, got[0].Status)
}

func TestLoadoutCache_PutAtAfterReset(t *testing.T) {
	cache := NewLoadoutCache()
	gen := cache.Generation(3)
	cache.Reset()
	assert.False(t, cache.PutAt(3, gen, resolved(core.StatusOnboard)))
	assert.Equal(t, 0, cache.Len())
}

func TestLoadoutCache_Reset(t *testing.T) {
	cache := NewLoadoutCache()
	cache.Put(1, resolved(core.StatusOnboard))
	cache.Put(2, resolved(core.StatusFired))
	assert.Equal(t, 2, cache.Len())

	cache.Reset()
	assert.Equal(t, 0, cache.Len())

	cache.Put(3, nil)
	_, ok := cache.Get(3)
	assert.True(t, ok, "expected to find mission added after reset")
}

func TestLoadoutCache_Concurrent(t *testing.T) {
	cache := NewLoadoutCache()
	var wg sync.WaitGroup

	for i := uint(0); i < 100; i++ {
		wg.Add(3)
		go func(id uint) {
			defer wg.Done()
			cache.Put(id, resolved(core.StatusOnboard))
		}(i)
		go func(id uint) {
			defer wg.Done()
			cache.Get(id)
		}(i)
		go func(id uint) {
			defer wg.Done()
			cache.Invalidate(id + 100)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, cache.Len())
	assert.Equal(t, 100, cache.Hits.Value()+cache.Misses.Value())
}

func TestCatalogCache(t *testing.T) {
	c := NewCatalogCache()

	_, ok := c.Get("LX-100")
	assert.False(t, ok)

	c.Set(core.LauncherInfo{PartNumber: "LX-100", Nomenclature: "Rail launcher"})
	l, ok := c.Get("LX-100")
	require.True(t, ok)
	assert.Equal(t, "Rail launcher", l.Nomenclature)

	c.Delete("LX-100")
	_, ok = c.Get("LX-100")
	assert.False(t, ok)

	c.Set(core.LauncherInfo{PartNumber: "LX-1"})
	c.Reset()
	_, ok = c.Get("LX-1")
	assert.False(t, ok)
}

// SafeCounter tests

func TestSafeCounter_InitialValue(t *testing.T) {
	c := &SafeCounter{}
	assert.Equal(t, int(0), c.Value())
}

func TestSafeCounter_Set(t *testing.T) {
	c := &SafeCounter{}

	c.Set(42)
	assert.Equal(t, int(42), c.Value())

	c.Set(0)
	assert.Equal(t, int(0), c.Value())
}

func TestSafeCounter_Concurrent(t *testing.T) {
	c := &SafeCounter{}
	var wg sync.WaitGroup

	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, int(1000), c.Value())
}
