package cache

import (
	"sync"

	"github.com/fleetops/hardpoint/pkg/core"
)

// LoadoutCache keeps resolved loadouts per mission to avoid re-running the
// historical joins on every read. The store stays the source of truth: every
// write to a mission must be followed by Invalidate.
//
// A reader that resolves outside the lock takes Generation first and stores with
// PutAt, which drops the result when a write invalidated the mission meanwhile.
type LoadoutCache struct {
	m        sync.Mutex
	Missions map[uint][]core.PositionLoadout

	clock uint64          // last generation handed out
	floor uint64          // generation of the last Reset
	gens  map[uint]uint64 // generation of each mission's last invalidation

	Hits   SafeCounter
	Misses SafeCounter
}

func NewLoadoutCache() *LoadoutCache {
	return &LoadoutCache{
		m:        sync.Mutex{},
		Missions: make(map[uint][]core.PositionLoadout),
		gens:     make(map[uint]uint64),
	}
}

func (c *LoadoutCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.Missions = make(map[uint][]core.PositionLoadout)
	c.clock++
	c.floor = c.clock
	c.gens = make(map[uint]uint64)
}

// Get returns a copy of the cached loadouts so callers cannot mutate the cache.
func (c *LoadoutCache) Get(missionID uint) ([]core.PositionLoadout, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if l, ok := c.Missions[missionID]; ok {
		c.Hits.Inc()
		return append([]core.PositionLoadout(nil), l...), true
	}
	c.Misses.Inc()
	return nil, false
}

func (c *LoadoutCache) Put(missionID uint, loadouts []core.PositionLoadout) {
	c.m.Lock()
	defer c.m.Unlock()
	c.Missions[missionID] = append([]core.PositionLoadout(nil), loadouts...)
}

// PutAt stores loadouts resolved at generation gen. It reports false, storing
// nothing, when the mission was invalidated after gen was taken.
func (c *LoadoutCache) PutAt(missionID uint, gen uint64, loadouts []core.PositionLoadout) bool {
	c.m.Lock()
	defer c.m.Unlock()
	if c.generation(missionID) != gen {
		return false
	}
	c.Missions[missionID] = append([]core.PositionLoadout(nil), loadouts...)
	return true
}

// Generation returns the current generation of a mission.
func (c *LoadoutCache) Generation(missionID uint) uint64 {
	c.m.Lock()
	defer c.m.Unlock()
	return c.generation(missionID)
}

func (c *LoadoutCache) generation(missionID uint) uint64 {
	return max(c.gens[missionID], c.floor)
}

// Invalidate drops the entry of a mission after a write.
func (c *LoadoutCache) Invalidate(missionID uint) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.Missions, missionID)
	c.clock++
	c.gens[missionID] = c.clock
}

func (c *LoadoutCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.Missions)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
