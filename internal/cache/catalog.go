package cache

import (
	"sync"

	"github.com/fleetops/hardpoint/pkg/core"
)

// CatalogCache maps launcher part numbers to their master data
type CatalogCache struct {
	mu        sync.RWMutex
	launchers map[string]core.LauncherInfo
}

// NewCatalogCache creates a new CatalogCache
func NewCatalogCache() *CatalogCache {
	return &CatalogCache{
		launchers: make(map[string]core.LauncherInfo),
	}
}

// Get retrieves a launcher by part number
func (c *CatalogCache) Get(pn string) (core.LauncherInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.launchers[pn]
	return l, ok
}

// Set stores a launcher by part number
func (c *CatalogCache) Set(l core.LauncherInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.launchers[l.PartNumber] = l
}

// Delete removes a launcher by part number
func (c *CatalogCache) Delete(pn string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.launchers, pn)
}

// Reset clears the cache
func (c *CatalogCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.launchers = make(map[string]core.LauncherInfo)
}
