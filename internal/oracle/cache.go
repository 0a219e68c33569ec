package oracle

import (
	"sort"
	"sync"
)

// Cache stores risk metrics per asset. Implementations must be safe for
// concurrent use. Staleness is the client's concern: the cache keeps whatever
// it was given, and stale entries are overwritten on the next fetch rather
// than actively evicted.
type Cache interface {
	Get(asset string) (*RiskMetrics, bool)
	Set(asset string, m *RiskMetrics)
	Clear()
	Stats() CacheStats
}

// CacheStats describes cache contents for introspection endpoints and tests.
type CacheStats struct {
	Size    int      `json:"size"`
	Entries []string `json:"entries"`
}

// MemoryCache is a mutex-guarded in-memory Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*RiskMetrics
}

// NewMemoryCache returns an empty in-memory cache. Tests construct their own
// to avoid cross-test leakage through the process-wide default.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*RiskMetrics)}
}

// DefaultCache is the process-wide cache used when a client is built
// without an explicit one.
var DefaultCache Cache = NewMemoryCache()

func (c *MemoryCache) Get(asset string) (*RiskMetrics, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[asset]
	return m, ok
}

func (c *MemoryCache) Set(asset string, m *RiskMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[asset] = m
}

// Clear drops every entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*RiskMetrics)
}

// Stats returns the number of entries and their keys, sorted for stable output.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return CacheStats{Size: len(keys), Entries: keys}
}
