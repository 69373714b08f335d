package persistence

import (
	"sync"
	"time"
)

// Cache is a small TTL key-value store used for metadata and dependency
// graph snapshots. Implementations must be safe for concurrent use.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Exists(key string) bool
	Delete(key string)
	DeletePrefix(prefix string)
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// MemoryCache is the in-process Cache implementation.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewMemoryCache creates a new MemoryCache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached value if present and not expired.
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		// Recheck under write lock; another goroutine may have refreshed it.
		if cur, still := c.entries[key]; still && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key for ttl. A non-positive ttl means one hour.
func (c *MemoryCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Exists reports whether key is cached and not expired.
func (c *MemoryCache) Exists(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key from the cache.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeletePrefix removes every key that starts with prefix. Used to
// invalidate all per-table entries when a table's schema changes.
func (c *MemoryCache) DeletePrefix(prefix string) {
	c.mu.Lock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// NoopCache disables caching. Used in tests that assert exact query
// sequences.
type NoopCache struct{}

func (NoopCache) Get(string) (any, bool)         { return nil, false }
func (NoopCache) Set(string, any, time.Duration) {}
func (NoopCache) Exists(string) bool             { return false }
func (NoopCache) Delete(string)                  {}
func (NoopCache) DeletePrefix(string)            {}
