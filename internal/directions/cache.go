package directions

import (
	"sync"
	"time"

	"github.com/example/accessiride/internal/models"
)

// Cache is a small in-memory TTL cache for route lookups keyed by request.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	leg models.RouteLeg
	ts  time.Time
}

// NewCache creates a cache with the provided TTL. A non-positive TTL
// disables caching.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

// Get returns the cached leg and true if present and not expired.
func (c *Cache) Get(key string) (models.RouteLeg, bool) {
	if c == nil || c.ttl <= 0 {
		return models.RouteLeg{}, false
	}
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return models.RouteLeg{}, false
	}
	if c.now().Sub(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, key)
		c.mu.Unlock()
		return models.RouteLeg{}, false
	}
	return e.leg, true
}

// Set stores a leg in the cache.
func (c *Cache) Set(key string, leg models.RouteLeg) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.store[key] = cacheEntry{leg: leg, ts: c.now()}
	c.mu.Unlock()
}
