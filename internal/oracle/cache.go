package oracle

import (
	"sync"
	"time"

	"github.com/famedly/matrix-oracle/pkg/server"
)

// cacheEntry holds one cached resolution outcome. Exactly one of the result
// fields is meaningful, selected by the cache key's API prefix.
type cacheEntry struct {
	server    server.Server
	baseURL   string
	expiresAt time.Time
}

func (e *cacheEntry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// resolveCache is a thread-safe in-memory TTL cache for resolution results.
// Expired entries are dropped lazily on read and in bulk by evict.
type resolveCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newResolveCache(ttl time.Duration) *resolveCache {
	return &resolveCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// get looks up a live entry by key.
func (c *resolveCache) get(key string) (*cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.expired() {
		return nil, false
	}
	return e, true
}

// setServer stores a server resolution result.
func (c *resolveCache) setServer(key string, s server.Server) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{server: s, expiresAt: time.Now().Add(c.ttl)}
}

// setBaseURL stores a client resolution result.
func (c *resolveCache) setBaseURL(key, baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{baseURL: baseURL, expiresAt: time.Now().Add(c.ttl)}
}

// evict removes all expired entries.
func (c *resolveCache) evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.expired() {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// len returns the number of cached entries (including expired).
func (c *resolveCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
