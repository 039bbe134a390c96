package degrade

import (
	"sync"
	"time"
)

// Cache is the narrow store the degradation service needs. Implementations
// must be safe for concurrent use; no transactional guarantee is assumed
// across a read-then-write pair.
type Cache interface {
	// Get returns the value for key, or false on a miss.
	Get(key string) ([]byte, bool)
	// Set stores value under key for ttl.
	Set(key string, value []byte, ttl time.Duration) error
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache. Expired entries are invisible
// to Get immediately and reclaimed by a janitor goroutine.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemoryCache creates a memory cache whose janitor reclaims expired
// entries every sweepInterval.
func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	c := &MemoryCache{
		entries: make(map[string]cacheEntry),
		stopCh:  make(chan struct{}),
	}
	go c.janitor(sweepInterval)
	return c
}

// Get returns the value for key if present and unexpired.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key for ttl.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Stop terminates the janitor goroutine. Idempotent.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
