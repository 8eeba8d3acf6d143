// Package cache is a process-local response cache with per-entry TTLs.
//
// Entries self-expire; there is no size-based eviction. Invalidation after a
// write is deliberately coarse: callers drop whole key prefixes
// ("messages:", "conversations:", "unread:") instead of computing precise
// dependency sets. Each server instance owns an independent cache, so
// callers must only rely on bounded staleness, never on global consistency.
package cache

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
}

// Cache is a TTL key/value store safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry

	now  func() time.Time
	done chan struct{}
	once sync.Once
}

// DefaultSweepInterval is how often the background sweep removes entries
// whose TTL has lapsed but that nobody asked for again.
const DefaultSweepInterval = 2 * time.Minute

// New returns a cache whose background sweep runs every sweepInterval.
// A non-positive interval disables the sweep; expired entries are then only
// purged lazily on Get.
func New(sweepInterval time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	}
	return c
}

// Set stores value under key for ttl.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, storedAt: c.now(), ttl: ttl}
}

// Get returns the cached value and true while the entry is fresh. An expired
// entry is removed as a side effect and reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= e.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Delete removes a single key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// DeleteByPrefix removes every key starting with prefix.
func (c *Cache) DeleteByPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the current number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background sweep. The cache remains usable.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Cache) sweepLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= e.ttl {
			delete(c.entries, k)
		}
	}
}
