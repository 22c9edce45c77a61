/*
Package cache provides a read-through TTL cache for slowly-changing reads.

PURPOSE:
  Avoids redundant store round trips for lists and aggregates between view
  activations. Entries expire by TTL only; there is no size bound and no
  background sweep - expired entries are dropped lazily on Get.

NOT AUTHORITATIVE:
  A miss means "go fetch". Writers must hit the store first, then
  Invalidate the affected keys; never the reverse. Clear() runs at session
  end so the next session starts cold.

CONCURRENCY:
  Shared across handler goroutines, so the map is guarded by a sync.RWMutex.
*/
package cache

import (
	"sync"
	"time"
)

// DefaultTTL applies to Set; SetTTL overrides per entry.
const DefaultTTL = 120 * time.Second

type entry struct {
	data      any
	expiresAt time.Time
}

// Cache is a process-wide key/value store with per-entry expiry. Construct
// one per session scope and pass it where read-through caching is wanted.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	now        func() time.Time
}

// New creates a cache with the given default TTL; ttl <= 0 selects DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries:    make(map[string]entry),
		defaultTTL: ttl,
		now:        time.Now,
	}
}

// NewWithClock creates a cache with an injected time source for tests.
func NewWithClock(ttl time.Duration, now func() time.Time) *Cache {
	c := New(ttl)
	c.now = now
	return c
}

// Get returns the live value for key. A missing or expired entry reports
// !ok; an expired entry is removed as a side effect.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a Set may have replaced the entry.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.data, true
}

// Set stores data under key with the default TTL, overwriting any entry.
func (c *Cache) Set(key string, data any) {
	c.SetTTL(key, data, c.defaultTTL)
}

// SetTTL stores data under key with an explicit TTL.
func (c *Cache) SetTTL(key string, data any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{data: data, expiresAt: c.now().Add(ttl)}
}

// Invalidate removes the entry for key. No-op if absent.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry. Idempotent; called on logout.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
