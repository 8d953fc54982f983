// Package cache provides a small in-process TTL cache used by the scanner
// for the market list and per-token prices. Entries expire lazily on read;
// there is no background eviction because the key set is bounded by the
// number of active markets.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps string keys to values with a per-entry expiry instant. All
// operations are safe for concurrent use; reads and writes for the same
// key are atomic with respect to each other.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]

	// now is replaceable in tests to simulate the passage of time.
	now func() time.Time
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// NewWithClock creates a cache that reads time from the given clock.
func NewWithClock[V any](now func() time.Time) *Cache[V] {
	c := New[V]()
	c.now = now
	return c
}

// Get returns the cached value for key iff it is present and unexpired.
// Expired entries are removed on read.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, unconditionally overwriting any previous
// entry, valid for ttl from now.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Len returns the number of entries, including any not yet lazily expired.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}
