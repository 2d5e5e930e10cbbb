package store

import (
	"sync"
	"time"
)

// TTLCache is a small expiring cache with explicit get/put/invalidate
// operations. Entries expire ttl after they were put; expired entries are
// dropped on read.
type TTLCache[K comparable, V any] struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	m   map[K]ttlEntry[V]
}

type ttlEntry[V any] struct {
	value   V
	savedAt time.Time
}

// NewTTLCache builds a cache whose entries live for ttl.
func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		ttl: ttl,
		now: time.Now,
		m:   make(map[K]ttlEntry[V]),
	}
}

// Get returns the cached value for key if present and fresh.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.m[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(entry.savedAt) > c.ttl {
		delete(c.m, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Put stores value under key, resetting its expiry.
func (c *TTLCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = ttlEntry[V]{value: value, savedAt: c.now()}
}

// Invalidate drops the entry for key.
func (c *TTLCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}
