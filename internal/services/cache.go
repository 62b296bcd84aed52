package services

import (
	"sync"
	"time"
)

// ttlCache is a small mutex-guarded per-key cache with a fixed TTL and an
// entry bound. Expired entries are dropped on insert when the bound is hit.
type ttlCache[T any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	max      int
	entries  map[string]ttlEntry[T]
	clockNow func() time.Time
}

type ttlEntry[T any] struct {
	value   T
	expires time.Time
}

func newTTLCache[T any](ttl time.Duration, max int) *ttlCache[T] {
	return &ttlCache[T]{
		ttl:      ttl,
		max:      max,
		entries:  make(map[string]ttlEntry[T]),
		clockNow: time.Now,
	}
}

func (c *ttlCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.clockNow().Before(e.expires) {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clockNow()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		for k, e := range c.entries {
			if !now.Before(e.expires) {
				delete(c.entries, k)
			}
		}
		for k := range c.entries {
			if len(c.entries) < c.max {
				break
			}
			delete(c.entries, k)
		}
	}
	c.entries[key] = ttlEntry[T]{value: value, expires: now.Add(c.ttl)}
}

func (c *ttlCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
