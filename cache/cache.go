// Package cache provides a bounded, time-windowed key/value cache.
//
// Every Cache instance has a fixed capacity and a default time-to-live. An
// entry read at or after its expiry is treated as absent and dropped (lazy
// expiry); when the cache is full, the least recently used entry is evicted to
// make room. Entries are advisory: losing one only costs an upstream lookup.
//
// Instances are independent. postboard keeps one per entity kind (authors,
// locations, avatar URLs, credentials, rate-limit counters) so that lifetimes
// and capacities can be tuned per kind and tests can build a fresh cache each.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time
}

type Option func(*config)

type config struct {
	now func() time.Time
}

// WithClock replaces time.Now, mostly for tests that need to step over a TTL
// boundary without sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// Cache is safe for concurrent use by multiple goroutines.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	items    map[K]*list.Element
	order    *list.List // front = most recently used
}

// New builds a cache holding at most capacity entries, each living ttl unless
// set with SetWithTTL. A capacity below one is raised to one.
func New[K comparable, V any](capacity int, ttl time.Duration, opts ...Option) *Cache[K, V] {
	cfg := config{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		now:      cfg.now,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if !c.now().Before(e.expires) {
		c.removeElement(el)
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value with its own lifetime. A non-positive ttl removes
// any existing entry instead of storing one that is already expired.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		if el, ok := c.items[key]; ok {
			c.removeElement(el)
		}
		return
	}

	expires := c.now().Add(ttl)
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.expires = expires
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, expires: expires})
	for c.order.Len() > c.capacity {
		c.removeElement(c.order.Back())
	}
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Len counts stored entries, including expired ones not yet read.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache[K, V]) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[K, V]).key)
}
