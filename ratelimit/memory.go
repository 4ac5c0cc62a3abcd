package ratelimit

import (
	"context"
	"sync"
	"time"

	"postboard/cache"
)

type counter struct {
	n int64
}

// MemoryStore keeps counters in process-local caches. It is safe for
// concurrent use, but each replica enforces its own limits; use RedisStore to
// share them.
type MemoryStore struct {
	mu       sync.Mutex
	counters *cache.Cache[string, *counter]
	claims   *cache.Cache[string, struct{}]
}

// NewMemoryStore bounds each of its caches to capacity identities. When full,
// the least recently seen identity loses its counter, which only makes the
// limiter more lenient for it.
func NewMemoryStore(capacity int, opts ...cache.Option) *MemoryStore {
	return &MemoryStore{
		counters: cache.New[string, *counter](capacity, time.Minute, opts...),
		claims:   cache.New[string, struct{}](capacity, time.Second, opts...),
	}
}

func (m *MemoryStore) Incr(ctx context.Context, id Identity, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := id.String()
	c, ok := m.counters.Get(key)
	if !ok {
		m.counters.SetWithTTL(key, &counter{n: 1}, window)
		return 1, nil
	}
	c.n++
	return c.n, nil
}

func (m *MemoryStore) Claim(ctx context.Context, id Identity, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := id.String()
	if _, ok := m.claims.Get(key); ok {
		return false, nil
	}
	m.claims.SetWithTTL(key, struct{}{}, ttl)
	return true, nil
}
