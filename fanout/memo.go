package fanout

import "sync"

// memo runs load at most once per key, however many goroutines ask for the
// key concurrently. It lives for one Resolve call.
type memo[K comparable, V any] struct {
	mu    sync.Mutex
	cells map[K]*cell[V]
}

type cell[V any] struct {
	once sync.Once
	v    V
}

func newMemo[K comparable, V any]() *memo[K, V] {
	return &memo[K, V]{cells: make(map[K]*cell[V])}
}

func (m *memo[K, V]) get(key K, load func() V) V {
	m.mu.Lock()
	c, ok := m.cells[key]
	if !ok {
		c = &cell[V]{}
		m.cells[key] = c
	}
	m.mu.Unlock()

	c.once.Do(func() { c.v = load() })
	return c.v
}
