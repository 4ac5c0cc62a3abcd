package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"postboard/apperr"
	"postboard/cache"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(cfg Config) (*Limiter, *clock) {
	clk := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(1024, cache.WithClock(clk.Now))
	return New(store, cfg, WithClock(clk.Now)), clk
}

func TestThrottle_FixedWindow(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.RequestLimit = 5
	cfg.RequestWindow = time.Minute
	l, clk := newTestLimiter(cfg)

	for i := 1; i <= 5; i++ {
		if err := l.Throttle(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("request %d unexpectedly rejected: %v", i, err)
		}
	}

	err := l.Throttle(ctx, "10.0.0.1")
	if !apperr.Is(err, apperr.KindRateLimit) {
		t.Fatalf("6th request should be rate limited, got %v", err)
	}

	if err := l.Throttle(ctx, "10.0.0.2"); err != nil {
		t.Errorf("other IPs have their own window: %v", err)
	}

	clk.Advance(time.Minute)
	if err := l.Throttle(ctx, "10.0.0.1"); err != nil {
		t.Errorf("first request after the window should pass: %v", err)
	}
}

func TestThrottle_ConcurrentIncrementsAreNotLost(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(16)
	id := Identity{Namespace: NamespaceIP, Key: "10.0.0.9"}

	var wg sync.WaitGroup
	for range make([]struct{}, 100) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Incr(ctx, id, time.Minute)
		}()
	}
	wg.Wait()

	n, _ := store.Incr(ctx, id, time.Minute)
	if n != 101 {
		t.Errorf("counter = %d after 101 increments", n)
	}
}

func TestCooldown(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLimiter(DefaultConfig())

	if err := l.Cooldown(ctx, "alice"); err != nil {
		t.Fatalf("first operation rejected: %v", err)
	}

	clk.Advance(100 * time.Millisecond)
	if err := l.Cooldown(ctx, "alice"); !apperr.Is(err, apperr.KindRateLimit) {
		t.Fatalf("operation 100ms later should be rejected, got %v", err)
	}
	if err := l.Cooldown(ctx, "bob"); err != nil {
		t.Errorf("cooldown is per member: %v", err)
	}

	clk.Advance(100 * time.Millisecond)
	if err := l.Cooldown(ctx, "alice"); err != nil {
		t.Errorf("operation 200ms after the first should pass: %v", err)
	}
}

type postRecord struct {
	author  string
	content string
	created time.Time
}

type fakeHistory struct {
	posts []postRecord
}

func (f *fakeHistory) RecentPostExists(ctx context.Context, author, content string, duplicateSince, anySince time.Time) (bool, error) {
	for _, p := range f.posts {
		if p.author != author {
			continue
		}
		if p.content == content && !p.created.Before(duplicateSince) {
			return true, nil
		}
		if !p.created.Before(anySince) {
			return true, nil
		}
	}
	return false, nil
}

func TestCheckPostFlood(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLimiter(DefaultConfig())
	h := &fakeHistory{}
	t0 := clk.Now()

	post := func(content string) error {
		if err := l.CheckPostFlood(ctx, h, "alice", content); err != nil {
			return err
		}
		h.posts = append(h.posts, postRecord{author: "alice", content: content, created: clk.Now()})
		return nil
	}

	if err := post("hello"); err != nil {
		t.Fatalf("first post rejected: %v", err)
	}

	clk.Advance(5 * time.Second)
	if err := post("world"); !apperr.Is(err, apperr.KindRateLimit) {
		t.Errorf("different content within 60s should be rejected, got %v", err)
	}

	clk.Advance(2*time.Minute - 5*time.Second)
	if err := post("world"); err != nil {
		t.Errorf("different content after 2 minutes should pass: %v", err)
	}

	clk.now = t0.Add(30 * time.Minute)
	if err := post("hello"); !apperr.Is(err, apperr.KindRateLimit) {
		t.Errorf("same content within an hour should be rejected, got %v", err)
	}

	clk.now = t0.Add(61 * time.Minute)
	if err := post("hello"); err != nil {
		t.Errorf("same content after an hour should pass: %v", err)
	}
}

type countFollows int64

func (c countFollows) CountFollows(ctx context.Context, author string) (int64, error) {
	return int64(c), nil
}

func TestCheckFollowCap(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(DefaultConfig())

	if err := l.CheckFollowCap(ctx, countFollows(99), "alice"); err != nil {
		t.Errorf("100th follow should pass: %v", err)
	}
	if err := l.CheckFollowCap(ctx, countFollows(100), "alice"); !apperr.Is(err, apperr.KindAccountLimit) {
		t.Errorf("101st follow should hit the account limit, got %v", err)
	}
}

type recentComments struct {
	calls atomic.Int32
	since time.Time
	found bool
}

func (r *recentComments) RecentCommentExists(ctx context.Context, author string, since time.Time) (bool, error) {
	r.calls.Add(1)
	r.since = since
	return r.found, nil
}

func TestCheckCommentFlood(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLimiter(DefaultConfig())
	h := &recentComments{}

	if err := l.CheckCommentFlood(ctx, h, "alice"); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if want := clk.Now().Add(-time.Minute); !h.since.Equal(want) {
		t.Errorf("window start = %v, want %v", h.since, want)
	}

	h.found = true
	if err := l.CheckCommentFlood(ctx, h, "alice"); !apperr.Is(err, apperr.KindRateLimit) {
		t.Errorf("expected rate limit, got %v", err)
	}
}

func TestAvatarUpdate(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLimiter(DefaultConfig())

	if err := l.AvatarUpdate(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	clk.Advance(23 * time.Hour)
	if err := l.AvatarUpdate(ctx, "alice"); !apperr.Is(err, apperr.KindRateLimit) {
		t.Errorf("second avatar change within a day should be rejected, got %v", err)
	}
	clk.Advance(time.Hour)
	if err := l.AvatarUpdate(ctx, "alice"); err != nil {
		t.Errorf("avatar change after a day should pass: %v", err)
	}
}
