// Package ratelimit enforces postboard's request and write limits.
//
// There are four independent tiers, each reporting its own recoverable error:
//
//   - Throttle: a fixed-window request counter per client IP.
//   - Cooldown: a minimum spacing between mutating operations of one member.
//   - CheckPostFlood / CheckCommentFlood: content-based limits evaluated against
//     the stored creation timestamps, not counters.
//   - CheckFollowCap: a cap on outbound follows, counted live at write time.
//
// Window and cooldown tiers keep their state in a Store (MemoryStore for a
// single process, RedisStore for a fleet).
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"postboard/apperr"
)

type Config struct {
	RequestLimit    int64 // requests per RequestWindow and IP
	RequestWindow   time.Duration
	Cooldown        time.Duration // minimum gap between mutating operations
	DuplicateWindow time.Duration // identical post content
	GeneralWindow   time.Duration // any post, any comment
	FollowLimit     int64
	AvatarPeriod    time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestLimit:    60,
		RequestWindow:   time.Minute,
		Cooldown:        200 * time.Millisecond,
		DuplicateWindow: time.Hour,
		GeneralWindow:   time.Minute,
		FollowLimit:     100,
		AvatarPeriod:    24 * time.Hour,
	}
}

type PostHistory interface {
	// RecentPostExists reports whether author created a post with content at
	// or after duplicateSince, or any post at or after anySince.
	RecentPostExists(ctx context.Context, author, content string, duplicateSince, anySince time.Time) (bool, error)
}

type CommentHistory interface {
	RecentCommentExists(ctx context.Context, author string, since time.Time) (bool, error)
}

type FollowCounter interface {
	CountFollows(ctx context.Context, author string) (int64, error)
}

type Limiter struct {
	store Store
	cfg   Config
	now   func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(store Store, cfg Config, opts ...Option) *Limiter {
	l := &Limiter{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Throttle counts one request from ip.
func (l *Limiter) Throttle(ctx context.Context, ip string) error {
	n, err := l.store.Incr(ctx, Identity{Namespace: NamespaceIP, Key: ip}, l.cfg.RequestWindow)
	if err != nil {
		return fmt.Errorf("throttle %s: %w", ip, err)
	}
	if n > l.cfg.RequestLimit {
		return apperr.RateLimit("[Rate Limit] Too many requests, slow down")
	}
	return nil
}

// Cooldown admits a mutating operation by member unless the previous one was
// less than Config.Cooldown ago. Rejected calls do not push the window.
func (l *Limiter) Cooldown(ctx context.Context, member string) error {
	ok, err := l.store.Claim(ctx, Identity{Namespace: NamespaceOp, Key: member}, l.cfg.Cooldown)
	if err != nil {
		return fmt.Errorf("cooldown %s: %w", member, err)
	}
	if !ok {
		return apperr.RateLimit("[Rate Limit] You are doing that too fast")
	}
	return nil
}

func (l *Limiter) CheckPostFlood(ctx context.Context, h PostHistory, author, content string) error {
	now := l.now()
	exists, err := h.RecentPostExists(ctx, author, content, now.Add(-l.cfg.DuplicateWindow), now.Add(-l.cfg.GeneralWindow))
	if err != nil {
		return fmt.Errorf("post history %s: %w", author, err)
	}
	if exists {
		return apperr.RateLimit("[Rate Limit] You cannot post the same post twice in an hour or post multiple posts in a minute")
	}
	return nil
}

func (l *Limiter) CheckCommentFlood(ctx context.Context, h CommentHistory, author string) error {
	exists, err := h.RecentCommentExists(ctx, author, l.now().Add(-l.cfg.GeneralWindow))
	if err != nil {
		return fmt.Errorf("comment history %s: %w", author, err)
	}
	if exists {
		return apperr.RateLimit("[Rate Limit] You cannot comment twice in a single minute. Give others a chance!")
	}
	return nil
}

// CheckFollowCap rejects a new follow once author already follows
// Config.FollowLimit members. Concurrent follows may overshoot slightly.
func (l *Limiter) CheckFollowCap(ctx context.Context, c FollowCounter, author string) error {
	n, err := c.CountFollows(ctx, author)
	if err != nil {
		return fmt.Errorf("count follows %s: %w", author, err)
	}
	if n >= l.cfg.FollowLimit {
		return apperr.AccountLimit("[Account Limit] You exceeded the maximum number of allowed follows")
	}
	return nil
}

// AvatarUpdate allows one avatar change per member per Config.AvatarPeriod.
func (l *Limiter) AvatarUpdate(ctx context.Context, member string) error {
	ok, err := l.store.Claim(ctx, Identity{Namespace: NamespaceAvatar, Key: member}, l.cfg.AvatarPeriod)
	if err != nil {
		return fmt.Errorf("avatar period %s: %w", member, err)
	}
	if !ok {
		return apperr.RateLimit("[Rate Limit] Your avatar can only be changed once a day")
	}
	return nil
}
