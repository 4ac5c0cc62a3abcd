package ratelimit

import (
	"context"
	"time"
)

type Namespace string

const (
	NamespaceIP     Namespace = "ip"
	NamespaceOp     Namespace = "op"
	NamespaceAvatar Namespace = "avatar"
)

// Identity names "who" a counter belongs to, e.g. {ip, 10.0.0.1}.
type Identity struct {
	Namespace Namespace
	Key       string
}

func (id Identity) String() string {
	return string(id.Namespace) + ":" + id.Key
}

// Store holds the counters behind the window and cooldown tiers. Both
// operations must be atomic in the implementation; callers never read a value
// and write it back.
type Store interface {
	// Incr bumps the fixed-window counter for id and returns the new value.
	// The first increment of a window starts it and schedules its expiry.
	Incr(ctx context.Context, id Identity, window time.Duration) (int64, error)

	// Claim records a marker for id that lives for ttl, unless one is already
	// live. It reports whether this call placed the marker.
	Claim(ctx context.Context, id Identity, ttl time.Duration) (bool, error)
}
