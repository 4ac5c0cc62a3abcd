package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript starts the window on the first hit so INCR and PEXPIRE happen
// as one step on the server.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisStore shares counters between replicas.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix (default "ratelimit:").
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisStore) { r.prefix = prefix }
}

// WithTimeout bounds every Redis round trip (default 2s).
func WithTimeout(d time.Duration) RedisOption {
	return func(r *RedisStore) { r.timeout = d }
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	r := &RedisStore{
		client:  client,
		prefix:  "ratelimit:",
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) Incr(ctx context.Context, id Identity, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return incrScript.Run(ctx, r.client, []string{r.prefix + id.String()}, window.Milliseconds()).Int64()
}

func (r *RedisStore) Claim(ctx context.Context, id Identity, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.client.SetNX(ctx, r.prefix+id.String(), 1, ttl).Result()
}
