package identity

import (
	"context"
	"log"
	"strings"
	"time"

	"postboard/apperr"
	"postboard/cache"

	"golang.org/x/sync/singleflight"
)

type Credential struct {
	Subject       string
	EmailVerified bool
	ExpiresAt     time.Time
}

type outcome struct {
	cred Credential
	err  error
}

// CredentialCache memoizes token verification by raw token string.
//
// An accepted token is remembered for the configured ttl, but never past its
// own expiry. A rejected token is remembered for rejectTTL so that a client
// retrying a bad token does not reach the verifier each time. Failures of the
// verifier itself are not cached.
type CredentialCache struct {
	verifier  Verifier
	entries   *cache.Cache[string, outcome]
	ttl       time.Duration
	rejectTTL time.Duration
	now       func() time.Time
	group     singleflight.Group
}

type CredentialOption func(*credentialConfig)

type credentialConfig struct {
	rejectTTL time.Duration
	now       func() time.Time
}

// WithRejectTTL sets how long a rejected token is remembered (default 30s).
func WithRejectTTL(d time.Duration) CredentialOption {
	return func(c *credentialConfig) { c.rejectTTL = d }
}

func WithCredentialClock(now func() time.Time) CredentialOption {
	return func(c *credentialConfig) { c.now = now }
}

func NewCredentialCache(v Verifier, capacity int, ttl time.Duration, opts ...CredentialOption) *CredentialCache {
	cfg := credentialConfig{rejectTTL: 30 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CredentialCache{
		verifier:  v,
		entries:   cache.New[string, outcome](capacity, ttl, cache.WithClock(cfg.now)),
		ttl:       ttl,
		rejectTTL: cfg.rejectTTL,
		now:       cfg.now,
	}
}

// Resolve verifies raw, which may carry a "Bearer " prefix. An empty token is
// rejected without consulting the verifier.
func (c *CredentialCache) Resolve(ctx context.Context, raw string) (Credential, error) {
	token := bearer(raw)
	if token == "" {
		return Credential{}, apperr.Unauthenticated("Authentication required")
	}

	if o, ok := c.entries.Get(token); ok {
		return o.cred, o.err
	}

	v, err, _ := c.group.Do(token, func() (interface{}, error) {
		if o, ok := c.entries.Get(token); ok {
			return o, nil
		}
		return c.verify(ctx, token)
	})
	if err != nil {
		return Credential{}, err
	}
	o := v.(outcome)
	return o.cred, o.err
}

func (c *CredentialCache) verify(ctx context.Context, token string) (outcome, error) {
	claims, err := c.verifier.Verify(ctx, token)
	if err != nil {
		if apperr.Is(err, apperr.KindUnauthenticated) {
			o := outcome{err: err}
			c.entries.SetWithTTL(token, o, c.rejectTTL)
			return o, nil
		}
		log.Printf("[Auth] Verifier failure: %v", err)
		return outcome{}, apperr.Internal("Could not verify credentials", err)
	}

	cred := Credential{Subject: claims.Subject, EmailVerified: claims.EmailVerified}
	ttl := c.ttl
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
		if left := cred.ExpiresAt.Sub(c.now()); left < ttl {
			ttl = left
		}
	}
	o := outcome{cred: cred}
	c.entries.SetWithTTL(token, o, ttl)
	return o, nil
}

func bearer(raw string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
}
