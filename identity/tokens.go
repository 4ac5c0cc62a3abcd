// Package identity turns bearer tokens into verified credentials.
//
// Tokens are HMAC-signed JWTs issued by the local Provider at signup and
// login. Every request resolves its token through a CredentialCache, which
// remembers both accepted and rejected tokens for a bounded time so that
// verification is not repeated on every call.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postboard/apperr"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	EmailVerified bool `json:"email_verified"`
	jwt.RegisteredClaims
}

// Verifier checks a raw token and returns its claims. Invalid or expired
// tokens are reported as apperr.KindUnauthenticated; any other error means the
// verifier itself failed.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type TokensOption func(*Tokens)

func WithTokenClock(now func() time.Time) TokensOption {
	return func(t *Tokens) { t.now = now }
}

func NewTokens(secret string, ttl time.Duration, opts ...TokensOption) *Tokens {
	t := &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Issue signs a token for subject that expires after the configured ttl.
func (t *Tokens) Issue(subject string, emailVerified bool) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := &Claims{
		EmailVerified: emailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (t *Tokens) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &apperr.Error{Kind: apperr.KindUnauthenticated, Message: "Token has expired", Err: err}
		}
		return nil, &apperr.Error{Kind: apperr.KindUnauthenticated, Message: "Invalid token", Err: err}
	}
	if !token.Valid || claims.Subject == "" {
		return nil, apperr.Unauthenticated("Invalid token")
	}
	return claims, nil
}
