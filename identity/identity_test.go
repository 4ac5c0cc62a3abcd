package identity

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"postboard/apperr"
	"postboard/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
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

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestTokens_Verify(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	tokens := NewTokens("secret", time.Hour, WithTokenClock(clk.Now))

	raw, expires, err := tokens.Issue("member-1", true)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !expires.Equal(clk.Now().Add(time.Hour)) {
		t.Errorf("expires = %v", expires)
	}

	claims, err := tokens.Verify(ctx, raw)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "member-1" || !claims.EmailVerified {
		t.Errorf("unexpected claims %+v", claims)
	}

	other := NewTokens("another-secret", time.Hour, WithTokenClock(clk.Now))
	if _, err := other.Verify(ctx, raw); !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Errorf("token signed with another secret should be rejected, got %v", err)
	}

	clk.Advance(2 * time.Hour)
	if _, err := tokens.Verify(ctx, raw); !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Errorf("expired token should be rejected, got %v", err)
	}
}

func TestTokens_RejectsUnsignedTokens(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "member-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewTokens("secret", time.Hour).Verify(context.Background(), raw); !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Errorf("alg=none token should be rejected, got %v", err)
	}
}

type countingVerifier struct {
	calls  atomic.Int32
	tokens *Tokens
}

func (v *countingVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	v.calls.Add(1)
	return v.tokens.Verify(ctx, raw)
}

func TestCredentialCache_VerifiesOncePerToken(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	tokens := NewTokens("secret", time.Hour, WithTokenClock(clk.Now))
	v := &countingVerifier{tokens: tokens}
	creds := NewCredentialCache(v, 16, 5*time.Minute, WithCredentialClock(clk.Now))

	raw, _, _ := tokens.Issue("member-1", true)

	var wg sync.WaitGroup
	for range make([]struct{}, 20) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := creds.Resolve(ctx, "Bearer "+raw)
			if err != nil || cred.Subject != "member-1" {
				t.Errorf("Resolve = %+v, %v", cred, err)
			}
		}()
	}
	wg.Wait()

	if n := v.calls.Load(); n != 1 {
		t.Errorf("verifier called %d times, want 1", n)
	}

	clk.Advance(5 * time.Minute)
	if _, err := creds.Resolve(ctx, raw); err != nil {
		t.Fatal(err)
	}
	if n := v.calls.Load(); n != 2 {
		t.Errorf("expected re-verification after the ttl, calls = %d", n)
	}
}

func TestCredentialCache_CachesRejections(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	v := &countingVerifier{tokens: NewTokens("secret", time.Hour, WithTokenClock(clk.Now))}
	creds := NewCredentialCache(v, 16, 5*time.Minute, WithCredentialClock(clk.Now), WithRejectTTL(10*time.Second))

	for range make([]struct{}, 3) {
		if _, err := creds.Resolve(ctx, "not-a-jwt"); !apperr.Is(err, apperr.KindUnauthenticated) {
			t.Fatalf("expected UNAUTHENTICATED, got %v", err)
		}
	}
	if n := v.calls.Load(); n != 1 {
		t.Errorf("verifier called %d times for a rejected token, want 1", n)
	}

	clk.Advance(10 * time.Second)
	creds.Resolve(ctx, "not-a-jwt")
	if n := v.calls.Load(); n != 2 {
		t.Errorf("rejection should expire after its ttl, calls = %d", n)
	}
}

func TestCredentialCache_TTLBoundedByExpiry(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	tokens := NewTokens("secret", time.Minute, WithTokenClock(clk.Now))
	v := &countingVerifier{tokens: tokens}
	creds := NewCredentialCache(v, 16, time.Hour, WithCredentialClock(clk.Now))

	raw, _, _ := tokens.Issue("member-1", false)
	cred, err := creds.Resolve(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	if cred.EmailVerified {
		t.Error("credential should carry the unverified flag")
	}

	clk.Advance(time.Minute)
	if _, err := creds.Resolve(ctx, raw); !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Errorf("expired token must not be served from cache, got %v", err)
	}
}

func TestCredentialCache_EmptyToken(t *testing.T) {
	v := &countingVerifier{tokens: NewTokens("secret", time.Hour)}
	creds := NewCredentialCache(v, 16, time.Minute)

	for _, raw := range []string{"", "Bearer ", "   "} {
		if _, err := creds.Resolve(context.Background(), raw); !apperr.Is(err, apperr.KindUnauthenticated) {
			t.Errorf("Resolve(%q) = %v, want UNAUTHENTICATED", raw, err)
		}
	}
	if v.calls.Load() != 0 {
		t.Error("empty tokens should not reach the verifier")
	}
}

type identities struct {
	mu      sync.Mutex
	byEmail map[string]*models.Identity
}

func (s *identities) FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byEmail[email]; ok {
		cp := *id
		return &cp, nil
	}
	return nil, apperr.NotFound("identity not found")
}

func (s *identities) InsertIdentity(ctx context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[identity.Email]; ok {
		return apperr.Duplicate("email taken")
	}
	cp := *identity
	s.byEmail[identity.Email] = &cp
	return nil
}

func (s *identities) TouchIdentity(ctx context.Context, id string, at time.Time) error {
	return nil
}

func TestProvider_SignupAndLogin(t *testing.T) {
	ctx := context.Background()
	store := &identities{byEmail: map[string]*models.Identity{}}
	tokens := NewTokens("secret", time.Hour)
	p := NewProvider(store, tokens, WithCost(bcrypt.MinCost))

	session, err := p.Signup(ctx, " Ada@Example.com", "password1")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if session.Token == "" || session.UserID == "" {
		t.Fatalf("incomplete session %+v", session)
	}
	if stored := store.byEmail["ada@example.com"]; stored == nil || strings.Contains(stored.PasswordHash, "password1") {
		t.Fatal("identity should be stored under the normalized email with a hashed password")
	}

	if _, err := p.Signup(ctx, "ada@example.com", "other"); !apperr.Is(err, apperr.KindDuplicate) {
		t.Errorf("second signup should be a duplicate, got %v", err)
	}

	login, err := p.Login(ctx, "ADA@example.com", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	claims, err := tokens.Verify(ctx, login.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != session.UserID || !claims.EmailVerified {
		t.Errorf("login token claims = %+v", claims)
	}

	if _, err := p.Login(ctx, "ada@example.com", "wrong"); !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, err := p.Login(ctx, "nobody@example.com", "password1"); !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Errorf("unknown email: got %v", err)
	}
}

func TestProvider_SignupIsVerified(t *testing.T) {
	ctx := context.Background()
	store := &identities{byEmail: map[string]*models.Identity{}}
	tokens := NewTokens("secret", time.Hour)
	p := NewProvider(store, tokens, WithCost(bcrypt.MinCost))

	session, err := p.Signup(ctx, "grace@example.com", "password1")
	if err != nil {
		t.Fatal(err)
	}
	if stored := store.byEmail["grace@example.com"]; stored == nil || !stored.EmailVerified {
		t.Fatalf("stored identity = %+v", stored)
	}
	creds := NewCredentialCache(tokens, 8, time.Minute)
	cred, err := creds.Resolve(ctx, "Bearer "+session.Token)
	if err != nil {
		t.Fatal(err)
	}
	if cred.Subject != session.UserID || !cred.EmailVerified {
		t.Errorf("signup credential = %+v, want a verified member who can write", cred)
	}
}
