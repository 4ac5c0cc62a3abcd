package identity

import (
	"context"
	"log"
	"strings"
	"time"

	"postboard/apperr"
	"postboard/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// IdentityStore persists local identities. A missing identity is reported as
// apperr.KindNotFound and an email collision on insert as
// apperr.KindDuplicate.
type IdentityStore interface {
	FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error)
	InsertIdentity(ctx context.Context, identity *models.Identity) error
	TouchIdentity(ctx context.Context, id string, at time.Time) error
}

type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Provider is the local identity provider: email and password accounts whose
// sessions are Tokens. It has no mail channel, so a local identity owns its
// email from signup on and is issued verified tokens.
type Provider struct {
	store  IdentityStore
	tokens *Tokens
	cost   int
	now    func() time.Time
}

type ProviderOption func(*Provider)

// WithCost overrides the bcrypt cost.
func WithCost(cost int) ProviderOption {
	return func(p *Provider) { p.cost = cost }
}

func NewProvider(store IdentityStore, tokens *Tokens, opts ...ProviderOption) *Provider {
	p := &Provider{
		store:  store,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Signup(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)

	_, err := p.store.FindIdentityByEmail(ctx, email)
	if err == nil {
		return Session{}, apperr.Duplicate("Email already in use")
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return Session{}, apperr.Internal("Database error", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return Session{}, apperr.Internal("Failed to hash password", err)
	}

	now := p.now()
	identity := &models.Identity{
		ID:            primitive.NewObjectID().Hex(),
		Email:         email,
		PasswordHash:  string(hashed),
		EmailVerified: true,
		CreatedAt:     now,
		LastSeen:      now,
	}
	if err := p.store.InsertIdentity(ctx, identity); err != nil {
		if apperr.Is(err, apperr.KindDuplicate) {
			return Session{}, apperr.Duplicate("Email already in use")
		}
		return Session{}, apperr.Internal("Failed to create user", err)
	}

	log.Printf("[Auth] New identity %s", identity.ID)
	return p.session(identity)
}

func (p *Provider) Login(ctx context.Context, email, password string) (Session, error) {
	identity, err := p.store.FindIdentityByEmail(ctx, normalizeEmail(email))
	if apperr.Is(err, apperr.KindNotFound) {
		return Session{}, apperr.Unauthenticated("Invalid email or password")
	}
	if err != nil {
		return Session{}, apperr.Internal("Database error", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return Session{}, apperr.Unauthenticated("Invalid email or password")
	}

	if err := p.store.TouchIdentity(ctx, identity.ID, p.now()); err != nil {
		log.Printf("[Auth] Could not update last seen for %s: %v", identity.ID, err)
	}
	return p.session(identity)
}

func (p *Provider) session(identity *models.Identity) (Session, error) {
	token, expires, err := p.tokens.Issue(identity.ID, identity.EmailVerified)
	if err != nil {
		return Session{}, apperr.Internal("Failed to generate token", err)
	}
	return Session{Token: token, UserID: identity.ID, ExpiresAt: expires}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
