// Package feed is postboard's request layer: it validates and rate limits
// every operation, reads and writes the store, and expands posts for clients.
//
// Reads page through posts newest first with an opaque "before" cursor and
// resolve each page through a fanout.Resolver. Writes require a verified
// member, pass the member's cooldown, and only then touch the store.
package feed

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"postboard/apperr"
	"postboard/fanout"
	"postboard/identity"
	"postboard/models"
	"postboard/notify"
	"postboard/pagination"
	"postboard/ratelimit"
	"postboard/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Config struct {
	FeedLimitMax        int
	CommentsPageDefault int
	CommentsPageMax     int
	MinimumAge          int
}

func DefaultConfig() Config {
	return Config{
		FeedLimitMax:        20,
		CommentsPageDefault: 5,
		CommentsPageMax:     20,
		MinimumAge:          13,
	}
}

// AvatarStore uploads avatars and signs their URLs.
type AvatarStore interface {
	URL(ctx context.Context, subject string) string
	Upload(ctx context.Context, subject string, image io.Reader) (string, error)
}

type Service struct {
	store    store.Store
	limiter  *ratelimit.Limiter
	resolver *fanout.Resolver
	avatars  AvatarStore
	notifier notify.Notifier
	cfg      Config
	now      func() time.Time
	in       *inputs
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func New(st store.Store, limiter *ratelimit.Limiter, resolver *fanout.Resolver, avatars AvatarStore, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:    st,
		limiter:  limiter,
		resolver: resolver,
		avatars:  avatars,
		notifier: notify.Noop{},
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.in = newInputs(s.now, cfg.MinimumAge)
	return s
}

// authenticated returns the viewer's subject, or UNAUTHENTICATED for
// anonymous requests.
func authenticated(viewer *identity.Credential) (string, error) {
	if viewer == nil || viewer.Subject == "" {
		return "", apperr.Unauthenticated("[Auth] You must be signed in to do this")
	}
	return viewer.Subject, nil
}

// verified additionally requires a verified email.
func verified(viewer *identity.Credential) (string, error) {
	subject, err := authenticated(viewer)
	if err != nil {
		return "", err
	}
	if !viewer.EmailVerified {
		return "", apperr.Permission("[Auth] You must verify your email before doing this")
	}
	return subject, nil
}

// beginWrite runs the checks every mutating operation starts with.
func (s *Service) beginWrite(ctx context.Context, viewer *identity.Credential) (string, error) {
	subject, err := verified(viewer)
	if err != nil {
		return "", err
	}
	if err := s.limiter.Cooldown(ctx, subject); err != nil {
		return "", upstream("[Rate Limit] Could not check the rate limit", err)
	}
	return subject, nil
}

// upstream passes typed errors through and reports anything else as
// INTERNAL with message.
func upstream(message string, err error) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return err
	}
	log.Printf("[Feed] %s: %v", message, err)
	return apperr.Internal(message, err)
}

func (s *Service) postFetch(scope pagination.Scope) pagination.Fetch[models.Post] {
	return func(ctx context.Context, before *primitive.ObjectID, limit int) ([]models.Post, error) {
		return s.store.FindPosts(ctx, scope, before, limit)
	}
}

func (s *Service) resolvePage(ctx context.Context, page pagination.Page[models.Post], viewer string) (pagination.Page[fanout.Post], error) {
	posts, err := s.resolver.Resolve(ctx, page.Items, viewer)
	if err != nil {
		return pagination.Page[fanout.Post]{}, upstream("Failed to load posts", err)
	}
	return pagination.Page[fanout.Post]{Items: posts, NextCursor: page.NextCursor, HasMore: page.HasMore}, nil
}

func viewerID(viewer *identity.Credential) string {
	if viewer == nil {
		return ""
	}
	return viewer.Subject
}
