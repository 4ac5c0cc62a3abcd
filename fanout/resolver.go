// Package fanout expands stored posts into the nested documents clients
// render: author with avatar, location, newest comments and reaction counts.
//
// Within a single Resolve call every distinct author, location and avatar is
// looked up at most once, however many posts or comments refer to it.
// Authors and locations are additionally kept in time-bounded caches shared by
// all requests; comments and reactions are always read live.
package fanout

import (
	"context"
	"fmt"
	"log"
	"time"

	"postboard/apperr"
	"postboard/avatar"
	"postboard/cache"
	"postboard/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

const UnknownMember = "Unknown member"

type Source interface {
	FindAccount(ctx context.Context, id string) (*models.Account, error)
	FindLocation(ctx context.Context, id primitive.ObjectID) (*models.Location, error)
	FindComments(ctx context.Context, post primitive.ObjectID, before *primitive.ObjectID, limit int) ([]models.Comment, error)
	ReactionCounts(ctx context.Context, post primitive.ObjectID) (upvotes, downvotes int64, err error)
	FindReaction(ctx context.Context, post primitive.ObjectID, author string) (*models.Reaction, error)
}

type Avatars interface {
	URL(ctx context.Context, subject string) string
}

type Post struct {
	ID        primitive.ObjectID     `json:"id"`
	Author    models.Author          `json:"author"`
	Location  *models.Location       `json:"location"`
	Content   string                 `json:"content"`
	Created   time.Time              `json:"created"`
	Pinned    bool                   `json:"pinned"`
	Comments  []Comment              `json:"comments"`
	Reactions models.ReactionSummary `json:"reactions"`
}

func (p Post) Key() primitive.ObjectID { return p.ID }

type Comment struct {
	ID      primitive.ObjectID `json:"id"`
	Post    primitive.ObjectID `json:"post"`
	Author  models.Author      `json:"author"`
	Content string             `json:"content"`
	Created time.Time          `json:"created"`
}

func (c Comment) Key() primitive.ObjectID { return c.ID }

type Config struct {
	CommentsPerPost int
	Concurrency     int
	AuthorTTL       time.Duration
	LocationTTL     time.Duration
	CacheCapacity   int
}

func DefaultConfig() Config {
	return Config{
		CommentsPerPost: 10,
		Concurrency:     8,
		AuthorTTL:       5 * time.Minute,
		LocationTTL:     10 * time.Minute,
		CacheCapacity:   10000,
	}
}

type Resolver struct {
	src       Source
	avatars   Avatars
	cfg       Config
	authors   *cache.Cache[string, models.Author]
	locations *cache.Cache[primitive.ObjectID, models.Location]
}

func NewResolver(src Source, avatars Avatars, cfg Config, opts ...cache.Option) *Resolver {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Resolver{
		src:       src,
		avatars:   avatars,
		cfg:       cfg,
		authors:   cache.New[string, models.Author](cfg.CacheCapacity, cfg.AuthorTTL, opts...),
		locations: cache.New[primitive.ObjectID, models.Location](cfg.CacheCapacity, cfg.LocationTTL, opts...),
	}
}

// ForgetAuthor drops the cached snapshot of a member whose account changed.
func (r *Resolver) ForgetAuthor(id string) {
	r.authors.Delete(id)
}

// Author resolves a single member outside of a page.
func (r *Resolver) Author(ctx context.Context, id string) models.Author {
	return r.author(ctx, newScope(), id)
}

// scope holds the lookups of one Resolve call.
type scope struct {
	authors   *memo[string, models.Author]
	avatars   *memo[string, string]
	locations *memo[primitive.ObjectID, *models.Location]
}

func newScope() *scope {
	return &scope{
		authors:   newMemo[string, models.Author](),
		avatars:   newMemo[string, string](),
		locations: newMemo[primitive.ObjectID, *models.Location](),
	}
}

// Resolve expands posts in order. viewer may be empty for anonymous reads,
// in which case no own reaction is reported. Failing author or location
// lookups degrade to placeholders; failing comment or reaction reads fail the
// whole call.
func (r *Resolver) Resolve(ctx context.Context, posts []models.Post, viewer string) ([]Post, error) {
	out := make([]Post, len(posts))
	if len(posts) == 0 {
		return out, nil
	}

	s := newScope()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i, p := range posts {
		i, p := i, p
		g.Go(func() error {
			resolved, err := r.resolvePost(gctx, s, p, viewer)
			if err != nil {
				return err
			}
			out[i] = resolved
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveComments attaches authors to a page of comments.
func (r *Resolver) ResolveComments(ctx context.Context, comments []models.Comment) []Comment {
	return r.comments(ctx, newScope(), comments)
}

func (r *Resolver) resolvePost(ctx context.Context, s *scope, p models.Post, viewer string) (Post, error) {
	post := Post{
		ID:       p.ID,
		Author:   r.author(ctx, s, p.Author),
		Location: r.location(ctx, s, p.Location),
		Content:  p.Content,
		Created:  p.Created,
		Pinned:   p.Pinned,
	}

	comments, err := r.src.FindComments(ctx, p.ID, nil, r.cfg.CommentsPerPost)
	if err != nil {
		return Post{}, fmt.Errorf("comments of %s: %w", p.ID.Hex(), err)
	}
	post.Comments = r.comments(ctx, s, comments)

	up, down, err := r.src.ReactionCounts(ctx, p.ID)
	if err != nil {
		return Post{}, fmt.Errorf("reactions of %s: %w", p.ID.Hex(), err)
	}
	post.Reactions = models.ReactionSummary{Upvotes: up, Downvotes: down}

	if viewer != "" {
		mine, err := r.src.FindReaction(ctx, p.ID, viewer)
		if err != nil {
			return Post{}, fmt.Errorf("reaction of %s on %s: %w", viewer, p.ID.Hex(), err)
		}
		if mine != nil {
			post.Reactions.Reaction = mine.Reaction
		}
	}
	return post, nil
}

func (r *Resolver) comments(ctx context.Context, s *scope, comments []models.Comment) []Comment {
	out := make([]Comment, 0, len(comments))
	for _, c := range comments {
		out = append(out, Comment{
			ID:      c.ID,
			Post:    c.Post,
			Author:  r.author(ctx, s, c.Author),
			Content: c.Content,
			Created: c.Created,
		})
	}
	return out
}

func placeholder(id string) models.Author {
	return models.Author{ID: id, DisplayName: UnknownMember, Avatar: avatar.Fallback}
}

func (r *Resolver) author(ctx context.Context, s *scope, id string) models.Author {
	return s.authors.get(id, func() models.Author {
		a, ok := r.authors.Get(id)
		if !ok {
			account, err := r.src.FindAccount(ctx, id)
			if err != nil {
				if !apperr.Is(err, apperr.KindNotFound) {
					log.Printf("[Fanout] Failed to load author %s: %v", id, err)
				}
				return placeholder(id)
			}
			a = models.Author{ID: account.ID, DisplayName: account.DisplayName}
			r.authors.Set(id, a)
		}
		a.Avatar = s.avatars.get(id, func() string { return r.avatars.URL(ctx, id) })
		return a
	})
}

func (r *Resolver) location(ctx context.Context, s *scope, id primitive.ObjectID) *models.Location {
	if id.IsZero() {
		return nil
	}
	return s.locations.get(id, func() *models.Location {
		if loc, ok := r.locations.Get(id); ok {
			return &loc
		}
		loc, err := r.src.FindLocation(ctx, id)
		if err != nil {
			if !apperr.Is(err, apperr.KindNotFound) {
				log.Printf("[Fanout] Failed to load location %s: %v", id.Hex(), err)
			}
			return nil
		}
		r.locations.Set(id, *loc)
		return loc
	})
}
