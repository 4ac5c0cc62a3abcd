// Package store is postboard's document store.
//
// Mongo is the production implementation; Memory implements the same
// contract in process for tests and local development. Both report a missing
// document as apperr.KindNotFound and a unique-key collision as
// apperr.KindDuplicate. Lookups that may legitimately find nothing (the pinned
// post, the viewer's reaction, a push subscription) return nil without error.
package store

import (
	"context"
	"time"

	"postboard/models"
	"postboard/pagination"
	"postboard/search"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Posts interface {
	// FindPosts returns up to limit posts in scope with _id < before (newest
	// when before is nil), newest first.
	FindPosts(ctx context.Context, scope pagination.Scope, before *primitive.ObjectID, limit int) ([]models.Post, error)
	FindPost(ctx context.Context, id primitive.ObjectID) (*models.Post, error)
	PinnedPost(ctx context.Context, author string) (*models.Post, error)
	CountPosts(ctx context.Context, author string) (int64, error)
	InsertPost(ctx context.Context, post *models.Post) error
	// DeletePost removes the post with its comments and reactions.
	DeletePost(ctx context.Context, id primitive.ObjectID) error
	// PinPost pins id and unpins every other post of author.
	PinPost(ctx context.Context, author string, id primitive.ObjectID) error
	UnpinPost(ctx context.Context, author string, id primitive.ObjectID) error
	RecentPostExists(ctx context.Context, author, content string, duplicateSince, anySince time.Time) (bool, error)
}

type Comments interface {
	FindComments(ctx context.Context, post primitive.ObjectID, before *primitive.ObjectID, limit int) ([]models.Comment, error)
	InsertComment(ctx context.Context, comment *models.Comment) error
	RecentCommentExists(ctx context.Context, author string, since time.Time) (bool, error)
}

type Reactions interface {
	// UpsertReaction stores the reaction of (Post, Author), replacing an
	// earlier one.
	UpsertReaction(ctx context.Context, reaction *models.Reaction) error
	ReactionCounts(ctx context.Context, post primitive.ObjectID) (upvotes, downvotes int64, err error)
	FindReaction(ctx context.Context, post primitive.ObjectID, author string) (*models.Reaction, error)
}

type Follows interface {
	Following(ctx context.Context, author string) ([]string, error)
	CountFollows(ctx context.Context, author string) (int64, error)
	IsFollowing(ctx context.Context, author, following string) (bool, error)
	InsertFollow(ctx context.Context, follow *models.Follow) error
	// DeleteFollow reports whether a follow existed.
	DeleteFollow(ctx context.Context, author, following string) (bool, error)
}

type Locations interface {
	// UpsertLocation creates the location on first use and otherwise bumps
	// its reputation by one. It returns the stored document.
	UpsertLocation(ctx context.Context, text string) (*models.Location, error)
	FindLocation(ctx context.Context, id primitive.ObjectID) (*models.Location, error)
	// SearchLocations ranks by text relevance, then reputation.
	SearchLocations(ctx context.Context, q search.Query, limit int) ([]models.Location, error)
}

type Accounts interface {
	FindAccount(ctx context.Context, id string) (*models.Account, error)
	UpsertAccount(ctx context.Context, account *models.Account) error
}

type Identities interface {
	FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error)
	InsertIdentity(ctx context.Context, identity *models.Identity) error
	TouchIdentity(ctx context.Context, id string, at time.Time) error
}

type PushSubscriptions interface {
	SavePushSubscription(ctx context.Context, sub *models.PushSubscription) error
	FindPushSubscription(ctx context.Context, member string) (*models.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, member string) error
}

type Store interface {
	Posts
	Comments
	Reactions
	Follows
	Locations
	Accounts
	Identities
	PushSubscriptions
}
