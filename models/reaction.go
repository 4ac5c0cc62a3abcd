package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReactionKind string

const (
	Upvote   ReactionKind = "UPVOTE"
	Downvote ReactionKind = "DOWNVOTE"
)

// Reaction is unique per (Post, Author); reacting again replaces Reaction.
type Reaction struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Post     primitive.ObjectID `bson:"post" json:"post"`
	Author   string             `bson:"author" json:"author"`
	Reaction ReactionKind       `bson:"reaction" json:"reaction"`
	Created  time.Time          `bson:"created" json:"created"`
}

// ReactionSummary is computed live for every resolved post.
type ReactionSummary struct {
	Upvotes   int64        `json:"upvotes"`
	Downvotes int64        `json:"downvotes"`
	Reaction  ReactionKind `json:"reaction,omitempty"` // the viewer's own reaction
}
