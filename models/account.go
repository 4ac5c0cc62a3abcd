package models

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Account is the public profile of a member. ID is the credential subject.
type Account struct {
	ID          string    `bson:"_id" json:"id"`
	DisplayName string    `bson:"displayName" json:"displayName"`
	DateOfBirth time.Time `bson:"dateOfBirth" json:"dateOfBirth"`
	Location    string    `bson:"location" json:"location"`
	Tagline     string    `bson:"tagline,omitempty" json:"tagline,omitempty"`
	Email       string    `bson:"email" json:"email"`
}

// Author is the snapshot of an account embedded in resolved posts and comments.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

// PushSubscription stores one browser push endpoint per member.
type PushSubscription struct {
	ID     primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Member string               `bson:"member" json:"member"`
	Sub    webpush.Subscription `bson:"sub" json:"sub"`
}
