package models

import "time"

// Identity is a credential record of the local identity provider. Accounts are
// keyed by the same ID.
type Identity struct {
	ID            string    `bson:"_id" json:"id"`
	Email         string    `bson:"email" json:"email"`
	PasswordHash  string    `bson:"passwordHash" json:"-"`
	EmailVerified bool      `bson:"emailVerified" json:"emailVerified"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	LastSeen      time.Time `bson:"lastSeen" json:"lastSeen"`
}
