package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Location is created the first time a post names it; every later post at the
// same text bumps Reputation by one.
type Location struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Location   string             `bson:"location" json:"location"`
	Reputation int64              `bson:"reputation" json:"reputation"`
}
