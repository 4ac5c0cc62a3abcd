package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Post struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Author   string             `bson:"author" json:"author"`
	Location primitive.ObjectID `bson:"location" json:"location"`
	Content  string             `bson:"content" json:"content"`
	Created  time.Time          `bson:"created" json:"created"`
	Pinned   bool               `bson:"pinned" json:"pinned"`
}

// Key is the pagination cursor for posts.
func (p Post) Key() primitive.ObjectID { return p.ID }

type Comment struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Post    primitive.ObjectID `bson:"post" json:"post"`
	Author  string             `bson:"author" json:"author"`
	Content string             `bson:"content" json:"content"`
	Created time.Time          `bson:"created" json:"created"`
}

func (c Comment) Key() primitive.ObjectID { return c.ID }
