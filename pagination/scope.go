package pagination

import (
	"postboard/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Scope restricts which posts a page may contain. A nil slice means "no
// restriction"; a non-nil empty slice matches nothing.
type Scope struct {
	Authors       []string
	Locations     []primitive.ObjectID
	ExcludePinned bool
}

// Feed covers the viewer and everyone the viewer follows.
func Feed(viewer string, following []string) Scope {
	authors := make([]string, 0, len(following)+1)
	authors = append(authors, viewer)
	for _, id := range following {
		if id != viewer {
			authors = append(authors, id)
		}
	}
	return Scope{Authors: authors}
}

// Profile covers one member's timeline. Pinned posts are surfaced separately
// on the first page, so the timeline itself skips them.
func Profile(member string) Scope {
	return Scope{Authors: []string{member}, ExcludePinned: true}
}

func Explore() Scope { return Scope{} }

func Search(locations []primitive.ObjectID) Scope {
	if locations == nil {
		locations = []primitive.ObjectID{}
	}
	return Scope{Locations: locations}
}

// Matches evaluates the scope against a single post.
func (s Scope) Matches(p models.Post) bool {
	if s.ExcludePinned && p.Pinned {
		return false
	}
	if s.Authors != nil && !contains(s.Authors, p.Author) {
		return false
	}
	if s.Locations != nil && !contains(s.Locations, p.Location) {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
