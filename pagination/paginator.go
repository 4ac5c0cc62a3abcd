// Package pagination implements "before cursor" paging over entities whose
// ObjectIDs grow monotonically with creation time.
//
// A page is always ordered newest first. An empty cursor asks for the newest
// page; a cursor asks for entities strictly older than it. Pages never overlap
// and, as long as nothing is deleted in between, never leave gaps.
package pagination

import (
	"context"
	"fmt"
	"strings"

	"postboard/apperr"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Keyed entities expose the id used as their cursor.
type Keyed interface {
	Key() primitive.ObjectID
}

// Fetch returns up to limit entities with id < before (or the newest ones
// when before is nil), newest first.
type Fetch[T Keyed] func(ctx context.Context, before *primitive.ObjectID, limit int) ([]T, error)

type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

// ParseCursor validates a cursor. An empty cursor yields nil.
func ParseCursor(raw string) (*primitive.ObjectID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return nil, apperr.Validation("before", "objectid", "[User Input] Before cursor is not a valid id")
	}
	return &id, nil
}

// Limit resolves a requested page size. Zero means max; anything outside
// [1, max] is rejected rather than truncated.
func Limit(requested, max int) (int, error) {
	switch {
	case requested == 0:
		return max, nil
	case requested < 0:
		return 0, apperr.Validation("limit", "min", "[User Input] limit must be positive")
	case requested > max:
		return 0, apperr.Validation("limit", "max", fmt.Sprintf("[User Input] Cannot query more than %d", max))
	}
	return requested, nil
}

// Paginate validates cursor and limit, fetches one extra entity to learn
// whether more pages exist, and builds the page.
func Paginate[T Keyed](ctx context.Context, fetch Fetch[T], cursor string, limit, max int) (Page[T], error) {
	n, err := Limit(limit, max)
	if err != nil {
		return Page[T]{}, err
	}
	before, err := ParseCursor(cursor)
	if err != nil {
		return Page[T]{}, err
	}
	return Take(ctx, fetch, before, n)
}

// Take fetches a page of n entities below before, for callers that already
// validated their inputs.
func Take[T Keyed](ctx context.Context, fetch Fetch[T], before *primitive.ObjectID, n int) (Page[T], error) {
	items, err := fetch(ctx, before, n+1)
	if err != nil {
		return Page[T]{}, err
	}
	return build(items, n), nil
}

func build[T Keyed](items []T, n int) Page[T] {
	page := Page[T]{Items: items}
	if len(items) > n {
		page.Items = items[:n]
		page.HasMore = true
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	if page.HasMore && len(page.Items) > 0 {
		page.NextCursor = page.Items[len(page.Items)-1].Key().Hex()
	}
	return page
}
