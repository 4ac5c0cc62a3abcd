package pagination

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"postboard/apperr"
	"postboard/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func idAt(i int) primitive.ObjectID {
	id := primitive.NewObjectIDFromTimestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	binary.BigEndian.PutUint32(id[8:], uint32(i))
	return id
}

// descending returns a Fetch over posts 1..n, newest (highest) first.
func descending(n int, calls *int) Fetch[models.Post] {
	return func(ctx context.Context, before *primitive.ObjectID, limit int) ([]models.Post, error) {
		if calls != nil {
			*calls++
		}
		var out []models.Post
		for i := n; i >= 1 && len(out) < limit; i-- {
			id := idAt(i)
			if before != nil && id.Hex() >= before.Hex() {
				continue
			}
			out = append(out, models.Post{ID: id})
		}
		return out, nil
	}
}

func TestPaginate_WalksWithoutOverlapOrGaps(t *testing.T) {
	ctx := context.Background()
	fetch := descending(23, nil)

	var all []models.Post
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatal("pagination did not terminate")
		}
		page, err := Paginate(ctx, fetch, cursor, 5, 20)
		if err != nil {
			t.Fatalf("Paginate: %v", err)
		}
		if len(page.Items) > 5 {
			t.Fatalf("page has %d items, limit is 5", len(page.Items))
		}
		for i := 1; i < len(page.Items); i++ {
			if page.Items[i-1].ID.Hex() <= page.Items[i].ID.Hex() {
				t.Fatalf("page not strictly descending at %d", i)
			}
		}
		all = append(all, page.Items...)
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	if len(all) != 23 {
		t.Fatalf("walked %d posts, want 23", len(all))
	}
	for i, p := range all {
		if want := idAt(23 - i); p.ID != want {
			t.Fatalf("position %d: got %s, want %s", i, p.ID.Hex(), want.Hex())
		}
	}
}

func TestPaginate_DefaultLimit(t *testing.T) {
	page, err := Paginate(context.Background(), descending(30, nil), "", 0, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 20 || !page.HasMore {
		t.Errorf("got %d items, hasMore=%v; want 20, true", len(page.Items), page.HasMore)
	}
	if page.NextCursor != idAt(11).Hex() {
		t.Errorf("NextCursor = %s, want %s", page.NextCursor, idAt(11).Hex())
	}
}

func TestPaginate_LastPage(t *testing.T) {
	page, err := Paginate(context.Background(), descending(3, nil), "", 5, 20)
	if err != nil {
		t.Fatal(err)
	}
	if page.HasMore || page.NextCursor != "" {
		t.Errorf("expected final page, got hasMore=%v cursor=%q", page.HasMore, page.NextCursor)
	}
}

func TestPaginate_RejectsBadInput(t *testing.T) {
	calls := 0
	fetch := descending(10, &calls)

	tests := []struct {
		name   string
		cursor string
		limit  int
		field  string
	}{
		{"limit above max", "", 21, "limit"},
		{"negative limit", "", -1, "limit"},
		{"malformed cursor", "not-an-id", 5, "before"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Paginate(context.Background(), fetch, tt.cursor, tt.limit, 20)
			var appErr *apperr.Error
			if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
		})
	}

	if calls != 0 {
		t.Errorf("fetch called %d times for invalid input", calls)
	}
}

func TestScope_Matches(t *testing.T) {
	loc := idAt(1)
	post := models.Post{Author: "alice", Location: loc}

	if !Feed("bob", []string{"alice"}).Matches(post) {
		t.Error("feed should include followed authors")
	}
	if !Feed("alice", nil).Matches(post) {
		t.Error("feed should include the viewer's own posts")
	}
	if Feed("bob", nil).Matches(post) {
		t.Error("feed should exclude authors not followed")
	}
	if !Explore().Matches(post) {
		t.Error("explore is unrestricted")
	}
	if Search(nil).Matches(post) {
		t.Error("search with no locations matches nothing")
	}
	if !Search([]primitive.ObjectID{loc}).Matches(post) {
		t.Error("search should match posts at a compiled location")
	}

	post.Pinned = true
	if Profile("alice").Matches(post) {
		t.Error("profile timeline skips pinned posts")
	}
}
