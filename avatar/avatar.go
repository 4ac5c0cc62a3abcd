// Package avatar stores member avatars in blob storage and hands out their
// signed URLs.
package avatar

import (
	"context"
	"io"
	"log"
	"time"

	"postboard/cache"
)

// Fallback is shown for members without an avatar and when blob storage is
// unreachable.
const Fallback = "https://upload.wikimedia.org/wikipedia/commons/8/89/Portrait_Placeholder.png"

// Blobs is the blob storage holding one avatar image per member subject.
type Blobs interface {
	URL(ctx context.Context, subject string) (string, error)
	Upload(ctx context.Context, subject string, image io.Reader) error
}

// URLs is a read-through cache of signed avatar URLs. Signing is cheap but it
// is done for every author of every post on a page, so URLs are reused for a
// day by default.
type URLs struct {
	blobs   Blobs
	entries *cache.Cache[string, string]
}

func NewURLs(blobs Blobs, capacity int, ttl time.Duration, opts ...cache.Option) *URLs {
	return &URLs{blobs: blobs, entries: cache.New[string, string](capacity, ttl, opts...)}
}

// URL never fails: when the blob store errors, the fallback avatar is
// returned and not cached.
func (u *URLs) URL(ctx context.Context, subject string) string {
	if url, ok := u.entries.Get(subject); ok {
		return url
	}
	url, err := u.blobs.URL(ctx, subject)
	if err != nil || url == "" {
		if err != nil {
			log.Printf("[Avatar] Failed to sign URL for %s: %v", subject, err)
		}
		return Fallback
	}
	u.entries.Set(subject, url)
	return url
}

// Upload replaces the avatar of subject and drops its cached URL.
func (u *URLs) Upload(ctx context.Context, subject string, image io.Reader) (string, error) {
	if err := u.blobs.Upload(ctx, subject, image); err != nil {
		return "", err
	}
	u.entries.Delete(subject)
	return u.URL(ctx, subject), nil
}
