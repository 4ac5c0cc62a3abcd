package store

import (
	"bytes"
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"postboard/apperr"
	"postboard/models"
	"postboard/pagination"
	"postboard/search"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process Store. Every record is copied on the way in and
// out, so callers never share state with it.
type Memory struct {
	mu     sync.RWMutex
	now    func() time.Time
	lastID primitive.ObjectID

	posts      map[primitive.ObjectID]models.Post
	comments   map[primitive.ObjectID]models.Comment
	reactions  map[reactionKey]models.Reaction
	follows    map[followKey]models.Follow
	locations  map[primitive.ObjectID]models.Location
	accounts   map[string]models.Account
	identities map[string]models.Identity // by email
	subs       map[string]models.PushSubscription
}

type reactionKey struct {
	post   primitive.ObjectID
	author string
}

type followKey struct {
	author    string
	following string
}

type MemoryOption func(*Memory)

// WithMemoryClock sets the clock used for new ObjectIDs.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:        time.Now,
		posts:      make(map[primitive.ObjectID]models.Post),
		comments:   make(map[primitive.ObjectID]models.Comment),
		reactions:  make(map[reactionKey]models.Reaction),
		follows:    make(map[followKey]models.Follow),
		locations:  make(map[primitive.ObjectID]models.Location),
		accounts:   make(map[string]models.Account),
		identities: make(map[string]models.Identity),
		subs:       make(map[string]models.PushSubscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// newID returns an ObjectID strictly greater than every id issued before,
// even when several are created within the same second. Callers hold mu.
func (m *Memory) newID() primitive.ObjectID {
	id := primitive.NewObjectIDFromTimestamp(m.now())
	if bytes.Compare(id[:], m.lastID[:]) <= 0 {
		id = m.lastID
		for i := len(id) - 1; i >= 0; i-- {
			id[i]++
			if id[i] != 0 {
				break
			}
		}
	}
	m.lastID = id
	return id
}

func less(a, b primitive.ObjectID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func newestFirst[T any](items []T, key func(T) primitive.ObjectID) {
	sort.Slice(items, func(i, j int) bool { return less(key(items[j]), key(items[i])) })
}

func (m *Memory) FindPosts(ctx context.Context, scope pagination.Scope, before *primitive.ObjectID, limit int) ([]models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Post
	for _, p := range m.posts {
		if before != nil && !less(p.ID, *before) {
			continue
		}
		if scope.Matches(p) {
			out = append(out, p)
		}
	}
	newestFirst(out, models.Post.Key)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) FindPost(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.posts[id]
	if !ok {
		return nil, apperr.NotFound("Post not found")
	}
	return &p, nil
}

func (m *Memory) PinnedPost(ctx context.Context, author string) (*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.posts {
		if p.Author == author && p.Pinned {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *Memory) CountPosts(ctx context.Context, author string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, p := range m.posts {
		if p.Author == author {
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertPost(ctx context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	post.ID = m.newID()
	m.posts[post.ID] = *post
	return nil
}

func (m *Memory) DeletePost(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.posts[id]; !ok {
		return apperr.NotFound("Post not found")
	}
	delete(m.posts, id)
	for cid, c := range m.comments {
		if c.Post == id {
			delete(m.comments, cid)
		}
	}
	for k := range m.reactions {
		if k.post == id {
			delete(m.reactions, k)
		}
	}
	return nil
}

func (m *Memory) PinPost(ctx context.Context, author string, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.posts[id]
	if !ok || target.Author != author {
		return apperr.NotFound("Post not found")
	}
	for pid, p := range m.posts {
		if p.Author == author && p.Pinned && pid != id {
			p.Pinned = false
			m.posts[pid] = p
		}
	}
	target.Pinned = true
	m.posts[id] = target
	return nil
}

func (m *Memory) UnpinPost(ctx context.Context, author string, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[id]
	if !ok || p.Author != author {
		return apperr.NotFound("Post not found")
	}
	p.Pinned = false
	m.posts[id] = p
	return nil
}

func (m *Memory) RecentPostExists(ctx context.Context, author, content string, duplicateSince, anySince time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.posts {
		if p.Author != author {
			continue
		}
		if !p.Created.Before(anySince) {
			return true, nil
		}
		if p.Content == content && !p.Created.Before(duplicateSince) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) FindComments(ctx context.Context, post primitive.ObjectID, before *primitive.ObjectID, limit int) ([]models.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Comment
	for _, c := range m.comments {
		if c.Post != post || (before != nil && !less(c.ID, *before)) {
			continue
		}
		out = append(out, c)
	}
	newestFirst(out, models.Comment.Key)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) InsertComment(ctx context.Context, comment *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	comment.ID = m.newID()
	m.comments[comment.ID] = *comment
	return nil
}

func (m *Memory) RecentCommentExists(ctx context.Context, author string, since time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.comments {
		if c.Author == author && !c.Created.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) UpsertReaction(ctx context.Context, reaction *models.Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := reactionKey{post: reaction.Post, author: reaction.Author}
	if prev, ok := m.reactions[key]; ok {
		reaction.ID = prev.ID
	} else {
		reaction.ID = m.newID()
	}
	m.reactions[key] = *reaction
	return nil
}

func (m *Memory) ReactionCounts(ctx context.Context, post primitive.ObjectID) (int64, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var up, down int64
	for k, r := range m.reactions {
		if k.post != post {
			continue
		}
		switch r.Reaction {
		case models.Upvote:
			up++
		case models.Downvote:
			down++
		}
	}
	return up, down, nil
}

func (m *Memory) FindReaction(ctx context.Context, post primitive.ObjectID, author string) (*models.Reaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reactions[reactionKey{post: post, author: author}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) Following(ctx context.Context, author string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []string{}
	for k := range m.follows {
		if k.author == author {
			out = append(out, k.following)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) CountFollows(ctx context.Context, author string) (int64, error) {
	following, _ := m.Following(ctx, author)
	return int64(len(following)), nil
}

func (m *Memory) IsFollowing(ctx context.Context, author, following string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.follows[followKey{author: author, following: following}]
	return ok, nil
}

func (m *Memory) InsertFollow(ctx context.Context, follow *models.Follow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := followKey{author: follow.Author, following: follow.Following}
	if _, ok := m.follows[key]; ok {
		return apperr.Duplicate("Already following")
	}
	follow.ID = m.newID()
	m.follows[key] = *follow
	return nil
}

func (m *Memory) DeleteFollow(ctx context.Context, author, following string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := followKey{author: author, following: following}
	_, ok := m.follows[key]
	delete(m.follows, key)
	return ok, nil
}

func (m *Memory) UpsertLocation(ctx context.Context, text string) (*models.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, loc := range m.locations {
		if loc.Location == text {
			loc.Reputation++
			m.locations[id] = loc
			return &loc, nil
		}
	}
	loc := models.Location{ID: m.newID(), Location: text, Reputation: 1}
	m.locations[loc.ID] = loc
	return &loc, nil
}

func (m *Memory) FindLocation(ctx context.Context, id primitive.ObjectID) (*models.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	loc, ok := m.locations[id]
	if !ok {
		return nil, apperr.NotFound("Location not found")
	}
	return &loc, nil
}

var wordSplit = regexp.MustCompile(`\W+`)

// SearchLocations approximates the Mongo text index: case-insensitive whole
// word matches, scored by the number of included terms found.
func (m *Memory) SearchLocations(ctx context.Context, q search.Query, limit int) ([]models.Location, error) {
	if q.Empty() {
		return []models.Location{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		loc   models.Location
		score int
	}
	var hits []scored
	for _, loc := range m.locations {
		words := make(map[string]bool)
		for _, w := range wordSplit.Split(strings.ToLower(loc.Location), -1) {
			words[w] = true
		}
		excluded := false
		for _, term := range q.Excluded {
			if words[strings.ToLower(term)] {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}
		score := 0
		for _, term := range q.Included {
			if words[strings.ToLower(term)] {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{loc: loc, score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if hits[i].loc.Reputation != hits[j].loc.Reputation {
			return hits[i].loc.Reputation > hits[j].loc.Reputation
		}
		return less(hits[i].loc.ID, hits[j].loc.ID)
	})

	out := make([]models.Location, 0, min(limit, len(hits)))
	for i := 0; i < len(hits) && i < limit; i++ {
		out = append(out, hits[i].loc)
	}
	return out, nil
}

func (m *Memory) FindAccount(ctx context.Context, id string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, apperr.NotFound("Member not found")
	}
	return &a, nil
}

func (m *Memory) UpsertAccount(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts[account.ID] = *account
	return nil
}

func (m *Memory) FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.identities[email]
	if !ok {
		return nil, apperr.NotFound("Identity not found")
	}
	return &id, nil
}

func (m *Memory) InsertIdentity(ctx context.Context, identity *models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identities[identity.Email]; ok {
		return apperr.Duplicate("Email already in use")
	}
	m.identities[identity.Email] = *identity
	return nil
}

func (m *Memory) TouchIdentity(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for email, identity := range m.identities {
		if identity.ID == id {
			identity.LastSeen = at
			m.identities[email] = identity
			return nil
		}
	}
	return apperr.NotFound("Identity not found")
}

func (m *Memory) SavePushSubscription(ctx context.Context, sub *models.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.subs[sub.Member]; ok {
		sub.ID = prev.ID
	} else {
		sub.ID = m.newID()
	}
	m.subs[sub.Member] = *sub
	return nil
}

func (m *Memory) FindPushSubscription(ctx context.Context, member string) (*models.PushSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[member]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (m *Memory) DeletePushSubscription(ctx context.Context, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.subs, member)
	return nil
}
