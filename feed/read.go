package feed

import (
	"context"

	"postboard/apperr"
	"postboard/fanout"
	"postboard/identity"
	"postboard/models"
	"postboard/pagination"
	"postboard/search"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Feed pages through the posts of the viewer and everyone they follow.
func (s *Service) Feed(ctx context.Context, viewer *identity.Credential, limit int, before string) (pagination.Page[fanout.Post], error) {
	subject, err := verified(viewer)
	if err != nil {
		return pagination.Page[fanout.Post]{}, err
	}
	n, err := pagination.Limit(limit, s.cfg.FeedLimitMax)
	if err != nil {
		return pagination.Page[fanout.Post]{}, err
	}
	cursor, err := pagination.ParseCursor(before)
	if err != nil {
		return pagination.Page[fanout.Post]{}, err
	}

	following, err := s.store.Following(ctx, subject)
	if err != nil {
		return pagination.Page[fanout.Post]{}, upstream("Failed to load follows", err)
	}

	page, err := pagination.Take(ctx, s.postFetch(pagination.Feed(subject, following)), cursor, n)
	if err != nil {
		return pagination.Page[fanout.Post]{}, upstream("Failed to load feed", err)
	}
	return s.resolvePage(ctx, page, subject)
}

// Explore pages through every post. It is open to anonymous viewers.
func (s *Service) Explore(ctx context.Context, viewer *identity.Credential, before string) (pagination.Page[fanout.Post], error) {
	page, err := pagination.Paginate(ctx, s.postFetch(pagination.Explore()), before, s.cfg.FeedLimitMax, s.cfg.FeedLimitMax)
	if err != nil {
		return pagination.Page[fanout.Post]{}, upstream("Failed to load posts", err)
	}
	return s.resolvePage(ctx, page, viewerID(viewer))
}

type PublicAccount struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Location    string `json:"location"`
	Tagline     string `json:"tagline,omitempty"`
	Avatar      string `json:"avatar"`
}

// Profile is a member's page. IsFollowing and PostCount are only filled on
// the first page.
type Profile struct {
	Account     PublicAccount                `json:"account"`
	IsFollowing *bool                        `json:"isFollowing,omitempty"`
	PostCount   *int64                       `json:"postCount,omitempty"`
	Posts       pagination.Page[fanout.Post] `json:"posts"`
}

// Profile returns a page of member's timeline. The first page starts with
// the pinned post, if any; later pages never contain it.
func (s *Service) Profile(ctx context.Context, viewer *identity.Credential, member, before string) (*Profile, error) {
	subject, err := verified(viewer)
	if err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(before)
	if err != nil {
		return nil, err
	}

	account, err := s.store.FindAccount(ctx, member)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("[Not Found] This account does not exist")
		}
		return nil, upstream("Failed to load account", err)
	}

	profile := &Profile{Account: PublicAccount{
		ID:          account.ID,
		DisplayName: account.DisplayName,
		Location:    account.Location,
		Tagline:     account.Tagline,
		Avatar:      s.avatars.URL(ctx, account.ID),
	}}

	fetch := s.postFetch(pagination.Profile(member))
	n := s.cfg.FeedLimitMax

	if cursor != nil {
		page, err := pagination.Take(ctx, fetch, cursor, n)
		if err != nil {
			return nil, upstream("Failed to load posts", err)
		}
		if profile.Posts, err = s.resolvePage(ctx, page, subject); err != nil {
			return nil, err
		}
		return profile, nil
	}

	following, err := s.store.IsFollowing(ctx, subject, member)
	if err != nil {
		return nil, upstream("Failed to load follow", err)
	}
	count, err := s.store.CountPosts(ctx, member)
	if err != nil {
		return nil, upstream("Failed to count posts", err)
	}
	pinned, err := s.store.PinnedPost(ctx, member)
	if err != nil {
		return nil, upstream("Failed to load pinned post", err)
	}
	profile.IsFollowing = &following
	profile.PostCount = &count

	if pinned != nil {
		n--
	}
	page, err := pagination.Take(ctx, fetch, nil, n)
	if err != nil {
		return nil, upstream("Failed to load posts", err)
	}
	if pinned != nil {
		page.Items = append([]models.Post{*pinned}, page.Items...)
	}

	if profile.Posts, err = s.resolvePage(ctx, page, subject); err != nil {
		return nil, err
	}
	return profile, nil
}

// Search pages through posts at the locations best matching query.
func (s *Service) Search(ctx context.Context, viewer *identity.Credential, query, before string) (pagination.Page[fanout.Post], error) {
	subject, err := verified(viewer)
	if err != nil {
		return pagination.Page[fanout.Post]{}, err
	}
	in := SearchInput{Query: s.in.clean(query)}
	if err := s.in.check(in); err != nil {
		return pagination.Page[fanout.Post]{}, err
	}
	cursor, err := pagination.ParseCursor(before)
	if err != nil {
		return pagination.Page[fanout.Post]{}, err
	}

	q := search.Compile(in.Query)
	if q.Empty() {
		return pagination.Page[fanout.Post]{Items: []fanout.Post{}}, nil
	}

	locations, err := s.store.SearchLocations(ctx, q, s.cfg.FeedLimitMax)
	if err != nil {
		return pagination.Page[fanout.Post]{}, upstream("Failed to search locations", err)
	}
	ids := make([]primitive.ObjectID, 0, len(locations))
	for _, loc := range locations {
		ids = append(ids, loc.ID)
	}

	page, err := pagination.Take(ctx, s.postFetch(pagination.Search(ids)), cursor, s.cfg.FeedLimitMax)
	if err != nil {
		return pagination.Page[fanout.Post]{}, upstream("Failed to load posts", err)
	}
	return s.resolvePage(ctx, page, subject)
}

// Post returns a single post, which must be authored by member.
func (s *Service) Post(ctx context.Context, viewer *identity.Credential, member, postID string) (*fanout.Post, error) {
	subject, err := verified(viewer)
	if err != nil {
		return nil, err
	}
	id, err := parseID("post", postID)
	if err != nil {
		return nil, err
	}

	post, err := s.findPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Author != member {
		return nil, apperr.NotFound("[404] Resource not found")
	}

	resolved, err := s.resolver.Resolve(ctx, []models.Post{*post}, subject)
	if err != nil {
		return nil, upstream("Failed to load post", err)
	}
	return &resolved[0], nil
}

// Comments pages through the comments of a post, newest first.
func (s *Service) Comments(ctx context.Context, viewer *identity.Credential, postID, before string, limit int) (pagination.Page[fanout.Comment], error) {
	if _, err := verified(viewer); err != nil {
		return pagination.Page[fanout.Comment]{}, err
	}
	id, err := parseID("post", postID)
	if err != nil {
		return pagination.Page[fanout.Comment]{}, err
	}
	if limit == 0 {
		limit = s.cfg.CommentsPageDefault
	}
	if _, err := s.findPost(ctx, id); err != nil {
		return pagination.Page[fanout.Comment]{}, err
	}

	fetch := func(ctx context.Context, before *primitive.ObjectID, limit int) ([]models.Comment, error) {
		return s.store.FindComments(ctx, id, before, limit)
	}
	page, err := pagination.Paginate(ctx, fetch, before, limit, s.cfg.CommentsPageMax)
	if err != nil {
		return pagination.Page[fanout.Comment]{}, upstream("Failed to load comments", err)
	}
	return pagination.Page[fanout.Comment]{
		Items:      s.resolver.ResolveComments(ctx, page.Items),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}, nil
}

type Account struct {
	models.Account
	Avatar string `json:"avatar"`
}

// Account returns the viewer's own account. An unverified member may read it.
func (s *Service) Account(ctx context.Context, viewer *identity.Credential) (*Account, error) {
	subject, err := authenticated(viewer)
	if err != nil {
		return nil, err
	}
	account, err := s.store.FindAccount(ctx, subject)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("[Not Found] Set up your account first")
		}
		return nil, upstream("Failed to load account", err)
	}
	return &Account{Account: *account, Avatar: s.avatars.URL(ctx, subject)}, nil
}

func parseID(field, raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperr.Validation(field, "objectid", "[User Input] ID must conform to an ObjectId")
	}
	return id, nil
}

func (s *Service) findPost(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	post, err := s.store.FindPost(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("[404] Resource not found")
		}
		return nil, upstream("Failed to load post", err)
	}
	return post, nil
}
