package feed

import (
	"context"
	"io"
	"log"
	"strings"

	"postboard/apperr"
	"postboard/identity"
	"postboard/models"
	"postboard/notify"

	"github.com/SherClockHolmes/webpush-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CreatePost publishes a post and returns its id. The location is created
// on first use; every post at a known location raises its reputation.
func (s *Service) CreatePost(ctx context.Context, viewer *identity.Credential, in CreatePostInput) (primitive.ObjectID, error) {
	subject, err := s.beginWrite(ctx, viewer)
	if err != nil {
		return primitive.NilObjectID, err
	}

	in.Content = s.in.clean(in.Content)
	in.Location = s.in.clean(in.Location)
	if err := s.in.check(in); err != nil {
		return primitive.NilObjectID, err
	}

	if err := s.limiter.CheckPostFlood(ctx, s.store, subject, in.Content); err != nil {
		return primitive.NilObjectID, upstream("Failed to check post history", err)
	}

	loc, err := s.store.UpsertLocation(ctx, in.Location)
	if err != nil {
		return primitive.NilObjectID, upstream("Failed to save location", err)
	}

	post := &models.Post{
		Author:   subject,
		Location: loc.ID,
		Content:  in.Content,
		Created:  s.now(),
	}
	if err := s.store.InsertPost(ctx, post); err != nil {
		return primitive.NilObjectID, upstream("Failed to create post", err)
	}

	log.Printf("[Feed] Post %s created by %s", post.ID.Hex(), subject)
	return post.ID, nil
}

// React records the viewer's reaction to a post, replacing an earlier one.
func (s *Service) React(ctx context.Context, viewer *identity.Credential, postID string, in ReactInput) (*models.Reaction, error) {
	subject, err := s.beginWrite(ctx, viewer)
	if err != nil {
		return nil, err
	}
	in.Reaction = strings.TrimSpace(in.Reaction)
	if err := s.in.check(in); err != nil {
		return nil, err
	}
	id, err := parseID("post", postID)
	if err != nil {
		return nil, err
	}
	if _, err := s.findPost(ctx, id); err != nil {
		return nil, err
	}

	reaction := &models.Reaction{
		Post:     id,
		Author:   subject,
		Reaction: models.ReactionKind(in.Reaction),
		Created:  s.now(),
	}
	if err := s.store.UpsertReaction(ctx, reaction); err != nil {
		return nil, upstream("Failed to save reaction", err)
	}
	return reaction, nil
}

// ownPost loads a post and checks that subject wrote it.
func (s *Service) ownPost(ctx context.Context, subject, postID string) (*models.Post, error) {
	id, err := parseID("post", postID)
	if err != nil {
		return nil, err
	}
	post, err := s.findPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Author != subject {
		return nil, apperr.Permission("[Auth] You do not have permission to modify this resource")
	}
	return post, nil
}

func (s *Service) DeletePost(ctx context.Context, viewer *identity.Credential, postID string) (primitive.ObjectID, error) {
	subject, err := s.beginWrite(ctx, viewer)
	if err != nil {
		return primitive.NilObjectID, err
	}
	post, err := s.ownPost(ctx, subject, postID)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if err := s.store.DeletePost(ctx, post.ID); err != nil {
		return primitive.NilObjectID, upstream("Failed to delete post", err)
	}
	return post.ID, nil
}

// Pin makes postID the viewer's only pinned post.
func (s *Service) Pin(ctx context.Context, viewer *identity.Credential, postID string) (primitive.ObjectID, error) {
	subject, err := s.beginWrite(ctx, viewer)
	if err != nil {
		return primitive.NilObjectID, err
	}
	post, err := s.ownPost(ctx, subject, postID)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if err := s.store.PinPost(ctx, subject, post.ID); err != nil {
		return primitive.NilObjectID, upstream("Failed to pin post", err)
	}
	return post.ID, nil
}

func (s *Service) Unpin(ctx context.Context, viewer *identity.Credential, postID string) (primitive.ObjectID, error) {
	subject, err := s.beginWrite(ctx, viewer)
	if err != nil {
		return primitive.NilObjectID, err
	}
	post, err := s.ownPost(ctx, subject, postID)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if err := s.store.UnpinPost(ctx, subject, post.ID); err != nil {
		return primitive.NilObjectID, upstream("Failed to unpin post", err)
	}
	return post.ID, nil
}

// Comment adds a comment to a post and notifies its author.
func (s *Service) Comment(ctx context.Context, viewer *identity.Credential, postID string, in CommentInput) (primitive.ObjectID, error) {
	subject, err := s.beginWrite(ctx, viewer)
	if err != nil {
		return primitive.NilObjectID, err
	}
	in.Content = s.in.clean(in.Content)
	if err := s.in.check(in); err != nil {
		return primitive.NilObjectID, err
	}
	id, err := parseID("post", postID)
	if err != nil {
		return primitive.NilObjectID, err
	}
	post, err := s.findPost(ctx, id)
	if err != nil {
		return primitive.NilObjectID, err
	}

	if err := s.limiter.CheckCommentFlood(ctx, s.store, subject); err != nil {
		return primitive.NilObjectID, upstream("Failed to check comment history", err)
	}

	comment := &models.Comment{
		Post:    id,
		Author:  subject,
		Content: in.Content,
		Created: s.now(),
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return primitive.NilObjectID, upstream("Failed to create comment", err)
	}

	if post.Author != subject {
		name := s.resolver.Author(ctx, subject).DisplayName
		s.notifier.Notify(post.Author, notify.Notification{
			Title: name + " commented on your post",
			Body:  notify.Truncate(comment.Content, 100),
			URL:   "/" + post.Author + "/" + post.ID.Hex(),
		})
	}
	return comment.ID, nil
}

// Follow subscribes the viewer to member's posts.
func (s *Service) Follow(ctx context.Context, viewer *identity.Credential, member string) (primitive.ObjectID, error) {
	subject, err := s.beginWrite(ctx, viewer)
	if err != nil {
		return primitive.NilObjectID, err
	}
	member = strings.TrimSpace(member)
	if member == "" {
		return primitive.NilObjectID, apperr.Validation("member", "required", "[User Input] member is required")
	}
	if member == subject {
		return primitive.NilObjectID, apperr.Validation("member", "self", "[User Input] You cannot follow yourself")
	}
	if _, err := s.store.FindAccount(ctx, member); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return primitive.NilObjectID, apperr.NotFound("[Not Found] User not found")
		}
		return primitive.NilObjectID, upstream("Failed to load account", err)
	}

	already, err := s.store.IsFollowing(ctx, subject, member)
	if err != nil {
		return primitive.NilObjectID, upstream("Failed to load follow", err)
	}
	if already {
		return primitive.NilObjectID, apperr.Duplicate("[Duplicate] You are already following this member")
	}
	if err := s.limiter.CheckFollowCap(ctx, s.store, subject); err != nil {
		return primitive.NilObjectID, upstream("Failed to count follows", err)
	}

	follow := &models.Follow{Author: subject, Following: member, Created: s.now()}
	if err := s.store.InsertFollow(ctx, follow); err != nil {
		if apperr.Is(err, apperr.KindDuplicate) {
			return primitive.NilObjectID, apperr.Duplicate("[Duplicate] You are already following this member")
		}
		return primitive.NilObjectID, upstream("Failed to follow", err)
	}

	name := s.resolver.Author(ctx, subject).DisplayName
	s.notifier.Notify(member, notify.Notification{
		Title: "New follower",
		Body:  name + " started following you",
		URL:   "/" + subject,
	})
	return follow.ID, nil
}

func (s *Service) Unfollow(ctx context.Context, viewer *identity.Credential, member string) error {
	subject, err := s.beginWrite(ctx, viewer)
	if err != nil {
		return err
	}
	removed, err := s.store.DeleteFollow(ctx, subject, strings.TrimSpace(member))
	if err != nil {
		return upstream("Failed to unfollow", err)
	}
	if !removed {
		return apperr.NotFound("[Not Found] You are not following this member")
	}
	return nil
}

// UpdateAccount creates or replaces the viewer's account.
func (s *Service) UpdateAccount(ctx context.Context, viewer *identity.Credential, in AccountInput) (*Account, error) {
	subject, err := s.beginWrite(ctx, viewer)
	if err != nil {
		return nil, err
	}
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.Location = s.in.clean(in.Location)
	in.Tagline = s.in.clean(in.Tagline)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.in.check(in); err != nil {
		return nil, err
	}

	account := &models.Account{
		ID:          subject,
		DisplayName: in.DisplayName,
		DateOfBirth: in.DateOfBirth,
		Location:    in.Location,
		Tagline:     in.Tagline,
		Email:       in.Email,
	}
	if err := s.store.UpsertAccount(ctx, account); err != nil {
		return nil, upstream("Failed to update account", err)
	}
	s.resolver.ForgetAuthor(subject)

	return &Account{Account: *account, Avatar: s.avatars.URL(ctx, subject)}, nil
}

// UpdateAvatar replaces the viewer's avatar, at most once per avatar period.
func (s *Service) UpdateAvatar(ctx context.Context, viewer *identity.Credential, image io.Reader) (string, error) {
	subject, err := s.beginWrite(ctx, viewer)
	if err != nil {
		return "", err
	}
	if image == nil {
		return "", apperr.Validation("avatar", "required", "[User Input] avatar is required")
	}
	if err := s.limiter.AvatarUpdate(ctx, subject); err != nil {
		return "", upstream("Failed to check avatar period", err)
	}

	url, err := s.avatars.Upload(ctx, subject, image)
	if err != nil {
		return "", upstream("Failed to upload avatar", err)
	}
	return url, nil
}

// SubscribePush stores the viewer's browser push subscription.
func (s *Service) SubscribePush(ctx context.Context, viewer *identity.Credential, sub webpush.Subscription) error {
	subject, err := authenticated(viewer)
	if err != nil {
		return err
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return apperr.Validation("subscription", "required", "[User Input] endpoint and keys are required")
	}
	if err := s.store.SavePushSubscription(ctx, &models.PushSubscription{Member: subject, Sub: sub}); err != nil {
		return upstream("Failed to save subscription", err)
	}
	log.Printf("[Push] Subscription saved for %s", subject)
	return nil
}
