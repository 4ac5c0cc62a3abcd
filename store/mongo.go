package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postboard/apperr"
	"postboard/models"
	"postboard/pagination"
	"postboard/search"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Mongo struct {
	posts         *mongo.Collection
	comments      *mongo.Collection
	reactions     *mongo.Collection
	follows       *mongo.Collection
	locations     *mongo.Collection
	accounts      *mongo.Collection
	identities    *mongo.Collection
	subscriptions *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		posts:         db.Collection("posts"),
		comments:      db.Collection("comments"),
		reactions:     db.Collection("reactions"),
		follows:       db.Collection("follows"),
		locations:     db.Collection("locations"),
		accounts:      db.Collection("accounts"),
		identities:    db.Collection("identities"),
		subscriptions: db.Collection("push_subscriptions"),
	}
}

// EnsureIndexes creates the indexes queries rely on, including the unique
// keys that back Duplicate errors and the location text index.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{m.posts, []mongo.IndexModel{
			{Keys: bson.D{{Key: "author", Value: 1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "location", Value: 1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "author", Value: 1}, {Key: "created", Value: -1}}},
		}},
		{m.comments, []mongo.IndexModel{
			{Keys: bson.D{{Key: "post", Value: 1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "author", Value: 1}, {Key: "created", Value: -1}}},
		}},
		{m.reactions, []mongo.IndexModel{
			{Keys: bson.D{{Key: "post", Value: 1}, {Key: "author", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{m.follows, []mongo.IndexModel{
			{Keys: bson.D{{Key: "author", Value: 1}, {Key: "following", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{m.locations, []mongo.IndexModel{
			{Keys: bson.D{{Key: "location", Value: "text"}}},
			{Keys: bson.D{{Key: "location", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{m.identities, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{m.subscriptions, []mongo.IndexModel{
			{Keys: bson.D{{Key: "member", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
	}

	for _, ix := range indexes {
		if _, err := ix.coll.Indexes().CreateMany(ctx, ix.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", ix.coll.Name(), err)
		}
	}
	return nil
}

func notFound(err error, message string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound(message)
	}
	return err
}

func duplicate(err error, message string) error {
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Duplicate(message)
	}
	return err
}

func pageFilter(filter bson.M, before *primitive.ObjectID) bson.M {
	if before != nil {
		filter["_id"] = bson.M{"$lt": *before}
	}
	return filter
}

func newestPage(limit int) *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(int64(limit))
}

func (m *Mongo) FindPosts(ctx context.Context, scope pagination.Scope, before *primitive.ObjectID, limit int) ([]models.Post, error) {
	filter := bson.M{}
	if scope.Authors != nil {
		filter["author"] = bson.M{"$in": scope.Authors}
	}
	if scope.Locations != nil {
		filter["location"] = bson.M{"$in": scope.Locations}
	}
	if scope.ExcludePinned {
		filter["pinned"] = bson.M{"$ne": true}
	}

	cursor, err := m.posts.Find(ctx, pageFilter(filter, before), newestPage(limit))
	if err != nil {
		return nil, err
	}
	posts := []models.Post{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (m *Mongo) FindPost(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	var post models.Post
	if err := m.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&post); err != nil {
		return nil, notFound(err, "Post not found")
	}
	return &post, nil
}

func (m *Mongo) PinnedPost(ctx context.Context, author string) (*models.Post, error) {
	var post models.Post
	err := m.posts.FindOne(ctx, bson.M{"author": author, "pinned": true}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (m *Mongo) CountPosts(ctx context.Context, author string) (int64, error) {
	return m.posts.CountDocuments(ctx, bson.M{"author": author})
}

func (m *Mongo) InsertPost(ctx context.Context, post *models.Post) error {
	post.ID = primitive.NewObjectID()
	_, err := m.posts.InsertOne(ctx, post)
	return err
}

func (m *Mongo) DeletePost(ctx context.Context, id primitive.ObjectID) error {
	res, err := m.posts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("Post not found")
	}
	if _, err := m.comments.DeleteMany(ctx, bson.M{"post": id}); err != nil {
		return fmt.Errorf("delete comments of %s: %w", id.Hex(), err)
	}
	if _, err := m.reactions.DeleteMany(ctx, bson.M{"post": id}); err != nil {
		return fmt.Errorf("delete reactions of %s: %w", id.Hex(), err)
	}
	return nil
}

// PinPost clears the author's other pins before setting the new one, so an
// interrupted call leaves no pinned post rather than two.
func (m *Mongo) PinPost(ctx context.Context, author string, id primitive.ObjectID) error {
	_, err := m.posts.UpdateMany(ctx,
		bson.M{"author": author, "pinned": true, "_id": bson.M{"$ne": id}},
		bson.M{"$set": bson.M{"pinned": false}},
	)
	if err != nil {
		return err
	}

	res, err := m.posts.UpdateOne(ctx, bson.M{"_id": id, "author": author}, bson.M{"$set": bson.M{"pinned": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Post not found")
	}
	return nil
}

func (m *Mongo) UnpinPost(ctx context.Context, author string, id primitive.ObjectID) error {
	res, err := m.posts.UpdateOne(ctx, bson.M{"_id": id, "author": author}, bson.M{"$set": bson.M{"pinned": false}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Post not found")
	}
	return nil
}

func (m *Mongo) RecentPostExists(ctx context.Context, author, content string, duplicateSince, anySince time.Time) (bool, error) {
	filter := bson.M{
		"author": author,
		"$or": bson.A{
			bson.M{"content": content, "created": bson.M{"$gte": duplicateSince}},
			bson.M{"created": bson.M{"$gte": anySince}},
		},
	}
	n, err := m.posts.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	return n > 0, err
}

func (m *Mongo) FindComments(ctx context.Context, post primitive.ObjectID, before *primitive.ObjectID, limit int) ([]models.Comment, error) {
	cursor, err := m.comments.Find(ctx, pageFilter(bson.M{"post": post}, before), newestPage(limit))
	if err != nil {
		return nil, err
	}
	comments := []models.Comment{}
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (m *Mongo) InsertComment(ctx context.Context, comment *models.Comment) error {
	comment.ID = primitive.NewObjectID()
	_, err := m.comments.InsertOne(ctx, comment)
	return err
}

func (m *Mongo) RecentCommentExists(ctx context.Context, author string, since time.Time) (bool, error) {
	n, err := m.comments.CountDocuments(ctx,
		bson.M{"author": author, "created": bson.M{"$gte": since}},
		options.Count().SetLimit(1),
	)
	return n > 0, err
}

func (m *Mongo) UpsertReaction(ctx context.Context, reaction *models.Reaction) error {
	filter := bson.M{"post": reaction.Post, "author": reaction.Author}
	update := bson.M{
		"$set":         bson.M{"reaction": reaction.Reaction, "created": reaction.Created},
		"$setOnInsert": bson.M{"_id": primitive.NewObjectID()},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored models.Reaction
	if err := m.reactions.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		return err
	}
	*reaction = stored
	return nil
}

func (m *Mongo) ReactionCounts(ctx context.Context, post primitive.ObjectID) (int64, int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"post": post}}},
		{{Key: "$group", Value: bson.M{"_id": "$reaction", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := m.reactions.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, err
	}

	var rows []struct {
		Reaction models.ReactionKind `bson:"_id"`
		Count    int64               `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, 0, err
	}

	var up, down int64
	for _, row := range rows {
		switch row.Reaction {
		case models.Upvote:
			up = row.Count
		case models.Downvote:
			down = row.Count
		}
	}
	return up, down, nil
}

func (m *Mongo) FindReaction(ctx context.Context, post primitive.ObjectID, author string) (*models.Reaction, error) {
	var r models.Reaction
	err := m.reactions.FindOne(ctx, bson.M{"post": post, "author": author}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (m *Mongo) Following(ctx context.Context, author string) ([]string, error) {
	cursor, err := m.follows.Find(ctx, bson.M{"author": author}, options.Find().SetProjection(bson.M{"following": 1}))
	if err != nil {
		return nil, err
	}
	var follows []models.Follow
	if err := cursor.All(ctx, &follows); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(follows))
	for _, f := range follows {
		out = append(out, f.Following)
	}
	return out, nil
}

func (m *Mongo) CountFollows(ctx context.Context, author string) (int64, error) {
	return m.follows.CountDocuments(ctx, bson.M{"author": author})
}

func (m *Mongo) IsFollowing(ctx context.Context, author, following string) (bool, error) {
	n, err := m.follows.CountDocuments(ctx, bson.M{"author": author, "following": following}, options.Count().SetLimit(1))
	return n > 0, err
}

func (m *Mongo) InsertFollow(ctx context.Context, follow *models.Follow) error {
	follow.ID = primitive.NewObjectID()
	_, err := m.follows.InsertOne(ctx, follow)
	return duplicate(err, "Already following")
}

func (m *Mongo) DeleteFollow(ctx context.Context, author, following string) (bool, error) {
	res, err := m.follows.DeleteOne(ctx, bson.M{"author": author, "following": following})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (m *Mongo) UpsertLocation(ctx context.Context, text string) (*models.Location, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var loc models.Location
	upsert := func() error {
		return m.locations.FindOneAndUpdate(ctx,
			bson.M{"location": text},
			bson.M{"$inc": bson.M{"reputation": 1}},
			opts,
		).Decode(&loc)
	}

	err := upsert()
	if mongo.IsDuplicateKeyError(err) {
		// two first posts at the same location raced on the unique index
		err = upsert()
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (m *Mongo) FindLocation(ctx context.Context, id primitive.ObjectID) (*models.Location, error) {
	var loc models.Location
	if err := m.locations.FindOne(ctx, bson.M{"_id": id}).Decode(&loc); err != nil {
		return nil, notFound(err, "Location not found")
	}
	return &loc, nil
}

func (m *Mongo) SearchLocations(ctx context.Context, q search.Query, limit int) ([]models.Location, error) {
	if q.Empty() {
		return []models.Location{}, nil
	}
	opts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.D{{Key: "score", Value: bson.M{"$meta": "textScore"}}, {Key: "reputation", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.locations.Find(ctx, bson.M{"$text": bson.M{"$search": q.Text()}}, opts)
	if err != nil {
		return nil, err
	}
	locations := []models.Location{}
	if err := cursor.All(ctx, &locations); err != nil {
		return nil, err
	}
	return locations, nil
}

func (m *Mongo) FindAccount(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	if err := m.accounts.FindOne(ctx, bson.M{"_id": id}).Decode(&account); err != nil {
		return nil, notFound(err, "Member not found")
	}
	return &account, nil
}

func (m *Mongo) UpsertAccount(ctx context.Context, account *models.Account) error {
	_, err := m.accounts.ReplaceOne(ctx, bson.M{"_id": account.ID}, account, options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var identity models.Identity
	if err := m.identities.FindOne(ctx, bson.M{"email": email}).Decode(&identity); err != nil {
		return nil, notFound(err, "Identity not found")
	}
	return &identity, nil
}

func (m *Mongo) InsertIdentity(ctx context.Context, identity *models.Identity) error {
	_, err := m.identities.InsertOne(ctx, identity)
	return duplicate(err, "Email already in use")
}

func (m *Mongo) TouchIdentity(ctx context.Context, id string, at time.Time) error {
	res, err := m.identities.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"lastSeen": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Identity not found")
	}
	return nil
}

func (m *Mongo) SavePushSubscription(ctx context.Context, sub *models.PushSubscription) error {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	update := bson.M{
		"$set":         bson.M{"sub": sub.Sub},
		"$setOnInsert": bson.M{"_id": primitive.NewObjectID()},
	}
	var stored models.PushSubscription
	if err := m.subscriptions.FindOneAndUpdate(ctx, bson.M{"member": sub.Member}, update, opts).Decode(&stored); err != nil {
		return err
	}
	*sub = stored
	return nil
}

func (m *Mongo) FindPushSubscription(ctx context.Context, member string) (*models.PushSubscription, error) {
	var sub models.PushSubscription
	err := m.subscriptions.FindOne(ctx, bson.M{"member": member}).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (m *Mongo) DeletePushSubscription(ctx context.Context, member string) error {
	_, err := m.subscriptions.DeleteOne(ctx, bson.M{"member": member})
	return err
}
