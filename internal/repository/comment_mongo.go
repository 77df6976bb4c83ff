package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"schoolportal/internal/model"
)

// CommentCollection is the MongoDB collection holding comments.
const CommentCollection = "comments"

type mongoCommentRepository struct {
	coll *mongo.Collection
}

// NewMongoCommentRepository stores comments as documents keyed by their UUID.
func NewMongoCommentRepository(db *mongo.Database) CommentStore {
	return &mongoCommentRepository{coll: db.Collection(CommentCollection)}
}

// EnsureCommentIndexes creates the indexes the listing queries rely on.
func EnsureCommentIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(CommentCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "post_id", Value: 1}, {Key: "parent_comment_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "parent_comment_id", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create comment indexes: %w", err)
	}
	return nil
}

func (r *mongoCommentRepository) Create(ctx context.Context, c *model.Comment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	c.CreatedAt = now
	c.UpdatedAt = now
	if _, err := r.coll.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (r *mongoCommentRepository) findOne(ctx context.Context, filter bson.M, op string) (*model.Comment, error) {
	var comment model.Comment
	err := r.coll.FindOne(ctx, filter).Decode(&comment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &comment, nil
}

func (r *mongoCommentRepository) GetByID(ctx context.Context, commentID string) (*model.Comment, error) {
	return r.findOne(ctx, bson.M{"_id": commentID}, "get comment")
}

func (r *mongoCommentRepository) GetOwned(ctx context.Context, commentID, authorID string) (*model.Comment, error) {
	return r.findOne(ctx, bson.M{"_id": commentID, "author_id": authorID}, "get owned comment")
}

func (r *mongoCommentRepository) UpdateContents(ctx context.Context, commentID, authorID, contents string) (*model.Comment, error) {
	var comment model.Comment
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": commentID, "author_id": authorID},
		bson.M{"$set": bson.M{"contents": contents, "updated_at": time.Now().UTC().Truncate(time.Millisecond)}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&comment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	return &comment, nil
}

// topLevelFilter matches documents stored without a parent. The field is
// omitted on insert, but null is matched too for documents written by hand.
func topLevelFilter(postID string) bson.M {
	return bson.M{"post_id": postID, "parent_comment_id": nil}
}

func (r *mongoCommentRepository) ListTopLevel(ctx context.Context, postID string, offset, limit int) ([]model.Comment, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return r.find(ctx, topLevelFilter(postID), opts, "list top-level comments")
}

func (r *mongoCommentRepository) CountTopLevel(ctx context.Context, postID string) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, topLevelFilter(postID))
	if err != nil {
		return 0, fmt.Errorf("count top-level comments: %w", err)
	}
	return n, nil
}

func (r *mongoCommentRepository) ListReplies(ctx context.Context, parentID string, limit int) ([]model.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, bson.M{"parent_comment_id": parentID}, opts, "list replies")
}

func (r *mongoCommentRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions, op string) ([]model.Comment, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	comments := []model.Comment{}
	if err := cur.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	return comments, nil
}

func (r *mongoCommentRepository) ListChildIDs(ctx context.Context, parentIDs []string) ([]string, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := r.coll.Find(ctx, bson.M{"parent_comment_id": bson.M{"$in": parentIDs}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list child ids: %w", err)
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list child ids: decode: %w", err)
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

func (r *mongoCommentRepository) DeleteByIDs(ctx context.Context, commentIDs []string) (int64, error) {
	if len(commentIDs) == 0 {
		return 0, nil
	}
	res, err := r.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": commentIDs}})
	if err != nil {
		return 0, fmt.Errorf("delete comments: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *mongoCommentRepository) DeleteByParent(ctx context.Context, parentID string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"parent_comment_id": parentID})
	if err != nil {
		return 0, fmt.Errorf("delete replies: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *mongoCommentRepository) Delete(ctx context.Context, commentID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": commentID})
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if res.DeletedCount == 0 {
		return model.ErrCommentNotFound
	}
	return nil
}
