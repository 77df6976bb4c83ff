package repository

import (
	"context"

	"schoolportal/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	// GetSummaries resolves author display fields in one round trip.
	// Unknown IDs are absent from the result.
	GetSummaries(ctx context.Context, ids []string) (map[string]model.UserSummary, error)
}

type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, postID string) (*model.Post, error)
	Exists(ctx context.Context, postID string) (bool, error)
}

// CommentStore is the persistence contract of the comment subsystem.
// Listing orders are part of the contract: top level newest first, replies oldest first,
// both tie-broken by id so repeated reads are stable.
type CommentStore interface {
	Create(ctx context.Context, comment *model.Comment) error
	GetByID(ctx context.Context, commentID string) (*model.Comment, error)
	// GetOwned returns ErrCommentNotFound when the comment is missing or owned by someone else.
	GetOwned(ctx context.Context, commentID, authorID string) (*model.Comment, error)
	// UpdateContents applies the ownership check in the same write.
	UpdateContents(ctx context.Context, commentID, authorID, contents string) (*model.Comment, error)
	ListTopLevel(ctx context.Context, postID string, offset, limit int) ([]model.Comment, error)
	CountTopLevel(ctx context.Context, postID string) (int64, error)
	// ListReplies returns direct replies; limit <= 0 means no cap.
	ListReplies(ctx context.Context, parentID string, limit int) ([]model.Comment, error)
	ListChildIDs(ctx context.Context, parentIDs []string) ([]string, error)
	DeleteByIDs(ctx context.Context, commentIDs []string) (int64, error)
	DeleteByParent(ctx context.Context, parentID string) (int64, error)
	Delete(ctx context.Context, commentID string) error
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkAllAsRead(ctx context.Context, userID string) error
}
