package model

import (
	"time"
)

// Comment is one remark attached to a post, optionally replying to another comment.
type Comment struct {
	ID              string       `db:"id" bson:"_id" json:"id"`
	PostID          string       `db:"post_id" bson:"post_id" json:"post_id"`
	AuthorID        string       `db:"author_id" bson:"author_id" json:"author_id"`
	ParentCommentID *string      `db:"parent_comment_id" bson:"parent_comment_id,omitempty" json:"parent_comment_id"`
	Contents        string       `db:"contents" bson:"contents" json:"contents"`
	CreatedAt       time.Time    `db:"created_at" bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" bson:"updated_at" json:"updated_at"`
	Author          *UserSummary `db:"-" bson:"-" json:"author,omitempty"` // Resolved field
}

// IsTopLevel reports whether the comment hangs directly off the post.
func (c *Comment) IsTopLevel() bool {
	return c.ParentCommentID == nil
}

// CommentNode is a comment with its reply subtree.
type CommentNode struct {
	Comment
	Replies []*CommentNode `json:"replies"`
}

// Pagination describes a page of top-level comments.
type Pagination struct {
	Page          int   `json:"current_page"`
	Limit         int   `json:"limit"`
	TotalTopLevel int64 `json:"total_top_level"`
	TotalPages    int   `json:"total_pages"`
}

// ThreadPage is the response body of the thread listing.
type ThreadPage struct {
	Comments   []*CommentNode `json:"comments"`
	Pagination Pagination     `json:"pagination"`
	Policy     string         `json:"depth_policy"`
}

// CreateCommentRequest is the request body for creating a comment.
type CreateCommentRequest struct {
	Contents        string  `json:"contents" validate:"required"` // length is checked after trimming
	ParentCommentID *string `json:"parent_comment_id,omitempty"` // checked by the service
}

// UpdateCommentRequest is the request body for updating a comment.
type UpdateCommentRequest struct {
	Contents string `json:"contents" validate:"required"`
}

// CommentResponse wraps a single comment.
type CommentResponse struct {
	Comment *Comment `json:"comment"`
}

// Comment constraints
const (
	MaxCommentLength = 2200

	DefaultThreadPage  = 1
	DefaultThreadLimit = 10
)

// Comment errors
var (
	ErrCommentNotFound       = newError(KindNotFound, "comment not found")
	ErrParentCommentNotFound = newError(KindNotFound, "parent comment not found")
	ErrContentRequired       = newError(KindValidation, "comment contents are required")
	ErrContentTooLong        = newError(KindValidation, "comment contents too long")
	ErrInvalidCommentID      = newError(KindValidation, "invalid comment id")
)
