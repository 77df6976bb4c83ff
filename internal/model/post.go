package model

import (
	"time"
)

// Post is a school announcement or class post that comments attach to.
type Post struct {
	ID        string    `db:"id" json:"id"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Author *UserSummary `db:"-" json:"author,omitempty"`
}

// CreatePostRequest is the request body for creating a post.
type CreatePostRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"max=20000"`
}

// Post errors
var (
	ErrPostNotFound  = newError(KindNotFound, "post not found")
	ErrInvalidPostID = newError(KindValidation, "invalid post id")
	ErrTitleRequired = newError(KindValidation, "post title is required")
)
