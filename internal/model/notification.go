package model

import (
	"time"
)

// Notification types
const (
	NotificationTypeComment = "comment" // someone commented on your post
	NotificationTypeReply   = "reply"   // someone replied to your comment
)

// Notification represents a single notification record.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"-"` // Recipient
	ActorID   string    `db:"actor_id" json:"actor_id"`
	Type      string    `db:"type" json:"type"`
	PostID    string    `db:"post_id" json:"post_id"`
	CommentID string    `db:"comment_id" json:"comment_id"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NotificationListResponse is the notification list response.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
}
