package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types for the comment stream
const (
	EventCommentCreated = "comment_created"
	EventCommentUpdated = "comment_updated"
	EventCommentDeleted = "comment_deleted"
)

// Stream names
const (
	StreamComments = "stream:comments"
)

// Consumer group name for comment workers
const (
	ConsumerGroupComments = "comment_workers"
)

// CommentEvent represents an event published to the comment stream.
type CommentEvent struct {
	Type      string `json:"type"`      // EventCommentCreated, EventCommentUpdated, EventCommentDeleted
	Timestamp int64  `json:"timestamp"` // Unix timestamp when event occurred

	CommentID string `json:"comment_id"`
	PostID    string `json:"post_id"`
	ActorID   string `json:"actor_id"`

	// Created events carry the notification recipients
	PostAuthorID    string `json:"post_author_id,omitempty"`
	ParentCommentID string `json:"parent_comment_id,omitempty"`
	ParentAuthorID  string `json:"parent_author_id,omitempty"`

	// Deleted events report the size of the removed subtree
	Removed int64 `json:"removed,omitempty"`
}

// NewCommentCreatedEvent creates an event for a new comment or reply.
// parentCommentID and parentAuthorID are empty for top-level comments.
func NewCommentCreatedEvent(commentID, postID, actorID, postAuthorID, parentCommentID, parentAuthorID string) CommentEvent {
	return CommentEvent{
		Type:            EventCommentCreated,
		Timestamp:       time.Now().Unix(),
		CommentID:       commentID,
		PostID:          postID,
		ActorID:         actorID,
		PostAuthorID:    postAuthorID,
		ParentCommentID: parentCommentID,
		ParentAuthorID:  parentAuthorID,
	}
}

// NewCommentUpdatedEvent creates an event for an edited comment.
func NewCommentUpdatedEvent(commentID, postID, actorID string) CommentEvent {
	return CommentEvent{
		Type:      EventCommentUpdated,
		Timestamp: time.Now().Unix(),
		CommentID: commentID,
		PostID:    postID,
		ActorID:   actorID,
	}
}

// NewCommentDeletedEvent creates an event for a deleted comment and its replies.
func NewCommentDeletedEvent(commentID, postID, actorID string, removed int64) CommentEvent {
	return CommentEvent{
		Type:      EventCommentDeleted,
		Timestamp: time.Now().Unix(),
		CommentID: commentID,
		PostID:    postID,
		ActorID:   actorID,
		Removed:   removed,
	}
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so we serialize to JSON in a "data" field.
func (e CommentEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseCommentEvent parses a CommentEvent from Redis stream message values.
func ParseCommentEvent(values map[string]interface{}) (CommentEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return CommentEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event CommentEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return CommentEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.PostID == "" {
		return CommentEvent{}, fmt.Errorf("event without post_id")
	}
	return event, nil
}
