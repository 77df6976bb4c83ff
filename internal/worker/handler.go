package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"schoolportal/internal/logger"
	"schoolportal/internal/model"
	"schoolportal/internal/queue"
)

// CacheInvalidator drops cached thread pages of a post.
type CacheInvalidator interface {
	InvalidatePost(ctx context.Context, postID string) error
}

// NotificationCreator defines the interface for creating notifications.
// This allows the worker to create notifications without depending on the service directly.
type NotificationCreator interface {
	CreateNotification(ctx context.Context, userID, actorID, notifType, postID, commentID string) error
}

// Handler processes comment events from the queue.
type Handler struct {
	cache        CacheInvalidator    // Can be nil when caching is disabled
	notifCreator NotificationCreator // Can be nil if notifications not wired
	log          *zap.Logger
}

// NewHandler creates a new event handler.
func NewHandler(cache CacheInvalidator, notifCreator NotificationCreator, log *zap.Logger) *Handler {
	return &Handler{
		cache:        cache,
		notifCreator: notifCreator,
		log:          logger.Component(log, "Worker"),
	}
}

// HandleEvent routes an event to the appropriate handler based on type.
// Every event drops the post's cached thread pages first; the service already
// did so synchronously, this catches pages written by reads that raced the write.
func (h *Handler) HandleEvent(ctx context.Context, event queue.CommentEvent) error {
	startTime := time.Now()

	if h.cache != nil {
		if err := h.cache.InvalidatePost(ctx, event.PostID); err != nil {
			h.log.Warn("cache invalidation failed", zap.String("post_id", event.PostID), zap.Error(err))
		}
	}

	var err error
	switch event.Type {
	case queue.EventCommentCreated:
		err = h.handleCommentCreated(ctx, event)
	case queue.EventCommentUpdated, queue.EventCommentDeleted:
		// Cache invalidation above is all these need.
	default:
		h.log.Warn("unknown event type", zap.String("type", event.Type))
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err != nil {
		h.log.Error("HandleEvent FAILED",
			zap.String("type", event.Type),
			zap.Duration("duration", time.Since(startTime)),
			zap.Error(err))
		return err
	}

	h.log.Debug("HandleEvent OK",
		zap.String("type", event.Type),
		zap.String("comment_id", event.CommentID),
		zap.Duration("duration", time.Since(startTime)))
	return nil
}

// handleCommentCreated notifies the parent comment's author of a reply and the
// post author of new discussion. Nobody is notified about their own comment,
// and nobody gets two notifications for one comment.
func (h *Handler) handleCommentCreated(ctx context.Context, event queue.CommentEvent) error {
	if h.notifCreator == nil {
		return nil
	}

	notified := map[string]bool{event.ActorID: true}

	if event.ParentAuthorID != "" && !notified[event.ParentAuthorID] {
		err := h.notifCreator.CreateNotification(ctx, event.ParentAuthorID, event.ActorID,
			model.NotificationTypeReply, event.PostID, event.CommentID)
		if err != nil {
			return fmt.Errorf("create reply notification: %w", err)
		}
		notified[event.ParentAuthorID] = true
	}

	if event.PostAuthorID != "" && !notified[event.PostAuthorID] {
		err := h.notifCreator.CreateNotification(ctx, event.PostAuthorID, event.ActorID,
			model.NotificationTypeComment, event.PostID, event.CommentID)
		if err != nil {
			return fmt.Errorf("create comment notification: %w", err)
		}
	}

	return nil
}
