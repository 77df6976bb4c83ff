package service

import (
	"context"

	"go.uber.org/zap"

	"schoolportal/internal/logger"
	"schoolportal/internal/model"
	"schoolportal/internal/repository"
)

// NotificationService handles the in-app notification inbox.
type NotificationService struct {
	notifRepo repository.NotificationRepository
	log       *zap.Logger
}

func NewNotificationService(notifRepo repository.NotificationRepository, log *zap.Logger) *NotificationService {
	return &NotificationService{notifRepo: notifRepo, log: logger.Component(log, "NotificationService")}
}

// GetNotifications returns the newest notifications of a user and the unread count.
func (s *NotificationService) GetNotifications(ctx context.Context, userID string, limit int) (*model.NotificationListResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	notifications, err := s.notifRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	unread, err := s.notifRepo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &model.NotificationListResponse{
		Notifications: notifications,
		UnreadCount:   unread,
	}, nil
}

// MarkAllAsRead marks all notifications for a user as read.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.notifRepo.MarkAllAsRead(ctx, userID)
}

// CreateNotification stores a notification. Called by the comment worker.
func (s *NotificationService) CreateNotification(ctx context.Context, userID, actorID, notifType, postID, commentID string) error {
	n := &model.Notification{
		UserID:    userID,
		ActorID:   actorID,
		Type:      notifType,
		PostID:    postID,
		CommentID: commentID,
	}
	if err := s.notifRepo.Create(ctx, n); err != nil {
		return err
	}
	s.log.Debug("notification created",
		zap.String("user_id", userID),
		zap.String("type", notifType),
		zap.String("comment_id", commentID))
	return nil
}
