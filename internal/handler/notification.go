package handler

import (
	"net/http"

	"go.uber.org/zap"

	"schoolportal/internal/httputil"
	"schoolportal/internal/logger"
	"schoolportal/internal/service"
	"schoolportal/internal/transport/http/middleware"
)

type NotificationHandler struct {
	notifService *service.NotificationService
	log          *zap.Logger
}

func NewNotificationHandler(notifService *service.NotificationService, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifService: notifService,
		log:          logger.Component(log, "NotificationHandler"),
	}
}

// List handles GET /notifications
// Returns the newest reply and comment notifications with the unread count.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, ok := positiveQueryInt(r, "limit", 20)
	if !ok {
		httputil.WriteBadRequest(w, "Invalid limit parameter")
		return
	}

	notifications, err := h.notifService.GetNotifications(r.Context(), userID, limit)
	if err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to get notifications")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, notifications)
}

// MarkAllRead handles POST /notifications/read-all
// Marks all notifications as read for the authenticated user.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.notifService.MarkAllAsRead(r.Context(), userID); err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to mark notifications as read")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "All notifications marked as read",
	})
}
