package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"schoolportal/internal/httputil"
	"schoolportal/internal/logger"
	"schoolportal/internal/model"
	"schoolportal/internal/service"
	"schoolportal/internal/transport/http/middleware"
)

type CommentHandler struct {
	commentService *service.CommentService
	log            *zap.Logger
}

func NewCommentHandler(commentService *service.CommentService, log *zap.Logger) *CommentHandler {
	return &CommentHandler{
		commentService: commentService,
		log:            logger.Component(log, "CommentHandler"),
	}
}

// Create handles POST /posts/{postId}/comments
// Creates a comment, or a reply when parent_comment_id is set.
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	postID := chi.URLParam(r, "postId")

	var req model.CreateCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to create comment")
		return
	}

	comment, err := h.commentService.Create(r.Context(), postID, userID, req)
	if err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to create comment")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, model.CommentResponse{Comment: comment})
}

// List handles GET /posts/{postId}/comments
// Returns one page of the thread. The reply depth follows the viewer's role.
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postId")

	page, ok := positiveQueryInt(r, "page", model.DefaultThreadPage)
	if !ok {
		httputil.WriteBadRequest(w, "Invalid page parameter")
		return
	}
	limit, ok := positiveQueryInt(r, "limit", model.DefaultThreadLimit)
	if !ok {
		httputil.WriteBadRequest(w, "Invalid limit parameter")
		return
	}

	role := middleware.GetRoleFromContext(r.Context())
	result, err := h.commentService.GetThread(r.Context(), postID, page, limit, role)
	if err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to get comments")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// Update handles PUT /comments/{commentId}
// Only the author may edit; anyone else gets 404.
func (h *CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	commentID := chi.URLParam(r, "commentId")

	var req model.UpdateCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to update comment")
		return
	}

	comment, err := h.commentService.Update(r.Context(), commentID, userID, req)
	if err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to update comment")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, model.CommentResponse{Comment: comment})
}

// Delete handles DELETE /comments/{commentId}
// Removes the comment together with its replies.
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	commentID := chi.URLParam(r, "commentId")

	if err := h.commentService.Delete(r.Context(), commentID, userID); err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to delete comment")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, struct{}{})
}

// positiveQueryInt parses an optional positive integer query parameter.
func positiveQueryInt(r *http.Request, key string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
