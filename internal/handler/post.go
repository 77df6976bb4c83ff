package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"schoolportal/internal/httputil"
	"schoolportal/internal/logger"
	"schoolportal/internal/model"
	"schoolportal/internal/service"
	"schoolportal/internal/transport/http/middleware"
)

type PostHandler struct {
	postService *service.PostService
	log         *zap.Logger
}

func NewPostHandler(postService *service.PostService, log *zap.Logger) *PostHandler {
	return &PostHandler{
		postService: postService,
		log:         logger.Component(log, "PostHandler"),
	}
}

// Create handles POST /posts
// Creates a new post for the authenticated user.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req model.CreatePostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to create post")
		return
	}

	post, err := h.postService.Create(r.Context(), userID, req)
	if err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to create post")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, post)
}

// GetByID handles GET /posts/{postId}
func (h *PostHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	post, err := h.postService.GetByID(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to get post")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, post)
}
