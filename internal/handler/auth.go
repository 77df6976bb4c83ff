package handler

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"schoolportal/internal/httputil"
	"schoolportal/internal/logger"
	"schoolportal/internal/model"
	"schoolportal/internal/service"
	"schoolportal/internal/transport/http/middleware"
)

// AuthHandler groups auth-related HTTP endpoints and their dependencies.
type AuthHandler struct {
	userService *service.UserService
	authService *service.AuthService
	log         *zap.Logger
}

// NewAuthHandler wires dependencies for authentication endpoints.
func NewAuthHandler(userService *service.UserService, authService *service.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		authService: authService,
		log:         logger.Component(log, "AuthHandler"),
	}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to register")
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	user, err := h.userService.Register(r.Context(), &req)
	if err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to register")
		return
	}

	h.log.Info("user registered", zap.String("user_id", user.ID), zap.String("role", user.Role))
	httputil.WriteJSON(w, http.StatusCreated, user)
}

// Login handles user login
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to login")
		return
	}

	user, err := h.userService.Login(r.Context(), &req)
	if err != nil {
		if model.KindOf(err) == model.KindUnauthorized {
			httputil.WriteUnauthorized(w, "Invalid username or password")
			return
		}
		httputil.WriteAppError(w, h.log, err, "Failed to login")
		return
	}

	response, err := h.authService.IssueAccessToken(user)
	if err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to generate tokens")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, response)
}

// Me returns the currently authenticated user
// GET /me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	// Get user ID from context (set by auth middleware)
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, h.log, err, "Failed to get user")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}
