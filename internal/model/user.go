package model

import (
	"time"
)

// Roles of portal users
const (
	RoleParent  = "parent"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// ValidRole reports whether role is one of the portal roles.
func ValidRole(role string) bool {
	switch role {
	case RoleParent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// User represents a portal account
type User struct {
	ID             string    `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	PasswordHashed string    `db:"password_hashed" json:"-"` // "-" hides from JSON output
	DisplayName    *string   `db:"display_name" json:"display_name"`
	AvatarURL      *string   `db:"avatar_url" json:"avatar_url"`
	Role           string    `db:"role" json:"role"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Summary returns the author fields exposed next to comments.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Role:        u.Role,
	}
}

// UserSummary holds the display fields of an author.
type UserSummary struct {
	ID          string  `db:"id" json:"id"`
	Username    string  `db:"username" json:"username"`
	DisplayName *string `db:"display_name" json:"display_name"`
	AvatarURL   *string `db:"avatar_url" json:"avatar_url"`
	Role        string  `db:"role" json:"role"`
}

// RegisterRequest represents the data needed to register a new user
type RegisterRequest struct {
	Username    string  `json:"username" validate:"required,min=3,max=50"`
	Password    string  `json:"password" validate:"required,min=8,max=72"`
	DisplayName string  `json:"display_name" validate:"max=100"`
	Role        string  `json:"role" validate:"required,oneof=parent teacher admin"`
	AvatarURL   *string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

// LoginRequest represents the data needed to log in
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned after successful login
type LoginResponse struct {
	User        *User  `json:"user"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token error codes
const (
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
)

var (
	// ErrUserNotFound is returned when a user cannot be found
	ErrUserNotFound = newError(KindNotFound, "user not found")

	// ErrUsernameExists is returned when attempting to create a user with a taken username
	ErrUsernameExists = newError(KindConflict, "username already exists")

	// ErrInvalidCredentials is returned when login credentials are incorrect
	ErrInvalidCredentials = newError(KindUnauthorized, "invalid credentials")

	// ErrInvalidRole is returned for roles outside parent/teacher/admin
	ErrInvalidRole = newError(KindValidation, "invalid role")
)
