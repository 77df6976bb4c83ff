package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"schoolportal/internal/config"
	"schoolportal/internal/model"
)

// AuthService issues access tokens. The claims carry the user's role so the
// thread listing can pick a depth policy without a user lookup.
type AuthService struct {
	config *config.Config
	now    func() time.Time
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{config: cfg, now: time.Now}
}

// IssueAccessToken signs an HS256 token for user.
func (s *AuthService) IssueAccessToken(user *model.User) (*model.LoginResponse, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"role":    user.Role,
		"exp":     now.Add(time.Duration(s.config.AccessTokenMaxAge) * time.Second).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &model.LoginResponse{
		User:        user,
		AccessToken: signed,
		ExpiresIn:   s.config.AccessTokenMaxAge,
	}, nil
}
