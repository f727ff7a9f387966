package dto

import (
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// UserRegisterRequest payload for new citizens.
type UserRegisterRequest struct {
	Handle string `json:"handle" form:"handle"`
}

// ModeratorLoginRequest payload for moderator login.
type ModeratorLoginRequest struct {
	Password string `json:"password" form:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse is the public view of a citizen.
type UserResponse struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{ID: user.ID, Handle: user.Handle, CreatedAt: user.CreatedAt}
}
