package repository

import (
	"context"
	"strings"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// UserRepository defines persistence access for citizen identities.
type UserRepository interface {
	// Create stores a user, assigning an id when empty. Returns ErrConflict when the handle is taken.
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByHandle(ctx context.Context, handle string) (*domain.User, error)
}

// handleKey folds a handle for uniqueness checks.
func handleKey(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}
