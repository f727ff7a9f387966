package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	"github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

const maxHandleLength = 64

// IdentityService registers citizens and resolves their handles.
type IdentityService struct {
	users  repository.UserRepository
	logger *zap.Logger
	now    func() time.Time
}

// IdentityDependencies bundles collaborators for IdentityService.
type IdentityDependencies struct {
	UserRepo repository.UserRepository
	Logger   *zap.Logger
	Clock    func() time.Time
}

// NewIdentityService constructs the service.
func NewIdentityService(deps IdentityDependencies) *IdentityService {
	now := deps.Clock
	if now == nil {
		now = utcNow
	}
	return &IdentityService{
		users:  deps.UserRepo,
		logger: nopIfNil(deps.Logger),
		now:    now,
	}
}

// Register claims handle for a new user. Handles are unique ignoring case.
func (s *IdentityService) Register(ctx context.Context, handle string) (user *domain.User, err error) {
	ctx, span := tracer.Start(ctx, "IdentityService.Register")
	defer func() { endSpan(span, err) }()

	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, errorutil.NewValidationError("handle is required", map[string]any{"fields": []string{"handle"}})
	}
	if utf8.RuneCountInString(handle) > maxHandleLength {
		return nil, errorutil.NewValidationError("handle is too long", map[string]any{"max_length": maxHandleLength})
	}

	user = &domain.User{Handle: handle, CreatedAt: s.now()}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, translateRepoError(err, "handle", map[string]any{"handle": handle})
	}
	span.SetAttributes(attribute.String("user.id", user.ID))
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// GetUser returns the user with id.
func (s *IdentityService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err, "user", map[string]any{"user_id": id})
	}
	return user, nil
}

// HandleFor resolves userID to its display handle.
func (s *IdentityService) HandleFor(ctx context.Context, userID string) (string, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Handle, nil
}
