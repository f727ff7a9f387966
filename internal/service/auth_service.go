package service

import (
	"context"
	"time"

	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/config"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// AuthService issues bearer tokens for citizens and moderators.
type AuthService struct {
	identity      *IdentityService
	tokenMgr      *auth.TokenManager
	moderatorHash string
}

// NewAuthService builds the service. An empty moderator password disables moderator login.
func NewAuthService(cfg config.AuthConfig, identity *IdentityService, tokens *auth.TokenManager) (*AuthService, error) {
	s := &AuthService{identity: identity, tokenMgr: tokens}
	if cfg.ModeratorPassword != "" {
		hash, err := auth.HashPassword(cfg.ModeratorPassword, cfg.BcryptCost)
		if err != nil {
			return nil, err
		}
		s.moderatorHash = hash
	}
	return s, nil
}

// RegisterCitizen claims a handle and returns a citizen token for it.
func (s *AuthService) RegisterCitizen(ctx context.Context, handle string) (*domain.User, string, time.Time, error) {
	user, err := s.identity.Register(ctx, handle)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	token, exp, err := s.tokenMgr.IssueCitizen(user.ID)
	if err != nil {
		return nil, "", time.Time{}, errorutil.NewInternalError(err)
	}
	return user, token, exp, nil
}

// LoginModerator checks the shared moderator password.
func (s *AuthService) LoginModerator(_ context.Context, password string) (string, time.Time, error) {
	if s.moderatorHash == "" {
		return "", time.Time{}, errorutil.NewUnauthorized("moderator login disabled")
	}
	if err := auth.ComparePassword(s.moderatorHash, password); err != nil {
		return "", time.Time{}, errorutil.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.IssueModerator()
	if err != nil {
		return "", time.Time{}, errorutil.NewInternalError(err)
	}
	return token, exp, nil
}
