package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// RequireCitizen ensures a registered citizen is authenticated.
func RequireCitizen() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return errorutil.NewUnauthorized("authentication required")
		}
		if principal.SubjectType != domain.SubjectTypeCitizen || principal.User == nil {
			return errorutil.NewForbidden("citizen token required")
		}
		return c.Next()
	}
}

// RequireModerator ensures the caller holds a moderator token.
func RequireModerator() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return errorutil.NewUnauthorized("authentication required")
		}
		if principal.SubjectType != domain.SubjectTypeModerator {
			return errorutil.NewForbidden("moderator role required")
		}
		return c.Next()
	}
}
