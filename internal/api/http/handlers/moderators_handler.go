package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/api/dto"
	"github.com/spec-kit/civic-issue-service/internal/service"
	"github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// ModeratorsHandler exposes moderator login.
type ModeratorsHandler struct {
	auth *service.AuthService
}

// NewModeratorsHandler constructs handler.
func NewModeratorsHandler(authService *service.AuthService) *ModeratorsHandler {
	return &ModeratorsHandler{auth: authService}
}

// Login handles POST /auth/moderators/login.
func (h *ModeratorsHandler) Login(c *fiber.Ctx) error {
	var req dto.ModeratorLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}

	token, exp, err := h.auth.LoginModerator(c.UserContext(), req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}
