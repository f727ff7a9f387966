package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/api/http/handlers"
	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/observability"
	"github.com/spec-kit/civic-issue-service/internal/ratelimit"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Issues         *handlers.IssuesHandler
	Users          *handlers.UsersHandler
	Moderators     *handlers.ModeratorsHandler
	AuthMiddleware *auth.AuthMiddleware
	SubmitLimiter  ratelimit.Limiter
	Metrics        *observability.Metrics
	// UploadDir is served read-only under /UploadPrefix when both are set.
	UploadDir    string
	UploadPrefix string
	Logger       *zap.Logger
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Use(cors.New())

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}
	if cfg.UploadDir != "" && cfg.UploadPrefix != "" {
		app.Static("/"+cfg.UploadPrefix, cfg.UploadDir, fiber.Static{Browse: false})
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/moderators/login", cfg.Moderators.Login)

	api := app.Group("/api")
	api.Post("/report",
		cfg.AuthMiddleware.Optional,
		ratelimit.Middleware(cfg.SubmitLimiter, reporterKey, cfg.Logger),
		cfg.Issues.Submit,
	)
	api.Get("/approved-issues", cfg.Issues.ListApproved)
	api.Get("/issues", cfg.AuthMiddleware.Handle, auth.RequireModerator(), cfg.Issues.ListPending)
	api.Get("/issues/:id", cfg.Issues.Get)
	api.Post("/issues/:id/vote", cfg.AuthMiddleware.Handle, auth.RequireCitizen(), cfg.Issues.Vote)
	api.Post("/moderator/:id", cfg.AuthMiddleware.Handle, auth.RequireModerator(), cfg.Issues.Moderate)
}

// reporterKey limits authenticated reporters by id and everyone else by address.
func reporterKey(c *fiber.Ctx) string {
	if principal, ok := auth.PrincipalFromContext(c); ok && principal.User != nil {
		return "user:" + principal.User.ID
	}
	return "ip:" + c.IP()
}
