package http

import (
	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/config"
)

// NewApp builds the fiber application. Errors are rendered by the error
// middleware, so the framework handler only sees what escapes it. Immutable
// is required: params and parsed bodies are kept by the stores after the
// request buffer is reused.
func NewApp(cfg config.AppConfig) *fiber.App {
	bodyLimit := cfg.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 4
	}
	return fiber.New(fiber.Config{
		AppName:               cfg.Name,
		BodyLimit:             bodyLimit << 20,
		DisableStartupMessage: true,
		Immutable:             true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
}
