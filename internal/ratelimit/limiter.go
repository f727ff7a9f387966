package ratelimit

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// KeyFunc extracts the rate limit key from a request.
type KeyFunc func(c *fiber.Ctx) string

// Middleware rejects requests over the limit with RATE_LIMITED. When the
// limiter itself fails the request is let through and the failure logged.
func Middleware(limiter Limiter, key KeyFunc, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}
		k := key(c)
		allowed, retryAfter, err := limiter.Allow(c.UserContext(), k)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", k), zap.Error(err))
			return c.Next()
		}
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(seconds))
			return errorutil.NewRateLimited(map[string]any{"retry_after_seconds": seconds})
		}
		return c.Next()
	}
}
