package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

func TestLocalLimiter(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(1_700_000_000, 0)
	limiter := NewLocalLimiter(4, 4*time.Second)
	limiter.now = func() time.Time { return clock }

	for i := 0; i < 4; i++ {
		allowed, _, err := limiter.Allow(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, retryAfter, err := limiter.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, time.Second, retryAfter)

	allowed, _, err = limiter.Allow(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, allowed, "keys are limited independently")

	clock = clock.Add(time.Second)
	allowed, _, err = limiter.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, allowed, "a token refills after window/burst")
}

type stubLimiter struct {
	allowed    bool
	retryAfter time.Duration
	err        error
	keys       []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.retryAfter, s.err
}

func newTestApp(limiter Limiter) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := errorutil.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"code": domainErr.Code})
		},
	})
	app.Post("/report", Middleware(limiter, func(c *fiber.Ctx) string { return c.IP() }, nil), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	return app
}

func TestMiddleware(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		stub := &stubLimiter{allowed: true}
		resp, err := newTestApp(stub).Test(httptest.NewRequest("POST", "/report", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.Len(t, stub.keys, 1)
	})

	t.Run("limited", func(t *testing.T) {
		stub := &stubLimiter{retryAfter: 1500 * time.Millisecond}
		resp, err := newTestApp(stub).Test(httptest.NewRequest("POST", "/report", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get(fiber.HeaderRetryAfter))
	})

	t.Run("limiter failure lets the request through", func(t *testing.T) {
		stub := &stubLimiter{err: errors.New("redis down")}
		resp, err := newTestApp(stub).Test(httptest.NewRequest("POST", "/report", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	})
}
