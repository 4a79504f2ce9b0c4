package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"holylandtour/internal/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type Limiter interface {
	Check(ctx context.Context, key string) error
}

// RateLimit limits requests per client IP. With a shared limiter the count is
// kept in Redis; without one fiber's in-memory limiter is used.
func RateLimit(logger *slog.Logger, shared Limiter, max int, window time.Duration) fiber.Handler {
	if shared == nil {
		return limiter.New(limiter.Config{
			Max:        max,
			Expiration: window,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: tooManyRequests,
		})
	}

	return func(c *fiber.Ctx) error {
		err := shared.Check(c.UserContext(), c.Path()+":"+c.IP())
		switch {
		case errors.Is(err, ratelimit.ErrTooManyAttempts):
			return tooManyRequests(c)
		case err != nil:
			// Fail open when Redis is unreachable.
			logger.WarnContext(c.UserContext(), "Rate limiter unavailable", "error", err)
		}
		return c.Next()
	}
}

func tooManyRequests(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests, please try again later"})
}
