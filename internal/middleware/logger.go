package middleware

import (
	"context"
	"log/slog"
	"time"

	"holylandtour/internal/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// RequestContext copies the request id and client address onto the user
// context so services can log them. It must run after requestid.New.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if id, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok {
			ctx = context.WithValue(ctx, logger.RequestIDKey, id)
		}
		ctx = context.WithValue(ctx, logger.IPAddressKey, c.IP())
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func Logger(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		entry := log.WithRequest(c.UserContext())
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Log(c.UserContext(), level, "Request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", time.Since(start).String(),
		)
		return err
	}
}

// SecurityHeaders sets the response headers for a JSON API.
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if c.Protocol() == "https" {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		return c.Next()
	}
}
