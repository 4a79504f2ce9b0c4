package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	logger *slog.Logger
	db     Pinger
}

func NewHealthHandler(logger *slog.Logger, db Pinger) *HealthHandler {
	return &HealthHandler{logger: logger, db: db}
}

func (h *HealthHandler) Healthy(c *fiber.Ctx) error {
	if err := h.db.Ping(c.UserContext()); err != nil {
		h.logger.ErrorContext(c.UserContext(), "Database connection failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "unhealthy",
			"message": "Database connection failed",
		})
	}

	return c.JSON(fiber.Map{
		"status":  "healthy",
		"message": "Service is healthy",
	})
}
