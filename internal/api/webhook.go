package api

import (
	"context"
	"errors"
	"log/slog"

	"holylandtour/internal/stripe"
	"holylandtour/internal/webhook"

	"github.com/gofiber/fiber/v2"
)

type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) error
}

type WebhookHandler struct {
	logger    *slog.Logger
	processor WebhookProcessor
}

func NewWebhookHandler(logger *slog.Logger, processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{logger: logger, processor: processor}
}

// Stripe answers 200 only once the event is durably handled, so any 5xx makes
// the gateway redeliver.
func (h *WebhookHandler) Stripe(c *fiber.Ctx) error {
	err := h.processor.Handle(c.UserContext(), c.Body(), c.Get("Stripe-Signature"))
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"received": true})
	case errors.Is(err, webhook.ErrMissingSignature):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No signature provided"})
	case errors.Is(err, stripe.ErrInvalidSignature):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid signature"})
	case errors.Is(err, stripe.ErrMalformedEvent):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payload"})
	default:
		h.logger.ErrorContext(c.UserContext(), "Webhook handler error", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Webhook handler failed"})
	}
}
