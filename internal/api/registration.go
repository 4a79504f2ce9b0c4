package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"holylandtour/internal/config"
	"holylandtour/internal/database"
	"holylandtour/internal/registration"
	"holylandtour/internal/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type RegistrationService interface {
	Submit(ctx context.Context, req registration.SubmitRequest) (registration.SubmitResult, error)
	Lookup(ctx context.Context, id uuid.UUID) (database.Registration, error)
	CurrentFee(now time.Time) registration.Fee
	Tour() config.TourConfig
}

type RegistrationHandler struct {
	logger  *slog.Logger
	service RegistrationService
	now     func() time.Time
}

func NewRegistrationHandler(logger *slog.Logger, service RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{logger: logger, service: service, now: time.Now}
}

func (h *RegistrationHandler) Create(c *fiber.Ctx) error {
	var req registration.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid registration data"})
	}

	result, err := h.service.Submit(c.UserContext(), req)
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrInvalidRequest):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid registration data",
				"details": validator.FieldErrors(err),
			})
		case errors.Is(err, registration.ErrAlreadyRegistered):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "This email is already registered for the tour"})
		default:
			h.logger.ErrorContext(c.UserContext(), "Registration error", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
		}
	}

	return c.JSON(fiber.Map{
		"registrationId": result.RegistrationID,
		"clientSecret":   result.SessionID,
		"checkoutUrl":    result.CheckoutURL,
	})
}

func (h *RegistrationHandler) Get(c *fiber.Ctx) error {
	rawID := c.Query("id")
	if rawID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Registration ID is required"})
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid registration ID"})
	}

	reg, err := h.service.Lookup(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, database.ErrRegistrationNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Registration not found"})
		}
		h.logger.ErrorContext(c.UserContext(), "Get registration error", "registration_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	return c.JSON(newRegistrationResponse(reg))
}

// Tour describes the dates and the fee a registrant pays today.
func (h *RegistrationHandler) Tour(c *fiber.Ctx) error {
	tour := h.service.Tour()
	fee := h.service.CurrentFee(h.now())

	return c.JSON(fiber.Map{
		"name":              tour.Name,
		"startDate":         tour.StartDate.Format(time.DateOnly),
		"endDate":           tour.EndDate.Format(time.DateOnly),
		"dateRange":         tour.DateRange(),
		"nights":            tour.Nights(),
		"registrationFee":   dollars(fee.AmountCents),
		"earlyBird":         fee.EarlyBird,
		"earlyBirdDeadline": fee.Deadline.Format(time.DateOnly),
		"earlyBirdFee":      dollars(tour.EarlyBirdFeeCents),
		"standardFee":       dollars(tour.StandardFeeCents),
	})
}
