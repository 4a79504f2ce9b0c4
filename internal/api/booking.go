package api

import (
	"context"
	"errors"
	"log/slog"

	"holylandtour/internal/booking"
	"holylandtour/internal/database"
	"holylandtour/internal/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type BookingService interface {
	Submit(ctx context.Context, req booking.SubmitRequest) (booking.SubmitResult, error)
	Lookup(ctx context.Context, id uuid.UUID) (database.HotelBooking, error)
	AvailableRoomTypes(ctx context.Context) ([]database.RoomType, error)
	Nights() int
}

type BookingHandler struct {
	logger  *slog.Logger
	service BookingService
}

func NewBookingHandler(logger *slog.Logger, service BookingService) *BookingHandler {
	return &BookingHandler{logger: logger, service: service}
}

func (h *BookingHandler) Create(c *fiber.Ctx) error {
	var req booking.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking data"})
	}

	result, err := h.service.Submit(c.UserContext(), req)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrInvalidRequest):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid booking data",
				"details": validator.FieldErrors(err),
			})
		case errors.Is(err, booking.ErrUnknownRoomType):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Selected room type does not exist"})
		case errors.Is(err, booking.ErrRoomTypeSoldOut):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Selected room type is sold out"})
		default:
			h.logger.ErrorContext(c.UserContext(), "Hotel booking error", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
		}
	}

	return c.JSON(fiber.Map{
		"bookingId":    result.BookingID,
		"clientSecret": result.SessionID,
		"checkoutUrl":  result.CheckoutURL,
	})
}

func (h *BookingHandler) Get(c *fiber.Ctx) error {
	rawID := c.Query("id")
	if rawID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Booking ID is required"})
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID"})
	}

	b, err := h.service.Lookup(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, database.ErrHotelBookingNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Booking not found"})
		}
		h.logger.ErrorContext(c.UserContext(), "Get hotel booking error", "booking_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	return c.JSON(newBookingResponse(b))
}

func (h *BookingHandler) Rooms(c *fiber.Ctx) error {
	rooms, err := h.service.AvailableRoomTypes(c.UserContext())
	if err != nil {
		h.logger.ErrorContext(c.UserContext(), "List room types error", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	nights := h.service.Nights()
	out := make([]roomTypeResponse, 0, len(rooms))
	for _, rt := range rooms {
		out = append(out, newRoomTypeResponse(rt, nights))
	}
	return c.JSON(fiber.Map{"rooms": out, "nights": nights})
}
