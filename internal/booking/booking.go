package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"holylandtour/internal/config"
	"holylandtour/internal/database"
	"holylandtour/internal/stripe"
	"holylandtour/internal/telemetry"
	"holylandtour/internal/util"
	"holylandtour/internal/validator"

	"github.com/google/uuid"
)

var (
	ErrInvalidRequest      = errors.New("invalid booking data")
	ErrUnknownRoomType     = errors.New("selected room type does not exist")
	ErrRoomTypeSoldOut     = errors.New("selected room type is sold out")
	ErrCheckoutUnavailable = errors.New("payment checkout is currently unavailable")
)

type Store interface {
	GetRoomType(ctx context.Context, id string) (database.RoomType, error)
	ListRoomTypes(ctx context.Context, availableOnly bool) ([]database.RoomType, error)
	CreateHotelBooking(ctx context.Context, params database.CreateHotelBookingParams) (database.HotelBooking, error)
	SetHotelBookingPaymentRef(ctx context.Context, id uuid.UUID, ref string) error
	TransitionHotelBooking(ctx context.Context, params database.TransitionParams) (database.HotelBooking, bool, error)
	GetHotelBookingByID(ctx context.Context, id uuid.UUID) (database.HotelBooking, error)
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, params stripe.CheckoutSessionParams) (stripe.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, id string) error
}

type Service struct {
	logger    *slog.Logger
	store     Store
	gateway   PaymentGateway
	validator *validator.Validator
	metrics   *telemetry.Metrics
	tour      config.TourConfig
}

func NewService(logger *slog.Logger, store Store, gateway PaymentGateway, v *validator.Validator, metrics *telemetry.Metrics, tour config.TourConfig) *Service {
	return &Service{logger: logger, store: store, gateway: gateway, validator: v, metrics: metrics, tour: tour}
}

type SubmitRequest struct {
	FirstName       string `json:"firstName" validate:"required,min=2"`
	LastName        string `json:"lastName" validate:"required,min=2"`
	Email           string `json:"email" validate:"required,email,no_disposable_email"`
	Phone           string `json:"phone" validate:"required,phone"`
	RoomType        string `json:"roomType" validate:"required"`
	SpecialRequests string `json:"specialRequests" validate:"omitempty,max=1000"`
	RegistrationID  string `json:"registrationId" validate:"omitempty,uuid"`
}

// normalize trims every text field so validation sees the stored values.
func (r *SubmitRequest) normalize() {
	for _, f := range []*string{&r.FirstName, &r.LastName, &r.Email, &r.Phone, &r.RoomType, &r.SpecialRequests, &r.RegistrationID} {
		*f = strings.TrimSpace(*f)
	}
}

type SubmitResult struct {
	BookingID   uuid.UUID
	SessionID   string
	CheckoutURL string
}

// Submit prices the selected room for the tour nights, stores a pending
// booking and opens a checkout session for it. Compensation on checkout
// failure matches registration intake.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	var result SubmitResult

	req.normalize()
	if err := s.validator.Validate(req); err != nil {
		s.metrics.RecordBooking(ctx, req.RoomType, "invalid")
		return result, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	room, err := s.store.GetRoomType(ctx, req.RoomType)
	if err != nil {
		if errors.Is(err, database.ErrRoomTypeNotFound) {
			s.metrics.RecordBooking(ctx, req.RoomType, "unknown_room")
			return result, ErrUnknownRoomType
		}
		return result, fmt.Errorf("failed to get room type: %w", err)
	}
	if room.AvailableRooms <= 0 {
		s.metrics.RecordBooking(ctx, room.ID, "sold_out")
		return result, ErrRoomTypeSoldOut
	}

	nights := s.tour.Nights()
	params := database.CreateHotelBookingParams{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		Phone:            req.Phone,
		RoomTypeID:       room.ID,
		RoomPriceCents:   room.PricePerNightCents,
		CheckInDate:      s.tour.StartDate,
		CheckOutDate:     s.tour.EndDate,
		NumberOfNights:   nights,
		TotalAmountCents: room.PricePerNightCents * int64(nights),
		SpecialRequests:  util.OptionalString(req.SpecialRequests),
	}
	if req.RegistrationID != "" {
		regID, err := uuid.Parse(req.RegistrationID)
		if err != nil {
			return result, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		params.RegistrationID = util.Some(regID)
	}

	booking, err := s.store.CreateHotelBooking(ctx, params)
	if err != nil {
		return result, fmt.Errorf("failed to create hotel booking: %w", err)
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, stripe.CheckoutSessionParams{
		Kind:        stripe.KindHotelBooking,
		EntityID:    booking.ID.String(),
		Email:       booking.Email,
		ProductName: fmt.Sprintf("%s - %s", s.tour.Name, room.Name),
		Description: fmt.Sprintf("%d nights for %s %s - %s", nights, booking.FirstName, booking.LastName, s.tour.DateRange()),
		AmountCents: booking.TotalAmountCents,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to create checkout session", "booking_id", booking.ID, "error", err)
		s.abandon(ctx, booking.ID)
		s.metrics.RecordBooking(ctx, room.ID, "checkout_failed")
		return result, fmt.Errorf("%w: %w", ErrCheckoutUnavailable, err)
	}

	if err := s.store.SetHotelBookingPaymentRef(ctx, booking.ID, session.ID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to link checkout session", "booking_id", booking.ID, "session_id", session.ID, "error", err)
		if expireErr := s.gateway.ExpireCheckoutSession(context.WithoutCancel(ctx), session.ID); expireErr != nil {
			s.logger.ErrorContext(ctx, "Failed to expire unlinked checkout session", "session_id", session.ID, "error", expireErr)
		}
		s.abandon(ctx, booking.ID)
		s.metrics.RecordBooking(ctx, room.ID, "link_failed")
		return result, fmt.Errorf("failed to link checkout session to hotel booking: %w", err)
	}

	s.metrics.RecordBooking(ctx, room.ID, "created")
	s.logger.InfoContext(ctx, "Hotel booking created", "booking_id", booking.ID, "room_type", room.ID, "session_id", session.ID)

	result.BookingID = booking.ID
	result.SessionID = session.ID
	result.CheckoutURL = session.URL
	return result, nil
}

func (s *Service) abandon(ctx context.Context, id uuid.UUID) {
	if _, _, err := s.store.TransitionHotelBooking(context.WithoutCancel(ctx), database.TransitionParams{
		ID:   util.Some(id),
		From: []database.PaymentStatus{database.PaymentStatusPending},
		To:   database.PaymentStatusAbandoned,
	}); err != nil {
		s.logger.ErrorContext(ctx, "Failed to abandon hotel booking", "booking_id", id, "error", err)
	}
}

func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (database.HotelBooking, error) {
	return s.store.GetHotelBookingByID(ctx, id)
}

// AvailableRoomTypes lists the room types that can still be booked.
func (s *Service) AvailableRoomTypes(ctx context.Context) ([]database.RoomType, error) {
	rooms, err := s.store.ListRoomTypes(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list room types: %w", err)
	}
	return rooms, nil
}

func (s *Service) Nights() int {
	return s.tour.Nights()
}
