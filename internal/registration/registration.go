package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"holylandtour/internal/config"
	"holylandtour/internal/database"
	"holylandtour/internal/stripe"
	"holylandtour/internal/telemetry"
	"holylandtour/internal/util"
	"holylandtour/internal/validator"

	"github.com/google/uuid"
)

var (
	ErrInvalidRequest      = errors.New("invalid registration data")
	ErrAlreadyRegistered   = errors.New("this email is already registered for the tour")
	ErrCheckoutUnavailable = errors.New("payment checkout is currently unavailable")
)

const dateLayout = "2006-01-02"

type Store interface {
	RegistrationEmailExists(ctx context.Context, email string) (bool, error)
	CreateRegistration(ctx context.Context, params database.CreateRegistrationParams) (database.Registration, error)
	SetRegistrationPaymentRef(ctx context.Context, id uuid.UUID, ref string) error
	TransitionRegistration(ctx context.Context, params database.TransitionParams) (database.Registration, bool, error)
	GetRegistrationByID(ctx context.Context, id uuid.UUID) (database.Registration, error)
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
	Title               string  `json:"title" validate:"omitempty,max=20"`
	FirstName           string  `json:"firstName" validate:"required,min=2"`
	LastName            string  `json:"lastName" validate:"required,min=2"`
	Email               string  `json:"email" validate:"required,email,no_disposable_email"`
	Phone               string  `json:"phone" validate:"required,phone"`
	DateOfBirth         string  `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	Address             string  `json:"address" validate:"omitempty,min=5"`
	City                string  `json:"city" validate:"omitempty,min=2"`
	State               string  `json:"state" validate:"omitempty,min=2"`
	ZipCode             string  `json:"zipCode" validate:"omitempty,min=5"`
	Country             string  `json:"country" validate:"omitempty,min=2"`
	EmergencyContact    string  `json:"emergencyContact" validate:"omitempty,min=2"`
	EmergencyPhone      string  `json:"emergencyPhone" validate:"omitempty,phone"`
	DietaryRestrictions string  `json:"dietaryRestrictions" validate:"omitempty,max=1000"`
	MedicalConditions   string  `json:"medicalConditions" validate:"omitempty,max=1000"`
	KingschatID         string  `json:"kingschatId" validate:"omitempty,min=3"`
	Zone                string  `json:"zone" validate:"omitempty,max=100"`
	Network             string  `json:"network" validate:"omitempty,max=100"`
	RegistrationFee     float64 `json:"registrationFee" validate:"gt=0,lte=999999.99"`
}

// normalize trims every text field so validation sees the stored values.
func (r *SubmitRequest) normalize() {
	for _, f := range []*string{
		&r.Title, &r.FirstName, &r.LastName, &r.Email, &r.Phone, &r.DateOfBirth,
		&r.Address, &r.City, &r.State, &r.ZipCode, &r.Country, &r.EmergencyContact,
		&r.EmergencyPhone, &r.DietaryRestrictions, &r.MedicalConditions, &r.KingschatID,
		&r.Zone, &r.Network,
	} {
		*f = strings.TrimSpace(*f)
	}
}

type SubmitResult struct {
	RegistrationID uuid.UUID
	SessionID      string
	CheckoutURL    string
}

// Submit stores a pending registration and opens a checkout session for it.
// If the session cannot be opened or linked, the registration is marked
// abandoned so it never lingers as an unpayable pending row.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	var result SubmitResult

	req.normalize()
	if err := s.validator.Validate(req); err != nil {
		s.metrics.RecordRegistration(ctx, "invalid")
		return result, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	exists, err := s.store.RegistrationEmailExists(ctx, req.Email)
	if err != nil {
		return result, fmt.Errorf("failed to check registration email: %w", err)
	}
	if exists {
		s.metrics.RecordRegistration(ctx, "duplicate")
		return result, ErrAlreadyRegistered
	}

	params := database.CreateRegistrationParams{
		Title:                util.OptionalString(req.Title),
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		Email:                req.Email,
		Phone:                req.Phone,
		Address:              util.OptionalString(req.Address),
		City:                 util.OptionalString(req.City),
		State:                util.OptionalString(req.State),
		ZipCode:              util.OptionalString(req.ZipCode),
		Country:              req.Country,
		EmergencyContact:     util.OptionalString(req.EmergencyContact),
		EmergencyPhone:       util.OptionalString(req.EmergencyPhone),
		DietaryRestrictions:  util.OptionalString(req.DietaryRestrictions),
		MedicalConditions:    util.OptionalString(req.MedicalConditions),
		KingschatID:          util.OptionalString(req.KingschatID),
		Zone:                 util.OptionalString(req.Zone),
		Network:              util.OptionalString(req.Network),
		RegistrationFeeCents: int64(math.Round(req.RegistrationFee * 100)),
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse(dateLayout, req.DateOfBirth)
		if err != nil {
			return result, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		params.DateOfBirth = util.Some(dob)
	}

	reg, err := s.store.CreateRegistration(ctx, params)
	if err != nil {
		if errors.Is(err, database.ErrRegistrationEmailTaken) {
			s.metrics.RecordRegistration(ctx, "duplicate")
			return result, ErrAlreadyRegistered
		}
		return result, fmt.Errorf("failed to create registration: %w", err)
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, stripe.CheckoutSessionParams{
		Kind:        stripe.KindRegistration,
		EntityID:    reg.ID.String(),
		Email:       reg.Email,
		ProductName: s.tour.Name + " Registration",
		Description: fmt.Sprintf("Registration for %s %s - %s", reg.FirstName, reg.LastName, s.tour.DateRange()),
		AmountCents: reg.RegistrationFeeCents,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to create checkout session", "registration_id", reg.ID, "error", err)
		s.abandon(ctx, reg.ID)
		s.metrics.RecordRegistration(ctx, "checkout_failed")
		return result, fmt.Errorf("%w: %w", ErrCheckoutUnavailable, err)
	}

	if err := s.store.SetRegistrationPaymentRef(ctx, reg.ID, session.ID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to link checkout session", "registration_id", reg.ID, "session_id", session.ID, "error", err)
		if expireErr := s.gateway.ExpireCheckoutSession(context.WithoutCancel(ctx), session.ID); expireErr != nil {
			s.logger.ErrorContext(ctx, "Failed to expire unlinked checkout session", "session_id", session.ID, "error", expireErr)
		}
		s.abandon(ctx, reg.ID)
		s.metrics.RecordRegistration(ctx, "link_failed")
		return result, fmt.Errorf("failed to link checkout session to registration: %w", err)
	}

	s.metrics.RecordRegistration(ctx, "created")
	s.logger.InfoContext(ctx, "Registration created", "registration_id", reg.ID, "session_id", session.ID)

	result.RegistrationID = reg.ID
	result.SessionID = session.ID
	result.CheckoutURL = session.URL
	return result, nil
}

// abandon marks a still pending registration as abandoned. It runs even when
// the request context is already cancelled.
func (s *Service) abandon(ctx context.Context, id uuid.UUID) {
	if _, _, err := s.store.TransitionRegistration(context.WithoutCancel(ctx), database.TransitionParams{
		ID:   util.Some(id),
		From: []database.PaymentStatus{database.PaymentStatusPending},
		To:   database.PaymentStatusAbandoned,
	}); err != nil {
		s.logger.ErrorContext(ctx, "Failed to abandon registration", "registration_id", id, "error", err)
	}
}

func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (database.Registration, error) {
	return s.store.GetRegistrationByID(ctx, id)
}

type Fee struct {
	AmountCents int64
	EarlyBird   bool
	Deadline    time.Time
}

// CurrentFee returns the early bird fee until the deadline has passed and the
// standard fee after it.
func (s *Service) CurrentFee(now time.Time) Fee {
	if now.Before(s.tour.EarlyBirdDeadline) {
		return Fee{AmountCents: s.tour.EarlyBirdFeeCents, EarlyBird: true, Deadline: s.tour.EarlyBirdDeadline}
	}
	return Fee{AmountCents: s.tour.StandardFeeCents, EarlyBird: false, Deadline: s.tour.EarlyBirdDeadline}
}

func (s *Service) Tour() config.TourConfig {
	return s.tour
}
