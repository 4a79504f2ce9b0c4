package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"holylandtour/internal/config"
	"holylandtour/internal/database"
	"holylandtour/internal/events"
	"holylandtour/internal/notifications"
	"holylandtour/internal/stripe"
	"holylandtour/internal/telemetry"
	"holylandtour/internal/util"

	"github.com/google/uuid"
)

var ErrMissingSignature = errors.New("webhook: no signature provided")

type Store interface {
	HasWebhookEvent(ctx context.Context, id string) (bool, error)
	RecordWebhookEvent(ctx context.Context, id, eventType string) error
	TransitionRegistration(ctx context.Context, params database.TransitionParams) (database.Registration, bool, error)
	TransitionHotelBooking(ctx context.Context, params database.TransitionParams) (database.HotelBooking, bool, error)
	TransitionHotelBookingPaid(ctx context.Context, params database.TransitionParams) (database.HotelBooking, bool, error)
	GetRoomType(ctx context.Context, id string) (database.RoomType, error)
	ClaimEmail(ctx context.Context, referenceID uuid.UUID, emailType database.EmailType) (bool, error)
	CreateEmailLog(ctx context.Context, params database.CreateEmailLogParams) (database.EmailLog, error)
}

type EventParser interface {
	ParseEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

// Processor authenticates payment gateway callbacks and applies them to the
// record store. Every state change is a conditional transition, so replays
// and out of order deliveries cannot move an entity backwards.
type Processor struct {
	logger             *slog.Logger
	store              Store
	parser             EventParser
	mailer             notifications.Mailer
	publisher          events.Publisher
	metrics            *telemetry.Metrics
	tour               config.TourConfig
	decrementInventory bool
}

type Params struct {
	Logger             *slog.Logger
	Store              Store
	Parser             EventParser
	Mailer             notifications.Mailer
	Publisher          events.Publisher
	Metrics            *telemetry.Metrics
	Tour               config.TourConfig
	DecrementInventory bool
}

func NewProcessor(params Params) *Processor {
	return &Processor{
		logger:             params.Logger,
		store:              params.Store,
		parser:             params.Parser,
		mailer:             params.Mailer,
		publisher:          params.Publisher,
		metrics:            params.Metrics,
		tour:               params.Tour,
		decrementInventory: params.DecrementInventory,
	}
}

var paidFrom = []database.PaymentStatus{
	database.PaymentStatusPending,
	database.PaymentStatusFailed,
	database.PaymentStatusAbandoned,
}

// Handle verifies and processes one delivery. ErrMissingSignature and
// stripe.ErrInvalidSignature mean the delivery was rejected untouched; any
// other error means processing failed and the gateway should retry.
func (p *Processor) Handle(ctx context.Context, payload []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return ErrMissingSignature
	}

	event, err := p.parser.ParseEvent(payload, signatureHeader)
	if err != nil {
		p.logger.WarnContext(ctx, "Webhook signature verification failed", "error", err)
		p.metrics.RecordWebhookEvent(ctx, "unknown", "rejected")
		return err
	}

	kind := eventKind(event)
	seen, err := p.store.HasWebhookEvent(ctx, event.ID())
	if err != nil {
		return fmt.Errorf("failed to check webhook event %s: %w", event.ID(), err)
	}
	if seen {
		p.logger.InfoContext(ctx, "Webhook event already processed", "event_id", event.ID(), "type", kind)
		p.metrics.RecordWebhookEvent(ctx, kind, "duplicate")
		return nil
	}

	if err := p.dispatch(ctx, event); err != nil {
		p.metrics.RecordWebhookEvent(ctx, kind, "failed")
		return err
	}

	if err := p.store.RecordWebhookEvent(ctx, event.ID(), kind); err != nil {
		return fmt.Errorf("failed to record webhook event %s: %w", event.ID(), err)
	}
	p.metrics.RecordWebhookEvent(ctx, kind, "processed")
	return nil
}

func (p *Processor) dispatch(ctx context.Context, event stripe.Event) error {
	switch e := event.(type) {
	case stripe.CheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, e)
	case stripe.CheckoutExpired:
		return p.handleCheckoutExpired(ctx, e)
	case stripe.PaymentSucceeded:
		p.logger.InfoContext(ctx, "Payment succeeded", "payment_ref", e.PaymentRef)
		return nil
	case stripe.PaymentFailed:
		return p.handlePaymentFailed(ctx, e)
	case stripe.ChargeRefunded:
		return p.handleChargeRefunded(ctx, e)
	case stripe.Unhandled:
		p.logger.InfoContext(ctx, "Unhandled webhook event type", "event_id", e.EventID, "type", e.Type)
		return nil
	default:
		p.logger.WarnContext(ctx, "Unknown webhook event", "event_id", event.ID())
		return nil
	}
}

func (p *Processor) handleCheckoutCompleted(ctx context.Context, e stripe.CheckoutCompleted) error {
	entityID, err := uuid.Parse(e.EntityID)
	if err != nil {
		p.logger.ErrorContext(ctx, "No entity ID in checkout session metadata", "session_id", e.SessionID, "event_id", e.EventID)
		return nil
	}

	params := database.TransitionParams{
		ID:   util.Some(entityID),
		From: paidFrom,
		To:   database.PaymentStatusPaid,
	}
	if e.PaymentRef != "" {
		params.NewPaymentRef = util.Some(e.PaymentRef)
	}

	switch e.Kind {
	case stripe.KindHotelBooking:
		return p.completeHotelBooking(ctx, e, params)
	default:
		return p.completeRegistration(ctx, e, params)
	}
}

func (p *Processor) completeRegistration(ctx context.Context, e stripe.CheckoutCompleted, params database.TransitionParams) error {
	reg, changed, err := p.store.TransitionRegistration(ctx, params)
	if err != nil {
		if errors.Is(err, database.ErrRegistrationNotFound) {
			p.logger.ErrorContext(ctx, "Registration not found", "registration_id", e.EntityID, "session_id", e.SessionID)
			return nil
		}
		return fmt.Errorf("failed to mark registration %s paid: %w", e.EntityID, err)
	}
	if reg.PaymentStatus != database.PaymentStatusPaid {
		p.logger.WarnContext(ctx, "Registration not payable from its current status", "registration_id", reg.ID, "status", reg.PaymentStatus)
		return nil
	}

	if changed {
		p.logger.InfoContext(ctx, "Registration completed successfully", "registration_id", reg.ID)
		p.publish(ctx, events.RKRegistrationPaid, events.RegistrationPaid{
			RegistrationID: reg.ID.String(),
			Email:          reg.Email,
			PaymentRef:     e.PaymentRef,
			AmountCents:    e.AmountTotalCents,
		})
	}

	amountPaid := e.AmountTotalCents
	if amountPaid == 0 {
		amountPaid = reg.RegistrationFeeCents
	}
	to := firstNonEmpty(e.Email, reg.Email)

	return p.sendOnce(ctx, reg.ID, database.EmailTypeRegistrationConfirmation, to, func() (notifications.Message, error) {
		return notifications.RegistrationConfirmation(to, notifications.RegistrationConfirmationData{
			Tour:             p.notificationTour(),
			RegistrationID:   reg.ID.String(),
			FirstName:        reg.FirstName,
			LastName:         reg.LastName,
			Email:            reg.Email,
			Phone:            reg.Phone,
			AmountPaidCents:  amountPaid,
			RegistrationDate: reg.RegistrationDate,
		})
	})
}

func (p *Processor) completeHotelBooking(ctx context.Context, e stripe.CheckoutCompleted, params database.TransitionParams) error {
	transition := p.store.TransitionHotelBooking
	if p.decrementInventory {
		transition = p.store.TransitionHotelBookingPaid
	}

	booking, changed, err := transition(ctx, params)
	if err != nil {
		if errors.Is(err, database.ErrHotelBookingNotFound) {
			p.logger.ErrorContext(ctx, "Hotel booking not found", "booking_id", e.EntityID, "session_id", e.SessionID)
			return nil
		}
		return fmt.Errorf("failed to mark hotel booking %s paid: %w", e.EntityID, err)
	}
	if booking.PaymentStatus != database.PaymentStatusPaid {
		p.logger.WarnContext(ctx, "Hotel booking not payable from its current status", "booking_id", booking.ID, "status", booking.PaymentStatus)
		return nil
	}

	if changed {
		p.logger.InfoContext(ctx, "Hotel booking completed successfully", "booking_id", booking.ID)
		p.publish(ctx, events.RKBookingPaid, events.BookingPaid{
			BookingID:   booking.ID.String(),
			RoomTypeID:  booking.RoomTypeID,
			Email:       booking.Email,
			PaymentRef:  e.PaymentRef,
			AmountCents: e.AmountTotalCents,
		})
	}

	roomName := booking.RoomTypeID
	if room, err := p.store.GetRoomType(ctx, booking.RoomTypeID); err == nil {
		roomName = room.Name
	}
	to := firstNonEmpty(e.Email, booking.Email)

	return p.sendOnce(ctx, booking.ID, database.EmailTypeBookingConfirmation, to, func() (notifications.Message, error) {
		return notifications.BookingConfirmation(to, notifications.BookingConfirmationData{
			Tour:             p.notificationTour(),
			BookingID:        booking.ID.String(),
			FirstName:        booking.FirstName,
			LastName:         booking.LastName,
			RoomName:         roomName,
			CheckInDate:      booking.CheckInDate,
			CheckOutDate:     booking.CheckOutDate,
			NumberOfNights:   booking.NumberOfNights,
			TotalAmountCents: booking.TotalAmountCents,
			SpecialRequests:  booking.SpecialRequests.UnwrapOr(""),
		})
	})
}

// sendOnce delivers a confirmation only when this call wins the claim for the
// entity, then logs the outcome. Concurrent deliveries of the same event race
// on the claim, not on the log. A failed send is recorded, not returned.
func (p *Processor) sendOnce(ctx context.Context, referenceID uuid.UUID, emailType database.EmailType, to string, build func() (notifications.Message, error)) error {
	if to == "" {
		p.logger.WarnContext(ctx, "No recipient for confirmation email", "reference_id", referenceID)
		return nil
	}

	claimed, err := p.store.ClaimEmail(ctx, referenceID, emailType)
	if err != nil {
		return fmt.Errorf("failed to claim %s email for %s: %w", emailType, referenceID, err)
	}
	if !claimed {
		p.logger.InfoContext(ctx, "Confirmation email already handled", "reference_id", referenceID, "email_type", emailType)
		return nil
	}

	msg, err := build()
	if err == nil {
		err = p.mailer.Send(ctx, msg)
	}

	logParams := database.CreateEmailLogParams{
		ReferenceID: util.Some(referenceID),
		Recipient:   to,
		Subject:     msg.Subject,
		EmailType:   emailType,
		Status:      database.EmailStatusSent,
	}
	if logParams.Subject == "" {
		logParams.Subject = defaultSubject(emailType)
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to send confirmation email", "reference_id", referenceID, "email_type", emailType, "error", err)
		logParams.Status = database.EmailStatusFailed
		logParams.ErrorMessage = util.Some(err.Error())
	}
	p.metrics.RecordEmail(ctx, string(emailType), string(logParams.Status))

	if _, err := p.store.CreateEmailLog(ctx, logParams); err != nil {
		return fmt.Errorf("failed to log %s email for %s: %w", emailType, referenceID, err)
	}
	return nil
}

func (p *Processor) handlePaymentFailed(ctx context.Context, e stripe.PaymentFailed) error {
	failedFrom := []database.PaymentStatus{database.PaymentStatusPending}

	var (
		ref   transitioned
		found bool
		err   error
	)
	if e.PaymentRef != "" {
		ref, found, err = p.transitionByPaymentRef(ctx, e.PaymentRef, failedFrom, database.PaymentStatusFailed)
		if err != nil {
			return err
		}
	}
	if !found {
		if id, parseErr := uuid.Parse(e.EntityID); parseErr == nil {
			ref, found, err = p.transitionByID(ctx, e.Kind, id, failedFrom, database.PaymentStatusFailed)
			if err != nil {
				return err
			}
		}
	}
	if !found {
		p.logger.WarnContext(ctx, "No entity found for failed payment", "payment_ref", e.PaymentRef, "event_id", e.EventID)
		return nil
	}
	if !ref.changed {
		p.logger.InfoContext(ctx, "Failed payment ignored, entity no longer pending", "kind", ref.kind, "id", ref.id, "status", ref.status)
		return nil
	}

	p.logger.InfoContext(ctx, "Payment failed", "kind", ref.kind, "id", ref.id, "reason", e.Reason)
	p.publish(ctx, events.RKPaymentFailed, events.PaymentFailed{
		Kind:       string(ref.kind),
		EntityID:   ref.id.String(),
		PaymentRef: e.PaymentRef,
		Reason:     e.Reason,
	})
	return nil
}

func (p *Processor) handleCheckoutExpired(ctx context.Context, e stripe.CheckoutExpired) error {
	ref, found, err := p.transitionByPaymentRef(ctx, e.SessionID, []database.PaymentStatus{database.PaymentStatusPending}, database.PaymentStatusAbandoned)
	if err != nil {
		return err
	}
	if !found {
		p.logger.InfoContext(ctx, "No entity found for expired checkout session", "session_id", e.SessionID)
		return nil
	}
	if ref.changed {
		p.logger.InfoContext(ctx, "Checkout session expired, entity abandoned", "kind", ref.kind, "id", ref.id)
	}
	return nil
}

func (p *Processor) handleChargeRefunded(ctx context.Context, e stripe.ChargeRefunded) error {
	if e.PaymentRef == "" {
		p.logger.WarnContext(ctx, "Refunded charge has no payment reference", "event_id", e.EventID)
		return nil
	}

	ref, found, err := p.transitionByPaymentRef(ctx, e.PaymentRef, []database.PaymentStatus{database.PaymentStatusPaid}, database.PaymentStatusRefunded)
	if err != nil {
		return err
	}
	if !found {
		p.logger.WarnContext(ctx, "No entity found for refunded charge", "payment_ref", e.PaymentRef)
		return nil
	}
	if ref.changed {
		p.logger.InfoContext(ctx, "Payment refunded", "kind", ref.kind, "id", ref.id)
		p.publish(ctx, events.RKPaymentRefunded, events.PaymentRefunded{
			Kind:       string(ref.kind),
			EntityID:   ref.id.String(),
			PaymentRef: e.PaymentRef,
		})
	}
	return nil
}

type transitioned struct {
	kind    stripe.Kind
	id      uuid.UUID
	status  database.PaymentStatus
	changed bool
}

// transitionByPaymentRef looks for the reference among registrations first and
// hotel bookings second.
func (p *Processor) transitionByPaymentRef(ctx context.Context, paymentRef string, from []database.PaymentStatus, to database.PaymentStatus) (transitioned, bool, error) {
	params := database.TransitionParams{PaymentRef: util.Some(paymentRef), From: from, To: to}

	reg, changed, err := p.store.TransitionRegistration(ctx, params)
	switch {
	case err == nil:
		return transitioned{kind: stripe.KindRegistration, id: reg.ID, status: reg.PaymentStatus, changed: changed}, true, nil
	case !errors.Is(err, database.ErrRegistrationNotFound):
		return transitioned{}, false, fmt.Errorf("failed to transition registration to %s: %w", to, err)
	}

	booking, changed, err := p.store.TransitionHotelBooking(ctx, params)
	switch {
	case err == nil:
		return transitioned{kind: stripe.KindHotelBooking, id: booking.ID, status: booking.PaymentStatus, changed: changed}, true, nil
	case !errors.Is(err, database.ErrHotelBookingNotFound):
		return transitioned{}, false, fmt.Errorf("failed to transition hotel booking to %s: %w", to, err)
	}

	return transitioned{}, false, nil
}

func (p *Processor) transitionByID(ctx context.Context, kind stripe.Kind, id uuid.UUID, from []database.PaymentStatus, to database.PaymentStatus) (transitioned, bool, error) {
	params := database.TransitionParams{ID: util.Some(id), From: from, To: to}

	if kind == stripe.KindHotelBooking {
		booking, changed, err := p.store.TransitionHotelBooking(ctx, params)
		if err != nil {
			if errors.Is(err, database.ErrHotelBookingNotFound) {
				return transitioned{}, false, nil
			}
			return transitioned{}, false, fmt.Errorf("failed to transition hotel booking %s to %s: %w", id, to, err)
		}
		return transitioned{kind: kind, id: booking.ID, status: booking.PaymentStatus, changed: changed}, true, nil
	}

	reg, changed, err := p.store.TransitionRegistration(ctx, params)
	if err != nil {
		if errors.Is(err, database.ErrRegistrationNotFound) {
			return transitioned{}, false, nil
		}
		return transitioned{}, false, fmt.Errorf("failed to transition registration %s to %s: %w", id, to, err)
	}
	return transitioned{kind: stripe.KindRegistration, id: reg.ID, status: reg.PaymentStatus, changed: changed}, true, nil
}

func (p *Processor) publish(ctx context.Context, key string, v any) {
	if err := p.publisher.Publish(ctx, key, v); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish domain event", "routing_key", key, "error", err)
	}
}

func (p *Processor) notificationTour() notifications.Tour {
	return notifications.Tour{Name: p.tour.Name, StartDate: p.tour.StartDate, EndDate: p.tour.EndDate}
}

func eventKind(event stripe.Event) string {
	switch e := event.(type) {
	case stripe.CheckoutCompleted:
		return "checkout.session.completed"
	case stripe.CheckoutExpired:
		return "checkout.session.expired"
	case stripe.PaymentSucceeded:
		return "payment_intent.succeeded"
	case stripe.PaymentFailed:
		return "payment_intent.payment_failed"
	case stripe.ChargeRefunded:
		return "charge.refunded"
	case stripe.Unhandled:
		return e.Type
	default:
		return "unknown"
	}
}

func defaultSubject(emailType database.EmailType) string {
	if emailType == database.EmailTypeBookingConfirmation {
		return notifications.BookingConfirmationSubject
	}
	return notifications.RegistrationConfirmationSubject
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
