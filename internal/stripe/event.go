package stripe

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	ErrInvalidSignature = errors.New("stripe: invalid webhook signature")
	ErrMalformedEvent   = errors.New("stripe: malformed webhook event")
)

// Event is one of CheckoutCompleted, CheckoutExpired, PaymentSucceeded,
// PaymentFailed, ChargeRefunded or Unhandled.
type Event interface {
	ID() string
	event()
}

type CheckoutCompleted struct {
	EventID          string
	SessionID        string
	Kind             Kind
	EntityID         string
	Email            string
	PaymentRef       string
	AmountTotalCents int64
}

type CheckoutExpired struct {
	EventID   string
	SessionID string
}

type PaymentSucceeded struct {
	EventID    string
	PaymentRef string
}

type PaymentFailed struct {
	EventID    string
	PaymentRef string
	Kind       Kind
	EntityID   string
	Reason     string
}

type ChargeRefunded struct {
	EventID    string
	PaymentRef string
}

type Unhandled struct {
	EventID string
	Type    string
}

func (e CheckoutCompleted) ID() string { return e.EventID }
func (e CheckoutExpired) ID() string   { return e.EventID }
func (e PaymentSucceeded) ID() string  { return e.EventID }
func (e PaymentFailed) ID() string     { return e.EventID }
func (e ChargeRefunded) ID() string    { return e.EventID }
func (e Unhandled) ID() string         { return e.EventID }

func (CheckoutCompleted) event() {}
func (CheckoutExpired) event()   {}
func (PaymentSucceeded) event()  {}
func (PaymentFailed) event()     {}
func (ChargeRefunded) event()    {}
func (Unhandled) event()         {}

// ParseEvent verifies the signature header against the raw payload and only
// then decodes the event.
func (c *Client) ParseEvent(payload []byte, signatureHeader string) (Event, error) {
	return parseEvent(payload, signatureHeader, c.webhookSecret)
}

func parseEvent(payload []byte, signatureHeader, secret string) (Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	switch string(evt.Type) {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w (id=%s): %w", ErrMalformedEvent, evt.ID, err)
		}
		kind, entityID := entityFromMetadata(session.Metadata)
		email := session.CustomerEmail
		if email == "" && session.CustomerDetails != nil {
			email = session.CustomerDetails.Email
		}
		if email == "" {
			email = session.Metadata[metadataEmail]
		}
		var paymentRef string
		if session.PaymentIntent != nil {
			paymentRef = session.PaymentIntent.ID
		}
		return CheckoutCompleted{
			EventID:          evt.ID,
			SessionID:        session.ID,
			Kind:             kind,
			EntityID:         entityID,
			Email:            email,
			PaymentRef:       paymentRef,
			AmountTotalCents: session.AmountTotal,
		}, nil

	case "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w (id=%s): %w", ErrMalformedEvent, evt.ID, err)
		}
		return CheckoutExpired{EventID: evt.ID, SessionID: session.ID}, nil

	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("%w (id=%s): %w", ErrMalformedEvent, evt.ID, err)
		}
		return PaymentSucceeded{EventID: evt.ID, PaymentRef: intent.ID}, nil

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("%w (id=%s): %w", ErrMalformedEvent, evt.ID, err)
		}
		kind, entityID := entityFromMetadata(intent.Metadata)
		var reason string
		if intent.LastPaymentError != nil {
			reason = intent.LastPaymentError.Msg
		}
		return PaymentFailed{
			EventID:    evt.ID,
			PaymentRef: intent.ID,
			Kind:       kind,
			EntityID:   entityID,
			Reason:     reason,
		}, nil

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &charge); err != nil {
			return nil, fmt.Errorf("%w (id=%s): %w", ErrMalformedEvent, evt.ID, err)
		}
		var paymentRef string
		if charge.PaymentIntent != nil {
			paymentRef = charge.PaymentIntent.ID
		}
		return ChargeRefunded{EventID: evt.ID, PaymentRef: paymentRef}, nil

	default:
		return Unhandled{EventID: evt.ID, Type: string(evt.Type)}, nil
	}
}

// entityFromMetadata reads the entity id set at session creation.
func entityFromMetadata(metadata map[string]string) (Kind, string) {
	if id := metadata[metadataRegistrationID]; id != "" {
		return KindRegistration, id
	}
	if id := metadata[metadataBookingID]; id != "" {
		return KindHotelBooking, id
	}
	return Kind(metadata[metadataKind]), ""
}
