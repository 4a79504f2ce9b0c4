package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Kind identifies which entity a checkout session pays for.
type Kind string

const (
	KindRegistration Kind = "registration"
	KindHotelBooking Kind = "hotel_booking"
)

const (
	metadataKind           = "kind"
	metadataRegistrationID = "registrationId"
	metadataBookingID      = "bookingId"
	metadataEmail          = "email"
)

var ErrCheckoutSession = errors.New("stripe: failed to create checkout session")

type Client struct {
	logger        *slog.Logger
	api           *client.API
	baseURL       string
	webhookSecret string
}

func NewClient(logger *slog.Logger, secretKey, webhookSecret, baseURL string) *Client {
	return &Client{
		logger:        logger,
		api:           client.New(secretKey, nil),
		baseURL:       strings.TrimRight(baseURL, "/"),
		webhookSecret: webhookSecret,
	}
}

type CheckoutSessionParams struct {
	Kind        Kind
	EntityID    string
	Email       string
	ProductName string
	Description string
	AmountCents int64
}

type CheckoutSession struct {
	ID  string
	URL string
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (CheckoutSession, error) {
	successPath, cancelPath := "/registration/success", "/registration/cancelled"
	idKey := metadataRegistrationID
	if params.Kind == KindHotelBooking {
		successPath, cancelPath = "/booking/success", "/booking/cancelled"
		idKey = metadataBookingID
	}

	metadata := map[string]string{
		metadataKind:  string(params.Kind),
		idKey:         params.EntityID,
		metadataEmail: params.Email,
	}

	sessionParams := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(c.baseURL + successPath + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripe.String(c.baseURL + cancelPath),
		CustomerEmail:      stripe.String(params.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(string(stripe.CurrencyUSD)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(params.ProductName),
						Description: stripe.String(params.Description),
					},
					UnitAmount: stripe.Int64(params.AmountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	sessionParams.Context = ctx
	for k, v := range metadata {
		sessionParams.AddMetadata(k, v)
	}

	session, err := c.api.CheckoutSessions.New(sessionParams)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w (kind=%s, id=%s): %w", ErrCheckoutSession, params.Kind, params.EntityID, err)
	}

	return CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// ExpireCheckoutSession closes an open session so it can no longer be paid.
func (c *Client) ExpireCheckoutSession(ctx context.Context, id string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := c.api.CheckoutSessions.Expire(id, params); err != nil {
		return fmt.Errorf("stripe: failed to expire checkout session %s: %w", id, err)
	}
	return nil
}
