package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the counters recorded by the intake, webhook and mail paths.
type Metrics struct {
	registrations metric.Int64Counter
	bookings      metric.Int64Counter
	webhookEvents metric.Int64Counter
	emails        metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter(instrumentationName))
}

// NopMetrics returns instruments that record nothing.
func NopMetrics() *Metrics {
	m, _ := newMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	return m
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.registrations, err = meter.Int64Counter("holylandtour_registrations_total",
		metric.WithDescription("Registration submissions by outcome"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create registrations counter: %w", err)
	}

	if m.bookings, err = meter.Int64Counter("holylandtour_hotel_bookings_total",
		metric.WithDescription("Hotel booking submissions by outcome"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create bookings counter: %w", err)
	}

	if m.webhookEvents, err = meter.Int64Counter("holylandtour_webhook_events_total",
		metric.WithDescription("Payment webhook events by kind and outcome"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create webhook events counter: %w", err)
	}

	if m.emails, err = meter.Int64Counter("holylandtour_emails_total",
		metric.WithDescription("Confirmation emails by type and status"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create emails counter: %w", err)
	}

	return &m, nil
}

func (m *Metrics) RecordRegistration(ctx context.Context, outcome string) {
	m.registrations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordBooking(ctx context.Context, roomType, outcome string) {
	m.bookings.Add(ctx, 1, metric.WithAttributes(
		attribute.String("room_type", roomType),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordWebhookEvent(ctx context.Context, kind, outcome string) {
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordEmail(ctx context.Context, emailType, status string) {
	m.emails.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", emailType),
		attribute.String("status", status),
	))
}
