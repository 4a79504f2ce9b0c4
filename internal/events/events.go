package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys.
const (
	RKRegistrationPaid = "registration.paid"
	RKBookingPaid      = "booking.paid"
	RKPaymentFailed    = "payment.failed"
	RKPaymentRefunded  = "payment.refunded"
)

type RegistrationPaid struct {
	RegistrationID string `json:"registration_id"`
	Email          string `json:"email"`
	PaymentRef     string `json:"payment_ref"`
	AmountCents    int64  `json:"amount_cents"`
}

type BookingPaid struct {
	BookingID   string `json:"booking_id"`
	RoomTypeID  string `json:"room_type_id"`
	Email       string `json:"email"`
	PaymentRef  string `json:"payment_ref"`
	AmountCents int64  `json:"amount_cents"`
}

type PaymentFailed struct {
	Kind       string `json:"kind"`
	EntityID   string `json:"entity_id"`
	PaymentRef string `json:"payment_ref"`
	Reason     string `json:"reason,omitempty"`
}

type PaymentRefunded struct {
	Kind       string `json:"kind"`
	EntityID   string `json:"entity_id"`
	PaymentRef string `json:"payment_ref"`
}

type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
	Close() error
}

// NewPublisher connects to RabbitMQ, or returns a no-op publisher when url is
// empty.
func NewPublisher(logger *slog.Logger, url, exchange string) (Publisher, error) {
	if url == "" {
		logger.Info("AMQP not configured, domain events will not be published")
		return NopPublisher{}, nil
	}
	return NewAMQPPublisher(url, exchange)
}

var ErrPublisherClosed = errors.New("events: publisher closed")

// AMQPPublisher publishes to a topic exchange. A dropped connection or channel
// is redialed on the next Publish.
type AMQPPublisher struct {
	mu       sync.Mutex
	url      string
	exchange string
	conn     *amqp.Connection
	ch       *amqp.Channel
	closed   chan *amqp.Error
	shutdown bool
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect must be called with mu held once the publisher is shared.
func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("events: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("events: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("events: declare exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.ch = ch
	p.closed = ch.NotifyClose(make(chan *amqp.Error, 1))
	return nil
}

func (p *AMQPPublisher) alive() bool {
	if p.ch == nil || p.conn == nil || p.conn.IsClosed() {
		return false
	}
	select {
	case <-p.closed:
		return false
	default:
		return true
	}
}

func (p *AMQPPublisher) release() error {
	var err error
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		err = p.conn.Close()
	}
	p.ch = nil
	p.conn = nil
	p.closed = nil
	return err
}

func (p *AMQPPublisher) Publish(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", key, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return ErrPublisherClosed
	}
	if !p.alive() {
		_ = p.release()
		if err := p.connect(); err != nil {
			return err
		}
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}); err != nil {
		_ = p.release()
		return fmt.Errorf("events: publish %s: %w", key, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdown = true
	return p.release()
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                               { return nil }
