package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type PendingStore interface {
	AbandonStaleRegistrations(ctx context.Context, cutoff time.Time) (int64, error)
	AbandonStaleHotelBookings(ctx context.Context, cutoff time.Time) (int64, error)
}

// AbandonStalePendingTask marks registrations and bookings that have been
// pending for longer than ttl as abandoned. Their checkout sessions have
// expired by then, and the email becomes free to register again.
func AbandonStalePendingTask(logger *slog.Logger, store PendingStore, ttl time.Duration, now func() time.Time) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cutoff := now().Add(-ttl)

		registrations, regErr := store.AbandonStaleRegistrations(ctx, cutoff)
		bookings, bookingErr := store.AbandonStaleHotelBookings(ctx, cutoff)
		if err := errors.Join(regErr, bookingErr); err != nil {
			return fmt.Errorf("daemon: failed to abandon stale checkouts: %w", err)
		}

		if registrations > 0 || bookings > 0 {
			logger.InfoContext(ctx, "Abandoned stale checkouts",
				"registrations", registrations,
				"hotel_bookings", bookings,
				"cutoff", cutoff)
		}
		return nil
	}
}

type WebhookEventStore interface {
	PruneWebhookEvents(ctx context.Context, before time.Time) (int64, error)
}

func PruneWebhookEventsTask(logger *slog.Logger, store WebhookEventStore, retention time.Duration, now func() time.Time) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		deleted, err := store.PruneWebhookEvents(ctx, now().Add(-retention))
		if err != nil {
			return fmt.Errorf("daemon: failed to prune webhook events: %w", err)
		}
		if deleted > 0 {
			logger.InfoContext(ctx, "Pruned processed webhook events", "deleted", deleted)
		}
		return nil
	}
}
