package database

import (
	"context"
	"fmt"
	"time"
)

func (db *Database) HasWebhookEvent(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("database: failed to check webhook event (id=%s): %w", id, err)
	}
	return exists, nil
}

// RecordWebhookEvent marks a provider event as processed. Recording the same
// id twice is a no-op.
func (db *Database) RecordWebhookEvent(ctx context.Context, id, eventType string) error {
	if _, err := db.Pool.Exec(ctx, `INSERT INTO webhook_events (id, type, processed_at) VALUES ($1, $2, now()) ON CONFLICT (id) DO NOTHING`,
		id, eventType); err != nil {
		return fmt.Errorf("database: failed to record webhook event (id=%s): %w", id, err)
	}
	return nil
}

func (db *Database) PruneWebhookEvents(ctx context.Context, before time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM webhook_events WHERE processed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("database: failed to prune webhook events: %w", err)
	}
	return tag.RowsAffected(), nil
}
