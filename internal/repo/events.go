package repo

import (
	"context"
	"fmt"
	"time"
)

// WebhookEventRepo records processed webhook events in processed_webhook_events.
// Unlike the Redis log, entries survive until Prune removes them.
type WebhookEventRepo struct {
	DB DB
}

// Acquire inserts the event and reports whether it was not seen before.
func (r WebhookEventRepo) Acquire(ctx context.Context, provider, eventID string) (bool, error) {
	tag, err := r.DB.Exec(ctx, `INSERT INTO processed_webhook_events (provider, event_id)
		VALUES ($1, $2) ON CONFLICT (provider, event_id) DO NOTHING`, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release removes the event so a redelivery is processed again.
func (r WebhookEventRepo) Release(ctx context.Context, provider, eventID string) error {
	if _, err := r.DB.Exec(ctx, `DELETE FROM processed_webhook_events WHERE provider = $1 AND event_id = $2`, provider, eventID); err != nil {
		return fmt.Errorf("release webhook event: %w", err)
	}
	return nil
}

// Prune deletes events processed before cutoff and returns how many were removed.
func (r WebhookEventRepo) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, `DELETE FROM processed_webhook_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune webhook events: %w", err)
	}
	return tag.RowsAffected(), nil
}
