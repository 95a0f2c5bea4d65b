package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TypePruneWebhookEvents removes processed-webhook records older than the replay window.
const TypePruneWebhookEvents = "webhook_events:prune"

// NewPruneWebhookEventsTask builds the periodic prune task.
func NewPruneWebhookEventsTask() *asynq.Task {
	return asynq.NewTask(TypePruneWebhookEvents, nil)
}

// Pruner is implemented by repo.WebhookEventRepo.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneWebhookEventsHandler deletes events processed more than Retention ago.
type PruneWebhookEventsHandler struct {
	Pruner    Pruner
	Retention time.Duration
	Logger    zerolog.Logger
	Now       func() time.Time
}

// ProcessTask implements asynq.Handler.
func (h PruneWebhookEventsHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	retention := h.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	n, err := h.Pruner.Prune(ctx, now().Add(-retention))
	if err != nil {
		return err
	}
	h.Logger.Info().Int64("deleted", n).Dur("retention", retention).Msg("pruned webhook events")
	return nil
}
