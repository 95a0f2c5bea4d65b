package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TypeFinalizeCancel ends subscriptions whose cancel-at-period-end date has passed.
const TypeFinalizeCancel = "subscription:finalize_cancel"

// FinalizeCancelPayload identifies the subscription to end.
type FinalizeCancelPayload struct {
	Provider       string `json:"provider"`
	SubscriptionID string `json:"subscription_id"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// FinalizeCancelTaskID is the deterministic task id for a subscription, so
// repeated cancel requests schedule a single task.
func FinalizeCancelTaskID(provider, subscriptionID string) string {
	return "finalize-cancel:" + provider + ":" + subscriptionID
}

// Scheduler enqueues finalize-cancel tasks.
type Scheduler struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
}

// ScheduleCancel enqueues the task to run at at. Scheduling an already
// scheduled subscription is not an error.
func (s Scheduler) ScheduleCancel(ctx context.Context, provider, subscriptionID string, at time.Time) error {
	if s.Client == nil {
		return errors.New("jobs: task client not configured")
	}
	payload, err := json.Marshal(FinalizeCancelPayload{Provider: provider, SubscriptionID: subscriptionID})
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.ProcessAt(at),
		asynq.TaskID(FinalizeCancelTaskID(provider, subscriptionID)),
		asynq.Retention(24 * time.Hour),
	}
	if s.Queue != "" {
		opts = append(opts, asynq.Queue(s.Queue))
	}
	if s.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(s.MaxRetry))
	}
	_, err = s.Client.EnqueueContext(ctx, asynq.NewTask(TypeFinalizeCancel, payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", TypeFinalizeCancel, subscriptionID, err)
	}
	return nil
}

// Finalizer ends due subscriptions; implemented by donation.Service.
type Finalizer interface {
	ProviderName() string
	FinalizeCancellation(ctx context.Context, subscriptionID string) (bool, error)
}

// FinalizeCancelHandler processes TypeFinalizeCancel tasks.
type FinalizeCancelHandler struct {
	Finalizer Finalizer
	Logger    zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h FinalizeCancelHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p FinalizeCancelPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TypeFinalizeCancel, err, asynq.SkipRetry)
	}
	if p.SubscriptionID == "" {
		return fmt.Errorf("%s payload without subscription id: %w", TypeFinalizeCancel, asynq.SkipRetry)
	}
	if !strings.EqualFold(p.Provider, h.Finalizer.ProviderName()) {
		// the deployment switched processors; the old vendor ends it on its own
		h.Logger.Warn().Str("provider", p.Provider).Str("subscription_id", p.SubscriptionID).Msg("finalize cancel for inactive provider")
		return nil
	}
	done, err := h.Finalizer.FinalizeCancellation(ctx, p.SubscriptionID)
	if err != nil {
		return err
	}
	h.Logger.Info().Str("subscription_id", p.SubscriptionID).Bool("cancelled", done).Msg("finalize cancel processed")
	return nil
}

// NewServeMux routes every task type handled by the worker. A nil prune
// handler leaves TypePruneWebhookEvents unrouted.
func NewServeMux(finalize FinalizeCancelHandler, prune *PruneWebhookEventsHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeFinalizeCancel, finalize)
	if prune != nil {
		mux.Handle(TypePruneWebhookEvents, *prune)
	}
	return mux
}

// RetryDelay backs off an early finalize attempt by an hour and defers to
// asynq's exponential delay for everything else.
func RetryDelay(notDue error) asynq.RetryDelayFunc {
	return func(n int, err error, t *asynq.Task) time.Duration {
		if notDue != nil && errors.Is(err, notDue) {
			return time.Hour
		}
		return asynq.DefaultRetryDelayFunc(n, err, t)
	}
}
