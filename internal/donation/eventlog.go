package donation

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// EventLog remembers processed webhook event ids so redeliveries are applied once.
type EventLog interface {
	// Acquire claims the event and reports whether this is its first delivery.
	Acquire(ctx context.Context, provider, eventID string) (bool, error)
	// Release forgets the event so a later redelivery is processed again.
	Release(ctx context.Context, provider, eventID string) error
}

// RedisEventLog implements EventLog using Redis SETNX semantics. Entries expire
// after TTL, which bounds how late a redelivery may arrive and still be caught.
type RedisEventLog struct {
	Client redis.UniversalClient
	TTL    time.Duration
}

func eventKey(provider, eventID string) string {
	return "webhook:event:" + provider + ":" + eventID
}

func (r RedisEventLog) Acquire(ctx context.Context, provider, eventID string) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return r.Client.SetNX(ctx, eventKey(provider, eventID), "1", ttl).Result()
}

func (r RedisEventLog) Release(ctx context.Context, provider, eventID string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, eventKey(provider, eventID)).Err()
}
