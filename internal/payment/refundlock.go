package payment

import (
	"context"
	"time"
)

// Locker serialises work under a key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// WithRefundLock serialises CreateRefund per payment so concurrent requests cannot
// together exceed the payment amount. The locked section runs under a ttl deadline
// so it never outlives the lock.
func WithRefundLock(p Provider, l Locker, ttl time.Duration) Provider {
	if l == nil {
		return p
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return refundLocked{Provider: p, locker: l, ttl: ttl}
}

type refundLocked struct {
	Provider
	locker Locker
	ttl    time.Duration
}

// RefundLockKey is the lock key guarding refunds of paymentID.
func RefundLockKey(provider, paymentID string) string {
	return "refund:" + provider + ":" + paymentID
}

func (r refundLocked) CreateRefund(ctx context.Context, req CreateRefundRequest) (*Refund, error) {
	var out *Refund
	err := r.locker.WithLock(ctx, RefundLockKey(r.Name(), req.PaymentID), r.ttl, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.ttl)
		defer cancel()
		var err error
		out, err = r.Provider.CreateRefund(ctx, req)
		return err
	})
	return out, err
}
