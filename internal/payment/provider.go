package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/backend-giving/internal/fees"
)

// Provider abstracts the operations required from an upstream payment processor.
// Lookups return nil without an error when the record does not exist.
type Provider interface {
	Name() string
	IsTestMode() bool
	// CalculateFee applies the adapter's card rate to amount.
	CalculateFee(amount int64) fees.Breakdown
	// Schedule returns the adapter's fee schedule.
	Schedule() fees.Schedule

	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
	ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, error)

	UpsertCustomer(ctx context.Context, c Customer) (*Customer, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	CreatePaymentMethod(ctx context.Context, req CreatePaymentMethodRequest) (*PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)
	DeletePaymentMethod(ctx context.Context, id string) error
	SetDefaultPaymentMethod(ctx context.Context, customerID, methodID string) error

	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	CancelSubscription(ctx context.Context, id string, opts CancelOptions) (*Subscription, error)
	PauseSubscription(ctx context.Context, id string) (*Subscription, error)
	ResumeSubscription(ctx context.Context, id string) (*Subscription, error)

	CreateRefund(ctx context.Context, req CreateRefundRequest) (*Refund, error)
	ListRefunds(ctx context.Context, paymentID string) ([]Refund, error)

	// ParseWebhookEvent verifies signature over payload and returns the normalised event.
	ParseWebhookEvent(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

// refundable returns how much of amount is still refundable given prior refunds.
func refundable(amount int64, prior []Refund) int64 {
	remaining := amount
	for _, r := range prior {
		if r.Status == RefundFailed {
			continue
		}
		remaining -= r.Amount
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// resolveRefundAmount applies the "omitted means remaining balance" rule and rejects
// requests above the refundable balance.
func resolveRefundAmount(p *Payment, prior []Refund, requested *int64) (int64, error) {
	remaining := refundable(p.Amount, prior)
	if requested == nil {
		if remaining == 0 {
			return 0, &ValidationError{Field: "amount", Reason: "payment already fully refunded", Err: ErrRefundExceedsPayment}
		}
		return remaining, nil
	}
	if *requested <= 0 {
		return 0, invalid("amount", "must be positive")
	}
	if *requested > remaining {
		return 0, &ValidationError{
			Field:  "amount",
			Reason: "refund exceeds remaining balance",
			Err:    ErrRefundExceedsPayment,
		}
	}
	return *requested, nil
}

func validatePaymentRequest(req CreatePaymentRequest) error {
	if req.Amount <= 0 {
		return invalid("amount", "must be positive")
	}
	if req.Currency == "" {
		return invalid("currency", "is required")
	}
	if req.CustomerID == "" {
		return invalid("customerId", "is required")
	}
	if req.PaymentMethodID == "" {
		return invalid("paymentMethodId", "is required")
	}
	return nil
}

func validateSubscriptionRequest(req CreateSubscriptionRequest) error {
	if req.Amount <= 0 {
		return invalid("amount", "must be positive")
	}
	if req.Currency == "" {
		return invalid("currency", "is required")
	}
	if req.CustomerID == "" {
		return invalid("customerId", "is required")
	}
	if req.PaymentMethodID == "" {
		return invalid("paymentMethodId", "is required")
	}
	if _, err := ParseInterval(string(req.Interval)); err != nil {
		return err
	}
	return nil
}

// applyFees fills FeeAmount and NetAmount from schedule. A method the adapter
// schedule does not price falls back to the platform default schedule.
func applyFees(p *Payment, schedule fees.Schedule, method MethodType) {
	b, err := fees.CalculateFee(p.Amount, method.FeeMethod(), schedule)
	if err != nil {
		b, err = fees.CalculateFee(p.Amount, method.FeeMethod(), fees.DefaultSchedule())
	}
	if err != nil {
		p.FeeAmount, p.NetAmount = 0, p.Amount
		return
	}
	p.FeeAmount = b.FeeAmount
	p.NetAmount = b.NetAmount
}

func refundableStatus(p *Payment) error {
	switch p.Status {
	case StatusSucceeded, StatusRefunded:
		return nil
	}
	return invalid("paymentId", fmt.Sprintf("payment %s is %s and cannot be refunded", p.ID, p.Status))
}

// markCancelled records a cancellation request. An immediate cancel ends the
// subscription now; otherwise it keeps its status until the period ends.
func markCancelled(sub, before *Subscription, opts CancelOptions, now time.Time) {
	sub.CancelledAt = &now
	sub.CancelReason = opts.Reason
	keepPeriod(sub, before)
	if opts.CancelImmediately {
		sub.Status = SubscriptionCancelled
		sub.CancelAtPeriodEnd = false
		sub.NextPaymentDate = nil
		return
	}
	sub.Status = before.Status
	sub.CancelAtPeriodEnd = true
	sub.NextPaymentDate = nil
}

// keepPeriod restores the period boundaries of before onto sub.
func keepPeriod(sub, before *Subscription) {
	if before == nil {
		return
	}
	sub.CurrentPeriodStart = before.CurrentPeriodStart
	sub.CurrentPeriodEnd = before.CurrentPeriodEnd
	if sub.NextPaymentDate == nil {
		sub.NextPaymentDate = before.NextPaymentDate
	}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, errVendorNotFound) {
		return nil
	}
	return err
}
