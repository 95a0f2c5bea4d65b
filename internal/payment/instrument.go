package payment

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-giving/internal/fees"
	"github.com/noah-isme/backend-giving/internal/obs"
)

var tracer = otel.Tracer("payment.Provider")

// Instrument wraps p so every operation opens a span and records request metrics.
func Instrument(p Provider) Provider {
	if _, ok := p.(instrumented); ok {
		return p
	}
	return instrumented{next: p}
}

type instrumented struct {
	next Provider
}

func (i instrumented) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	name := i.next.Name()
	ctx, span := tracer.Start(ctx, "PaymentProvider."+op, trace.WithAttributes(
		append(attrs, attribute.String("payment.provider", name), attribute.Bool("payment.test_mode", i.next.IsTestMode()))...,
	))
	start := time.Now()
	return ctx, func(err error) {
		result := "success"
		if err != nil {
			result = outcome(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("payment.result", result))
		span.End()
		obs.Inc(obs.ProviderRequestsTotal, name, op, result)
		if obs.ProviderRequestDuration != nil {
			obs.ProviderRequestDuration.WithLabelValues(name, op).Observe(time.Since(start).Seconds())
		}
	}
}

func outcome(err error) string {
	var vErr *VendorError
	var valErr *ValidationError
	switch {
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrEventIgnored):
		return "ignored"
	case IsSignatureError(err):
		return "invalid_signature"
	case errors.As(err, &valErr):
		return "invalid"
	case errors.As(err, &vErr):
		return "vendor_error"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}

func (i instrumented) Name() string                             { return i.next.Name() }
func (i instrumented) IsTestMode() bool                         { return i.next.IsTestMode() }
func (i instrumented) CalculateFee(amount int64) fees.Breakdown { return i.next.CalculateFee(amount) }
func (i instrumented) Schedule() fees.Schedule                  { return i.next.Schedule() }

func (i instrumented) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	ctx, done := i.observe(ctx, "CreatePayment", attribute.Int64("payment.amount", req.Amount), attribute.String("payment.currency", req.Currency))
	p, err := i.next.CreatePayment(ctx, req)
	done(err)
	return p, err
}

func (i instrumented) GetPayment(ctx context.Context, id string) (*Payment, error) {
	ctx, done := i.observe(ctx, "GetPayment", attribute.String("payment.id", id))
	p, err := i.next.GetPayment(ctx, id)
	done(err)
	return p, err
}

func (i instrumented) ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, error) {
	ctx, done := i.observe(ctx, "ListPayments")
	p, err := i.next.ListPayments(ctx, req)
	done(err)
	return p, err
}

func (i instrumented) UpsertCustomer(ctx context.Context, c Customer) (*Customer, error) {
	ctx, done := i.observe(ctx, "UpsertCustomer")
	out, err := i.next.UpsertCustomer(ctx, c)
	done(err)
	return out, err
}

func (i instrumented) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	ctx, done := i.observe(ctx, "GetCustomer")
	out, err := i.next.GetCustomer(ctx, id)
	done(err)
	return out, err
}

func (i instrumented) DeleteCustomer(ctx context.Context, id string) error {
	ctx, done := i.observe(ctx, "DeleteCustomer")
	err := i.next.DeleteCustomer(ctx, id)
	done(err)
	return err
}

func (i instrumented) CreatePaymentMethod(ctx context.Context, req CreatePaymentMethodRequest) (*PaymentMethod, error) {
	ctx, done := i.observe(ctx, "CreatePaymentMethod")
	out, err := i.next.CreatePaymentMethod(ctx, req)
	done(err)
	return out, err
}

func (i instrumented) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	ctx, done := i.observe(ctx, "ListPaymentMethods")
	out, err := i.next.ListPaymentMethods(ctx, customerID)
	done(err)
	return out, err
}

func (i instrumented) DeletePaymentMethod(ctx context.Context, id string) error {
	ctx, done := i.observe(ctx, "DeletePaymentMethod")
	err := i.next.DeletePaymentMethod(ctx, id)
	done(err)
	return err
}

func (i instrumented) SetDefaultPaymentMethod(ctx context.Context, customerID, methodID string) error {
	ctx, done := i.observe(ctx, "SetDefaultPaymentMethod")
	err := i.next.SetDefaultPaymentMethod(ctx, customerID, methodID)
	done(err)
	return err
}

func (i instrumented) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error) {
	ctx, done := i.observe(ctx, "CreateSubscription", attribute.String("subscription.interval", string(req.Interval)))
	out, err := i.next.CreateSubscription(ctx, req)
	done(err)
	return out, err
}

func (i instrumented) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	ctx, done := i.observe(ctx, "GetSubscription", attribute.String("subscription.id", id))
	out, err := i.next.GetSubscription(ctx, id)
	done(err)
	return out, err
}

func (i instrumented) CancelSubscription(ctx context.Context, id string, opts CancelOptions) (*Subscription, error) {
	ctx, done := i.observe(ctx, "CancelSubscription", attribute.String("subscription.id", id), attribute.Bool("subscription.cancel_immediately", opts.CancelImmediately))
	out, err := i.next.CancelSubscription(ctx, id, opts)
	done(err)
	return out, err
}

func (i instrumented) PauseSubscription(ctx context.Context, id string) (*Subscription, error) {
	ctx, done := i.observe(ctx, "PauseSubscription", attribute.String("subscription.id", id))
	out, err := i.next.PauseSubscription(ctx, id)
	done(err)
	return out, err
}

func (i instrumented) ResumeSubscription(ctx context.Context, id string) (*Subscription, error) {
	ctx, done := i.observe(ctx, "ResumeSubscription", attribute.String("subscription.id", id))
	out, err := i.next.ResumeSubscription(ctx, id)
	done(err)
	return out, err
}

func (i instrumented) CreateRefund(ctx context.Context, req CreateRefundRequest) (*Refund, error) {
	ctx, done := i.observe(ctx, "CreateRefund", attribute.String("payment.id", req.PaymentID))
	out, err := i.next.CreateRefund(ctx, req)
	done(err)
	return out, err
}

func (i instrumented) ListRefunds(ctx context.Context, paymentID string) ([]Refund, error) {
	ctx, done := i.observe(ctx, "ListRefunds", attribute.String("payment.id", paymentID))
	out, err := i.next.ListRefunds(ctx, paymentID)
	done(err)
	return out, err
}

func (i instrumented) ParseWebhookEvent(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	ctx, done := i.observe(ctx, "ParseWebhookEvent", attribute.Int("webhook.bytes", len(payload)))
	out, err := i.next.ParseWebhookEvent(ctx, payload, signature)
	done(err)
	return out, err
}
