package donation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giving/internal/payment"
)

const webhookSecret = "whsec_test"

// fakeProvider keeps vendor state in memory and delegates fee math and webhook
// verification to a real HelloPayments adapter.
type fakeProvider struct {
	payment.HelloPayments

	mu            sync.Mutex
	seq           int
	now           time.Time
	paymentStatus payment.Status
	customers     map[string]payment.Customer
	payments      map[string]*payment.Payment
	subs          map[string]*payment.Subscription
	refunds       map[string][]payment.Refund
	paymentReqs   []payment.CreatePaymentRequest
	subReqs       []payment.CreateSubscriptionRequest
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	hp, err := payment.NewHelloPayments(payment.Config{APIKey: "hp_test_key", WebhookSecret: webhookSecret, TestMode: true})
	require.NoError(t, err)
	return &fakeProvider{
		HelloPayments: hp,
		now:           time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC),
		paymentStatus: payment.StatusSucceeded,
		customers:     map[string]payment.Customer{},
		payments:      map[string]*payment.Payment{},
		subs:          map[string]*payment.Subscription{},
		refunds:       map[string][]payment.Refund{},
	}
}

func (f *fakeProvider) id(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *fakeProvider) seedPayment(p payment.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[p.ID] = &p
}

func (f *fakeProvider) lastPayment() payment.CreatePaymentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paymentReqs[len(f.paymentReqs)-1]
}

func (f *fakeProvider) paymentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paymentReqs)
}

func (f *fakeProvider) UpsertCustomer(_ context.Context, c payment.Customer) (*payment.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		c.ID = f.id("cus")
	}
	f.customers[c.ID] = c
	return &c, nil
}

func (f *fakeProvider) CreatePayment(_ context.Context, req payment.CreatePaymentRequest) (*payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentReqs = append(f.paymentReqs, req)
	p := &payment.Payment{
		ID:          f.id("pay"),
		Provider:    f.Name(),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Status:      f.paymentStatus,
		Customer:    &payment.Customer{ID: req.CustomerID},
		Description: req.Description,
		Metadata:    req.Metadata,
		CreatedAt:   f.now,
	}
	f.payments[p.ID] = p
	out := *p
	return &out, nil
}

func (f *fakeProvider) GetPayment(_ context.Context, id string) (*payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (f *fakeProvider) ListPayments(_ context.Context, req payment.ListPaymentsRequest) ([]payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []payment.Payment{}
	for _, p := range f.payments {
		if p.Customer != nil && p.Customer.ID == req.CustomerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProvider) CreateRefund(_ context.Context, req payment.CreateRefundRequest) (*payment.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[req.PaymentID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	remaining := p.Amount - p.AmountRefunded
	amount := remaining
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount > remaining {
		return nil, &payment.ValidationError{Field: "amount", Reason: "exceeds refundable amount", Err: payment.ErrRefundExceedsPayment}
	}
	ref := payment.Refund{ID: f.id("re"), PaymentID: p.ID, Amount: amount, Status: payment.RefundSucceeded, Reason: req.Reason, CreatedAt: f.now}
	p.AmountRefunded += amount
	f.refunds[p.ID] = append(f.refunds[p.ID], ref)
	return &ref, nil
}

func (f *fakeProvider) ListRefunds(_ context.Context, paymentID string) ([]payment.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]payment.Refund{}, f.refunds[paymentID]...), nil
}

func (f *fakeProvider) CreateSubscription(_ context.Context, req payment.CreateSubscriptionRequest) (*payment.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subReqs = append(f.subReqs, req)
	end := payment.AddInterval(f.now, req.Interval)
	sub := &payment.Subscription{
		ID:                 f.id("sub"),
		Provider:           f.Name(),
		Customer:           &payment.Customer{ID: req.CustomerID},
		Amount:             req.Amount,
		Currency:           req.Currency,
		Interval:           req.Interval,
		Status:             payment.SubscriptionActive,
		CurrentPeriodStart: f.now,
		CurrentPeriodEnd:   end,
		NextPaymentDate:    &end,
		Metadata:           req.Metadata,
		CreatedAt:          f.now,
	}
	f.subs[sub.ID] = sub
	out := *sub
	return &out, nil
}

func (f *fakeProvider) GetSubscription(_ context.Context, id string) (*payment.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return nil, nil
	}
	out := *sub
	return &out, nil
}

func (f *fakeProvider) CancelSubscription(_ context.Context, id string, opts payment.CancelOptions) (*payment.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	if !payment.CanTransition(sub.Status, payment.SubscriptionCancelled) {
		return nil, invalidTransition(sub.Status, payment.SubscriptionCancelled)
	}
	now := f.now
	sub.CancelledAt = &now
	sub.CancelReason = opts.Reason
	if opts.CancelImmediately {
		sub.Status = payment.SubscriptionCancelled
		sub.CancelAtPeriodEnd = false
	} else {
		sub.CancelAtPeriodEnd = true
	}
	out := *sub
	return &out, nil
}

func (f *fakeProvider) PauseSubscription(_ context.Context, id string) (*payment.Subscription, error) {
	return f.setStatus(id, payment.SubscriptionPaused)
}

func (f *fakeProvider) ResumeSubscription(_ context.Context, id string) (*payment.Subscription, error) {
	return f.setStatus(id, payment.SubscriptionActive)
}

func (f *fakeProvider) setStatus(id string, to payment.SubscriptionStatus) (*payment.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	if !payment.CanTransition(sub.Status, to) {
		return nil, invalidTransition(sub.Status, to)
	}
	sub.Status = to
	out := *sub
	return &out, nil
}

func invalidTransition(from, to payment.SubscriptionStatus) error {
	return &payment.ValidationError{Field: "status", Reason: fmt.Sprintf("%s -> %s", from, to), Err: payment.ErrInvalidTransition}
}

type scheduledCancel struct {
	provider string
	id       string
	at       time.Time
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduledCancel
}

func (s *fakeScheduler) ScheduleCancel(_ context.Context, provider, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduledCancel{provider: provider, id: id, at: at})
	return nil
}
