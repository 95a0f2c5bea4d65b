package payment

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giving/internal/obs"
)

// stubProvider implements the methods exercised below; the rest panic.
type stubProvider struct {
	Provider
	payment *Payment
	err     error
	refunds int
}

func (s *stubProvider) Name() string     { return "stub" }
func (s *stubProvider) IsTestMode() bool { return true }

func (s *stubProvider) GetPayment(context.Context, string) (*Payment, error) {
	return s.payment, s.err
}

func (s *stubProvider) CreateRefund(_ context.Context, req CreateRefundRequest) (*Refund, error) {
	s.refunds++
	return &Refund{ID: "re_1", PaymentID: req.PaymentID}, s.err
}

func TestInstrumentRecordsOutcomes(t *testing.T) {
	obs.MustRegisterDomainMetrics("giving", prometheus.NewRegistry())
	stub := &stubProvider{payment: &Payment{ID: "pay_1"}}
	p := Instrument(stub)
	require.Equal(t, p, Instrument(p), "wrapping twice is a no-op")
	require.Same(t, stub, Instrument(p).(instrumented).next.(*stubProvider))

	counter := func(op, result string) float64 {
		return testutil.ToFloat64(obs.ProviderRequestsTotal.WithLabelValues("stub", op, result))
	}
	before := counter("GetPayment", "success")
	got, err := p.GetPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	require.Equal(t, "pay_1", got.ID)
	require.Equal(t, before+1, counter("GetPayment", "success"))

	stub.err = fmt.Errorf("wrap: %w", ErrNotFound)
	before = counter("GetPayment", "not_found")
	_, err = p.GetPayment(context.Background(), "pay_2")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, before+1, counter("GetPayment", "not_found"))

	stub.err = &VendorError{Vendor: "stub", StatusCode: 502, Message: "bad gateway"}
	before = counter("CreateRefund", "vendor_error")
	_, err = p.CreateRefund(context.Background(), CreateRefundRequest{PaymentID: "pay_1"})
	require.Error(t, err)
	require.Equal(t, before+1, counter("CreateRefund", "vendor_error"))
	require.Equal(t, "stub", p.Name())
}

func TestOutcome(t *testing.T) {
	require.Equal(t, "not_initialized", outcome(ErrNotInitialized))
	require.Equal(t, "ignored", outcome(fmt.Errorf("x: %w", ErrEventIgnored)))
	require.Equal(t, "invalid_signature", outcome(&SignatureVerificationError{Provider: "p", Reason: "r"}))
	require.Equal(t, "invalid", outcome(invalid("amount", "bad")))
	require.Equal(t, "invalid", outcome(&ValidationError{Err: ErrRefundExceedsPayment}))
	require.Equal(t, "timeout", outcome(context.DeadlineExceeded))
	require.Equal(t, "error", outcome(fmt.Errorf("boom")))
}
