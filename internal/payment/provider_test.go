package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giving/internal/fees"
)

func TestResolveRefundAmount(t *testing.T) {
	p := &Payment{ID: "pay_1", Amount: 10000, Status: StatusSucceeded}
	prior := []Refund{
		{Amount: 2500, Status: RefundSucceeded},
		{Amount: 1000, Status: RefundPending},
		{Amount: 9000, Status: RefundFailed},
	}

	amount, err := resolveRefundAmount(p, prior, nil)
	require.NoError(t, err)
	require.Equal(t, int64(6500), amount, "pending refunds hold balance, failed ones release it")

	amount, err = resolveRefundAmount(p, prior, int64Ptr(6500))
	require.NoError(t, err)
	require.Equal(t, int64(6500), amount)

	_, err = resolveRefundAmount(p, prior, int64Ptr(6501))
	require.ErrorIs(t, err, ErrRefundExceedsPayment)

	_, err = resolveRefundAmount(p, nil, int64Ptr(0))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = resolveRefundAmount(p, []Refund{{Amount: 10000, Status: RefundSucceeded}}, nil)
	require.ErrorIs(t, err, ErrRefundExceedsPayment)
}

func TestRefundableStatus(t *testing.T) {
	for status, ok := range map[Status]bool{
		StatusSucceeded: true, StatusRefunded: true,
		StatusPending: false, StatusProcessing: false, StatusFailed: false, StatusCancelled: false,
	} {
		err := refundableStatus(&Payment{ID: "p", Status: status})
		require.Equal(t, ok, err == nil, status)
	}
}

func TestMarkCancelled(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := AddInterval(start, IntervalMonthly)
	now := start.Add(72 * time.Hour)
	before := &Subscription{Status: SubscriptionPaused, CurrentPeriodStart: start, CurrentPeriodEnd: end, NextPaymentDate: &end}

	sub := &Subscription{}
	markCancelled(sub, before, CancelOptions{Reason: "r"}, now)
	require.Equal(t, SubscriptionPaused, sub.Status)
	require.True(t, sub.CancelAtPeriodEnd)
	require.Equal(t, now, *sub.CancelledAt)
	require.Equal(t, end, sub.CurrentPeriodEnd)
	require.Nil(t, sub.NextPaymentDate)

	sub = &Subscription{}
	markCancelled(sub, before, CancelOptions{CancelImmediately: true}, now)
	require.Equal(t, SubscriptionCancelled, sub.Status)
	require.False(t, sub.CancelAtPeriodEnd)
}

func TestStatusTerminal(t *testing.T) {
	require.True(t, StatusRefunded.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.False(t, StatusProcessing.Terminal())
	require.False(t, StatusSucceeded.Terminal())
}

func TestApplyFeesFallsBackToDefaultSchedule(t *testing.T) {
	cardOnly := fees.Schedule{fees.MethodCard: {Percentage: 2.9, FixedCents: 30}}

	p := &Payment{Amount: 100000}
	applyFees(p, cardOnly, MethodTypeACH)
	require.Equal(t, int64(500), p.FeeAmount)
	require.Equal(t, int64(99500), p.NetAmount)

	p = &Payment{Amount: 10000}
	applyFees(p, fees.Schedule{}, MethodTypeCard)
	require.Equal(t, int64(500), p.FeeAmount)
	require.Equal(t, int64(9500), p.NetAmount)

	p = &Payment{Amount: 10000}
	applyFees(p, cardOnly, MethodTypeCard)
	require.Equal(t, int64(320), p.FeeAmount)
	require.Equal(t, int64(9680), p.NetAmount)
}
