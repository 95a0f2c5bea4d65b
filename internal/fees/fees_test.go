package fees_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giving/internal/fees"
)

func TestCalculateFeeCard(t *testing.T) {
	b, err := fees.CalculateFee(10_000, fees.MethodCard, fees.DefaultSchedule())
	require.NoError(t, err)
	require.Equal(t, int64(500), b.FeeAmount)
	require.Equal(t, int64(9_500), b.NetAmount)
	require.Equal(t, int64(10_527), b.TotalWithCoverage)
	require.Equal(t, int64(527), b.CoverageFeeAmount)
	require.Equal(t, 5.0, b.FeePercentage)
	require.False(t, b.Capped)
}

func TestCalculateFeeSmallestAmountRoundsUp(t *testing.T) {
	b, err := fees.CalculateFee(1, fees.MethodCard, fees.DefaultSchedule())
	require.NoError(t, err)
	require.Equal(t, int64(1), b.FeeAmount)
	require.Equal(t, int64(0), b.NetAmount)
}

func TestCalculateFeeACHCap(t *testing.T) {
	schedule := fees.DefaultSchedule()

	b, err := fees.CalculateFee(100_000, fees.MethodACH, schedule)
	require.NoError(t, err)
	require.Equal(t, int64(500), b.FeeAmount)
	require.Equal(t, int64(99_500), b.NetAmount)
	require.True(t, b.Capped)

	for _, amount := range []int64{50_000, 50_001, 75_000, 1_000_000} {
		b, err := fees.CalculateFee(amount, fees.MethodACH, schedule)
		require.NoError(t, err)
		require.Equal(t, int64(500), b.FeeAmount, "amount %d", amount)
	}

	b, err = fees.CalculateFee(20_050, fees.MethodACH, schedule)
	require.NoError(t, err)
	require.Equal(t, int64(201), b.FeeAmount)
}

func TestCalculateFeeProperties(t *testing.T) {
	schedule := fees.DefaultSchedule()
	for amount := int64(1); amount <= 20_000; amount += 37 {
		card, err := fees.CalculateFee(amount, fees.MethodCard, schedule)
		require.NoError(t, err)
		require.Equal(t, (amount*5+99)/100, card.FeeAmount)
		require.Equal(t, amount-card.FeeAmount, card.NetAmount)

		ach, err := fees.CalculateFee(amount, fees.MethodACH, schedule)
		require.NoError(t, err)
		require.Equal(t, min((amount+99)/100, 500), ach.FeeAmount)

		again, err := fees.CalculateFee(amount, fees.MethodCard, schedule)
		require.NoError(t, err)
		require.Equal(t, card, again)
	}
}

func TestCoverageRoundTrip(t *testing.T) {
	schedules := map[string]fees.Schedule{
		"default": fees.DefaultSchedule(),
		"fixed": {
			fees.MethodCard: {Percentage: 2.9, FixedCents: 30},
			fees.MethodACH:  {Percentage: 0.8, MaxFeeCents: fees.Cap(500)},
		},
	}
	check := func(t *testing.T, schedule fees.Schedule, method fees.Method, amount int64) {
		cov, err := fees.CalculateTotalWithCoverage(amount, method, schedule)
		require.NoError(t, err)
		charged, err := fees.CalculateFee(cov.TotalWithCoverage, method, schedule)
		require.NoError(t, err)
		require.Equal(t, amount, charged.NetAmount, "method %s amount %d", method, amount)

		short, err := fees.CalculateFee(cov.TotalWithCoverage-1, method, schedule)
		require.NoError(t, err)
		require.Less(t, short.NetAmount, amount, "total for %d is not minimal", amount)
	}
	for name, schedule := range schedules {
		t.Run(name, func(t *testing.T) {
			for amount := int64(1); amount <= 200_000; amount += 113 {
				check(t, schedule, fees.MethodCard, amount)
				check(t, schedule, fees.MethodACH, amount)
			}
			// around the ACH cap boundary
			for amount := int64(49_000); amount <= 63_000; amount++ {
				check(t, schedule, fees.MethodACH, amount)
			}
		})
	}
}

func TestCoverageReclampsCap(t *testing.T) {
	b, err := fees.CalculateTotalWithCoverage(100_000, fees.MethodACH, fees.DefaultSchedule())
	require.NoError(t, err)
	require.Equal(t, int64(100_500), b.TotalWithCoverage)
	require.Equal(t, int64(500), b.CoverageFeeAmount)
}

func TestStripeStyleFixedFee(t *testing.T) {
	schedule := fees.Schedule{fees.MethodCard: {Percentage: 2.9, FixedCents: 30}}
	b, err := fees.CalculateFee(10_000, fees.MethodCard, schedule)
	require.NoError(t, err)
	require.Equal(t, int64(320), b.FeeAmount)
	require.Equal(t, int64(10_330), b.TotalWithCoverage)
}

func TestUnknownMethod(t *testing.T) {
	_, err := fees.CalculateFee(100, fees.Method("wire"), fees.DefaultSchedule())
	require.ErrorIs(t, err, fees.ErrUnknownMethod)

	_, err = fees.ParseMethod("crypto")
	require.ErrorIs(t, err, fees.ErrUnknownMethod)

	m, err := fees.ParseMethod(" US_Bank_Account ")
	require.NoError(t, err)
	require.Equal(t, fees.MethodACH, m)
}

func TestScheduleValidate(t *testing.T) {
	require.NoError(t, fees.DefaultSchedule().Validate())
	require.ErrorIs(t, fees.Schedule{}.Validate(), fees.ErrInvalidSchedule)
	require.ErrorIs(t, fees.Schedule{fees.MethodCard: {Percentage: 100}}.Validate(), fees.ErrInvalidSchedule)
	require.ErrorIs(t, fees.Schedule{fees.MethodCard: {Percentage: -1}}.Validate(), fees.ErrInvalidSchedule)
	require.ErrorIs(t, fees.Schedule{fees.MethodCard: {FixedCents: -1}}.Validate(), fees.ErrInvalidSchedule)
}

func TestDefaultScheduleIsCopied(t *testing.T) {
	s := fees.DefaultSchedule()
	s[fees.MethodCard] = fees.MethodFee{Percentage: 50}
	*s[fees.MethodACH].MaxFeeCents = 1

	fresh := fees.DefaultSchedule()
	require.Equal(t, 5.0, fresh[fees.MethodCard].Percentage)
	require.Equal(t, int64(500), *fresh[fees.MethodACH].MaxFeeCents)
}

func TestFeeDescription(t *testing.T) {
	schedule := fees.DefaultSchedule()
	require.Equal(t, "5% processing fee", fees.FeeDescription(fees.MethodCard, schedule))
	require.Equal(t, "1% processing fee (max $5)", fees.FeeDescription(fees.MethodACH, schedule))
	require.Equal(t, "", fees.FeeDescription(fees.Method("wire"), schedule))

	stripe := fees.MethodFee{Percentage: 2.9, FixedCents: 30}
	require.Equal(t, "2.9% + $0.30 processing fee", stripe.Description())
}
