package payment_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giving/internal/payment"
)

func TestNewSelectsProviderByName(t *testing.T) {
	cfg := payment.Config{APIKey: "sk_test_1", TestMode: true}

	p, err := payment.New("Stripe", cfg)
	require.NoError(t, err)
	require.Equal(t, payment.StripeName, p.Name())
	require.True(t, p.IsTestMode())

	p, err = payment.New(" hellopayments ", cfg)
	require.NoError(t, err)
	require.Equal(t, payment.HelloPaymentsName, p.Name())
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := payment.New("paypal", payment.Config{APIKey: "k"})
	require.ErrorIs(t, err, payment.ErrUnknownProvider)
	require.Contains(t, err.Error(), "hellopayments, stripe")
}

func TestNewRequiresKey(t *testing.T) {
	for _, name := range payment.Names() {
		_, err := payment.New(name, payment.Config{})
		var vErr *payment.ValidationError
		require.ErrorAs(t, err, &vErr, name)
	}
}

func TestProviderSchedulesDiffer(t *testing.T) {
	hp, err := payment.New(payment.HelloPaymentsName, payment.Config{APIKey: "k"})
	require.NoError(t, err)
	st, err := payment.New(payment.StripeName, payment.Config{APIKey: "k"})
	require.NoError(t, err)

	require.Equal(t, int64(500), hp.CalculateFee(10000).FeeAmount)
	require.Equal(t, int64(10527), hp.CalculateFee(10000).TotalWithCoverage)
	require.Equal(t, int64(320), st.CalculateFee(10000).FeeAmount)
	require.Equal(t, int64(10330), st.CalculateFee(10000).TotalWithCoverage)
}

func TestSignatureHeader(t *testing.T) {
	require.Equal(t, "Stripe-Signature", payment.SignatureHeader("stripe"))
	require.Equal(t, "X-HelloPayments-Signature", payment.SignatureHeader(payment.HelloPaymentsName))
	require.Equal(t, "X-Webhook-Signature", payment.SignatureHeader("other"))
}
