package links_test

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giving/internal/common"
	"github.com/noah-isme/backend-giving/internal/fees"
	"github.com/noah-isme/backend-giving/internal/links"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newService(t *testing.T, logger zerolog.Logger) (*links.Service, *clock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := &clock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc, err := links.NewService(links.ServiceConfig{
		Store:         links.NewMemoryStore(),
		Node:          node,
		PublicBaseURL: "https://give.example.org/",
		Now:           clk.Now,
		Logger:        logger,
	})
	require.NoError(t, err)
	return svc, clk
}

func amount(v int64) *int64 { return &v }

func TestCreateBuildsShareableLink(t *testing.T) {
	svc, _ := newService(t, zerolog.Nop())
	link, err := svc.Create(context.Background(), links.CreateLinkRequest{
		Amount:                amount(2500),
		Currency:              "usd",
		Description:           "  Spring appeal  ",
		AllowedPaymentMethods: []fees.Method{fees.MethodCard, fees.MethodACH, fees.MethodCard},
	})
	require.NoError(t, err)

	require.NotEmpty(t, link.ShortCode)
	require.Equal(t, "https://give.example.org/give/"+link.ShortCode, link.URL)
	require.True(t, strings.HasPrefix(link.QRCodeURL, links.DefaultQRBaseURL))
	require.Equal(t, links.DefaultQRBaseURL+url.QueryEscape(link.URL), link.QRCodeURL)
	require.Equal(t, "USD", link.Currency)
	require.Equal(t, "Spring appeal", link.Description)
	require.Equal(t, []fees.Method{fees.MethodCard, fees.MethodACH}, link.AllowedPaymentMethods)
	require.Equal(t, links.CoverFeesDonorChoice, link.CoverFeesOption)
	require.Equal(t, links.StatusActive, link.Status)

	got, err := svc.Get(context.Background(), link.ShortCode)
	require.NoError(t, err)
	require.Equal(t, link.ID, got.ID)
}

func TestCreateRejectsInvalidRequests(t *testing.T) {
	svc, clk := newService(t, zerolog.Nop())
	past := clk.Now().Add(-time.Minute)
	cases := map[string]links.CreateLinkRequest{
		"no methods":      {},
		"unknown method":  {AllowedPaymentMethods: []fees.Method{"crypto"}},
		"zero amount":     {Amount: amount(0), AllowedPaymentMethods: []fees.Method{fees.MethodCard}},
		"bad currency":    {Currency: "dollars", AllowedPaymentMethods: []fees.Method{fees.MethodCard}},
		"bad fee option":  {CoverFeesOption: "sometimes", AllowedPaymentMethods: []fees.Method{fees.MethodCard}},
		"bad success url": {SuccessURL: "not a url", AllowedPaymentMethods: []fees.Method{fees.MethodCard}},
		"expired":         {ExpiresAt: &past, AllowedPaymentMethods: []fees.Method{fees.MethodCard}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), req)
			var appErr *common.AppError
			require.True(t, errors.As(err, &appErr), "got %v", err)
			require.Equal(t, common.CodeValidationFailed, appErr.Code)
		})
	}
}

func TestResolveExpiresLazily(t *testing.T) {
	svc, clk := newService(t, zerolog.Nop())
	expires := clk.Now().Add(time.Hour)
	link, err := svc.Create(context.Background(), links.CreateLinkRequest{
		AllowedPaymentMethods: []fees.Method{fees.MethodCard},
		ExpiresAt:             &expires,
	})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), link.ShortCode)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	got, err := svc.Resolve(context.Background(), link.ShortCode)
	require.ErrorIs(t, err, links.ErrLinkInactive)
	require.Equal(t, links.StatusExpired, got.Status)

	stored, err := svc.Get(context.Background(), link.ShortCode)
	require.NoError(t, err)
	require.Equal(t, links.StatusExpired, stored.Status)
}

func TestResolveUnknownAndDisabled(t *testing.T) {
	svc, _ := newService(t, zerolog.Nop())
	_, err := svc.Resolve(context.Background(), "missing")
	require.ErrorIs(t, err, links.ErrLinkNotFound)

	link, err := svc.Create(context.Background(), links.CreateLinkRequest{AllowedPaymentMethods: []fees.Method{fees.MethodACH}})
	require.NoError(t, err)
	disabled, err := svc.Disable(context.Background(), link.ShortCode)
	require.NoError(t, err)
	require.Equal(t, links.StatusDisabled, disabled.Status)

	_, err = svc.Resolve(context.Background(), link.ShortCode)
	require.ErrorIs(t, err, links.ErrLinkInactive)
}

func TestRecordDonationIsIdempotentPerPayment(t *testing.T) {
	svc, _ := newService(t, zerolog.Nop())
	ctx := context.Background()
	link, err := svc.Create(ctx, links.CreateLinkRequest{AllowedPaymentMethods: []fees.Method{fees.MethodCard}})
	require.NoError(t, err)

	applied, err := svc.RecordDonation(ctx, link.ShortCode, "pay_1", 10527)
	require.NoError(t, err)
	require.True(t, applied)
	applied, err = svc.RecordDonation(ctx, link.ShortCode, "pay_1", 10527)
	require.NoError(t, err)
	require.False(t, applied)
	_, err = svc.RecordDonation(ctx, link.ShortCode, "pay_2", 2000)
	require.NoError(t, err)

	got, err := svc.Get(ctx, link.ShortCode)
	require.NoError(t, err)
	require.Equal(t, int64(12527), got.TotalCollected)
	require.Equal(t, int64(2), got.DonationCount)

	_, err = svc.RecordDonation(ctx, link.ShortCode, "pay_3", -5)
	require.Error(t, err)
	_, err = svc.RecordDonation(ctx, "missing", "pay_4", 100)
	require.ErrorIs(t, err, links.ErrLinkNotFound)
}

func TestRecordDonationConcurrentRedelivery(t *testing.T) {
	svc, _ := newService(t, zerolog.Nop())
	ctx := context.Background()
	link, err := svc.Create(ctx, links.CreateLinkRequest{AllowedPaymentMethods: []fees.Method{fees.MethodCard}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.RecordDonation(ctx, link.ShortCode, "pay_dup", 500)
		}()
	}
	wg.Wait()

	got, err := svc.Get(ctx, link.ShortCode)
	require.NoError(t, err)
	require.Equal(t, int64(500), got.TotalCollected)
	require.Equal(t, int64(1), got.DonationCount)
}

func TestCorrectTotalsLogsAndOverwrites(t *testing.T) {
	var buf bytes.Buffer
	svc, _ := newService(t, zerolog.New(&buf))
	ctx := context.Background()
	link, err := svc.Create(ctx, links.CreateLinkRequest{AllowedPaymentMethods: []fees.Method{fees.MethodCard}})
	require.NoError(t, err)
	_, err = svc.RecordDonation(ctx, link.ShortCode, "pay_1", 5000)
	require.NoError(t, err)

	_, err = svc.CorrectTotals(ctx, link.ShortCode, 1000, 1, "")
	require.Error(t, err)
	_, err = svc.CorrectTotals(ctx, link.ShortCode, -1, 1, "chargeback")
	require.Error(t, err)

	corrected, err := svc.CorrectTotals(ctx, link.ShortCode, 1000, 1, "chargeback")
	require.NoError(t, err)
	require.Equal(t, int64(1000), corrected.TotalCollected)
	require.Contains(t, buf.String(), `"level":"warn"`)
	require.Contains(t, buf.String(), `"previous_total":5000`)
	require.Contains(t, buf.String(), `"reason":"chargeback"`)
}

func TestLinkCoverFeesOption(t *testing.T) {
	require.True(t, links.PaymentLink{CoverFeesOption: links.CoverFeesAlways}.CoverFees(false))
	require.False(t, links.PaymentLink{CoverFeesOption: links.CoverFeesNever}.CoverFees(true))
	require.True(t, links.PaymentLink{CoverFeesOption: links.CoverFeesDonorChoice}.CoverFees(true))
	require.False(t, links.PaymentLink{CoverFeesOption: links.CoverFeesDonorChoice}.CoverFees(false))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := links.NewService(links.ServiceConfig{})
	require.Error(t, err)
}
