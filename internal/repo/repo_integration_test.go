package repo_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giving/internal/fees"
	"github.com/noah-isme/backend-giving/internal/links"
	"github.com/noah-isme/backend-giving/internal/repo"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	m, err := repo.NewMigrator(url)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate: %v", err)
	}
	_, _ = m.Close()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = pool.Exec(ctx, `TRUNCATE payment_link_donations, payment_links, processed_webhook_events`)
	require.NoError(t, err)
	return pool
}

func sampleLink(code string) links.PaymentLink {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	amount := int64(2500)
	return links.PaymentLink{
		ID:                    "id-" + code,
		ShortCode:             code,
		URL:                   "https://give.example.org/give/" + code,
		QRCodeURL:             "https://qr.example/?data=" + code,
		Amount:                &amount,
		Currency:              "USD",
		AllowedPaymentMethods: []fees.Method{fees.MethodCard, fees.MethodACH},
		CoverFeesOption:       links.CoverFeesDonorChoice,
		Status:                links.StatusActive,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func TestLinkRepoRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := repo.LinkRepo{DB: testPool(t)}

	require.NoError(t, r.Insert(ctx, sampleLink("abc")))
	require.ErrorIs(t, r.Insert(ctx, sampleLink("abc")), links.ErrDuplicateCode)

	got, err := r.Get(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, int64(2500), *got.Amount)
	require.Equal(t, []fees.Method{fees.MethodCard, fees.MethodACH}, got.AllowedPaymentMethods)
	require.Nil(t, got.ExpiresAt)

	_, err = r.Get(ctx, "missing")
	require.ErrorIs(t, err, links.ErrLinkNotFound)

	at := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.SetStatus(ctx, "abc", links.StatusDisabled, at))
	got, err = r.Get(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, links.StatusDisabled, got.Status)
	require.ErrorIs(t, r.SetStatus(ctx, "missing", links.StatusDisabled, at), links.ErrLinkNotFound)
}

func TestLinkRepoAddDonationOncePerPayment(t *testing.T) {
	ctx := context.Background()
	r := repo.LinkRepo{DB: testPool(t)}
	require.NoError(t, r.Insert(ctx, sampleLink("xyz")))
	at := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	applied := make(chan bool, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.AddDonation(ctx, "xyz", "pay_1", 1000, at)
			assert.NoError(t, err)
			applied <- ok
		}()
	}
	wg.Wait()
	close(applied)
	count := 0
	for ok := range applied {
		if ok {
			count++
		}
	}
	require.Equal(t, 1, count)

	ok, err := r.AddDonation(ctx, "xyz", "pay_2", 500, at)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := r.Get(ctx, "xyz")
	require.NoError(t, err)
	require.Equal(t, int64(1500), got.TotalCollected)
	require.Equal(t, int64(2), got.DonationCount)

	_, err = r.AddDonation(ctx, "missing", "pay_1", 1000, at)
	require.ErrorIs(t, err, links.ErrLinkNotFound)

	require.NoError(t, r.SetTotals(ctx, "xyz", 400, 1, at))
	got, err = r.Get(ctx, "xyz")
	require.NoError(t, err)
	require.Equal(t, int64(400), got.TotalCollected)
}

func TestWebhookEventRepo(t *testing.T) {
	ctx := context.Background()
	r := repo.WebhookEventRepo{DB: testPool(t)}

	first, err := r.Acquire(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	require.True(t, first)

	again, err := r.Acquire(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	require.False(t, again)

	other, err := r.Acquire(ctx, "hellopayments", "evt_1")
	require.NoError(t, err)
	require.True(t, other)

	require.NoError(t, r.Release(ctx, "stripe", "evt_1"))
	retried, err := r.Acquire(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	require.True(t, retried)

	n, err := r.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
