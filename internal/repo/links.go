package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-giving/internal/fees"
	"github.com/noah-isme/backend-giving/internal/links"
)

const linkColumns = `id, short_code, url, qr_code_url, amount, currency, description, campaign_id,
	allowed_payment_methods, cover_fees_option, status, total_collected, donation_count,
	expires_at, success_url, cancel_url, created_at, updated_at`

// LinkRepo implements links.Store on Postgres.
type LinkRepo struct {
	DB DB
}

var _ links.Store = LinkRepo{}

func (r LinkRepo) Insert(ctx context.Context, link links.PaymentLink) error {
	methods := make([]string, len(link.AllowedPaymentMethods))
	for i, m := range link.AllowedPaymentMethods {
		methods[i] = string(m)
	}
	_, err := r.DB.Exec(ctx, `INSERT INTO payment_links (`+linkColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		link.ID, link.ShortCode, link.URL, link.QRCodeURL, link.Amount, link.Currency, link.Description, link.CampaignID,
		methods, string(link.CoverFeesOption), string(link.Status), link.TotalCollected, link.DonationCount,
		link.ExpiresAt, link.SuccessURL, link.CancelURL, link.CreatedAt, link.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return links.ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("insert payment link: %w", err)
	}
	return nil
}

func (r LinkRepo) Get(ctx context.Context, code string) (*links.PaymentLink, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+linkColumns+` FROM payment_links WHERE short_code = $1`, code)
	link, err := scanLink(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, links.ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment link: %w", err)
	}
	return link, nil
}

func (r LinkRepo) SetStatus(ctx context.Context, code string, status links.Status, at time.Time) error {
	tag, err := r.DB.Exec(ctx, `UPDATE payment_links SET status = $2, updated_at = $3 WHERE short_code = $1`, code, string(status), at)
	if err != nil {
		return fmt.Errorf("set payment link status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return links.ErrLinkNotFound
	}
	return nil
}

func (r LinkRepo) AddDonation(ctx context.Context, code, paymentID string, amount int64, at time.Time) (bool, error) {
	applied := false
	err := pgx.BeginFunc(ctx, r.DB, func(tx pgx.Tx) error {
		var one int
		if err := tx.QueryRow(ctx, `SELECT 1 FROM payment_links WHERE short_code = $1 FOR UPDATE`, code).Scan(&one); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return links.ErrLinkNotFound
			}
			return err
		}
		tag, err := tx.Exec(ctx, `INSERT INTO payment_link_donations (short_code, payment_id, amount, created_at)
			VALUES ($1, $2, $3, $4) ON CONFLICT (short_code, payment_id) DO NOTHING`, code, paymentID, amount, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE payment_links
			SET total_collected = total_collected + $2, donation_count = donation_count + 1, updated_at = $3
			WHERE short_code = $1`, code, amount, at); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if errors.Is(err, links.ErrLinkNotFound) {
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("add payment link donation: %w", err)
	}
	return applied, nil
}

func (r LinkRepo) SetTotals(ctx context.Context, code string, total, count int64, at time.Time) error {
	tag, err := r.DB.Exec(ctx, `UPDATE payment_links SET total_collected = $2, donation_count = $3, updated_at = $4
		WHERE short_code = $1`, code, total, count, at)
	if err != nil {
		return fmt.Errorf("set payment link totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return links.ErrLinkNotFound
	}
	return nil
}

func scanLink(row pgx.Row) (*links.PaymentLink, error) {
	var (
		link    links.PaymentLink
		methods []string
		option  string
		status  string
	)
	err := row.Scan(
		&link.ID, &link.ShortCode, &link.URL, &link.QRCodeURL, &link.Amount, &link.Currency, &link.Description, &link.CampaignID,
		&methods, &option, &status, &link.TotalCollected, &link.DonationCount,
		&link.ExpiresAt, &link.SuccessURL, &link.CancelURL, &link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	link.AllowedPaymentMethods = make([]fees.Method, len(methods))
	for i, m := range methods {
		link.AllowedPaymentMethods[i] = fees.Method(m)
	}
	link.CoverFeesOption = links.CoverFeesOption(option)
	link.Status = links.Status(status)
	return &link, nil
}
