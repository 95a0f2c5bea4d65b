package links

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-giving/internal/common"
	"github.com/noah-isme/backend-giving/internal/fees"
)

// DefaultQRBaseURL renders a QR image for the query-escaped link URL appended to it.
const DefaultQRBaseURL = "https://api.qrserver.com/v1/create-qr-code/?size=300x300&data="

// CreateLinkRequest describes a new payment link.
type CreateLinkRequest struct {
	Amount                *int64          `json:"amount" validate:"omitempty,gt=0"`
	Currency              string          `json:"currency" validate:"omitempty,iso4217"`
	Description           string          `json:"description" validate:"max=500"`
	CampaignID            string          `json:"campaignId" validate:"max=64"`
	AllowedPaymentMethods []fees.Method   `json:"allowedPaymentMethods" validate:"required,min=1,dive,oneof=card ach"`
	CoverFeesOption       CoverFeesOption `json:"coverFeesOption" validate:"omitempty,oneof=donor_choice always never"`
	ExpiresAt             *time.Time      `json:"expiresAt"`
	SuccessURL            string          `json:"successUrl" validate:"omitempty,url"`
	CancelURL             string          `json:"cancelUrl" validate:"omitempty,url"`
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Store           Store
	Node            *snowflake.Node
	PublicBaseURL   string
	QRBaseURL       string
	DefaultCurrency string
	Now             func() time.Time
	Logger          zerolog.Logger
}

// Service manages payment links and their donation aggregates.
type Service struct {
	store    Store
	node     *snowflake.Node
	baseURL  string
	qrBase   string
	currency string
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService validates cfg and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("links: store is required")
	}
	if cfg.Node == nil {
		return nil, errors.New("links: snowflake node is required")
	}
	if strings.TrimSpace(cfg.PublicBaseURL) == "" {
		return nil, errors.New("links: public base url is required")
	}
	if cfg.QRBaseURL == "" {
		cfg.QRBaseURL = DefaultQRBaseURL
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:    cfg.Store,
		node:     cfg.Node,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		qrBase:   cfg.QRBaseURL,
		currency: strings.ToUpper(cfg.DefaultCurrency),
		now:      cfg.Now,
		logger:   cfg.Logger,
	}, nil
}

// Create validates req and stores a new active link.
func (s *Service) Create(ctx context.Context, req CreateLinkRequest) (*PaymentLink, error) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := common.ValidateStruct(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, common.NewAppError(common.CodeValidationFailed, "expiresAt must be in the future", http.StatusUnprocessableEntity, nil).
			WithDetails([]common.FieldError{{Field: "expiresAt", Rule: "future"}})
	}

	id := s.node.Generate()
	code := id.Base58()
	link := PaymentLink{
		ID:                    id.String(),
		ShortCode:             code,
		URL:                   s.baseURL + "/give/" + code,
		Amount:                req.Amount,
		Currency:              s.currency,
		Description:           strings.TrimSpace(req.Description),
		CampaignID:            req.CampaignID,
		AllowedPaymentMethods: dedupeMethods(req.AllowedPaymentMethods),
		CoverFeesOption:       req.CoverFeesOption,
		Status:                StatusActive,
		ExpiresAt:             req.ExpiresAt,
		SuccessURL:            req.SuccessURL,
		CancelURL:             req.CancelURL,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if req.Currency != "" {
		link.Currency = req.Currency
	}
	if link.CoverFeesOption == "" {
		link.CoverFeesOption = CoverFeesDonorChoice
	}
	link.QRCodeURL = s.qrBase + url.QueryEscape(link.URL)

	if err := s.store.Insert(ctx, link); err != nil {
		return nil, fmt.Errorf("insert payment link: %w", err)
	}
	return &link, nil
}

// Get returns the link for code in any status, expiring it first when its
// expiry has passed.
func (s *Service) Get(ctx context.Context, code string) (*PaymentLink, error) {
	link, err := s.store.Get(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if link.expiredAt(now) {
		if err := s.store.SetStatus(ctx, link.ShortCode, StatusExpired, now); err != nil {
			return nil, fmt.Errorf("expire payment link: %w", err)
		}
		link.Status = StatusExpired
		link.UpdatedAt = now
	}
	return link, nil
}

// Resolve returns the link for code only while it accepts donations.
func (s *Service) Resolve(ctx context.Context, code string) (*PaymentLink, error) {
	link, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if link.Status != StatusActive {
		return link, fmt.Errorf("%s is %s: %w", link.ShortCode, link.Status, ErrLinkInactive)
	}
	return link, nil
}

// Disable stops a link from accepting further donations.
func (s *Service) Disable(ctx context.Context, code string) (*PaymentLink, error) {
	link, err := s.store.Get(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if link.Status == StatusDisabled {
		return link, nil
	}
	now := s.now().UTC()
	if err := s.store.SetStatus(ctx, link.ShortCode, StatusDisabled, now); err != nil {
		return nil, fmt.Errorf("disable payment link: %w", err)
	}
	link.Status = StatusDisabled
	link.UpdatedAt = now
	return link, nil
}

// RecordDonation credits a settled payment to the link. Repeated calls for the
// same paymentID are no-ops, so webhook redelivery never double counts.
func (s *Service) RecordDonation(ctx context.Context, code, paymentID string, amount int64) (bool, error) {
	if strings.TrimSpace(paymentID) == "" {
		return false, errors.New("links: payment id is required")
	}
	if amount <= 0 {
		return false, fmt.Errorf("links: donation amount must be positive, got %d", amount)
	}
	applied, err := s.store.AddDonation(ctx, strings.TrimSpace(code), paymentID, amount, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("record link donation: %w", err)
	}
	return applied, nil
}

// CorrectTotals overwrites a link's aggregates. It is the only operation that
// can lower them and is always logged.
func (s *Service) CorrectTotals(ctx context.Context, code string, total, count int64, reason string) (*PaymentLink, error) {
	if total < 0 || count < 0 {
		return nil, common.NewAppError(common.CodeValidationFailed, "totals must not be negative", http.StatusUnprocessableEntity, nil)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, common.NewAppError(common.CodeValidationFailed, "a reason is required to correct totals", http.StatusUnprocessableEntity, nil)
	}
	link, err := s.store.Get(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.store.SetTotals(ctx, link.ShortCode, total, count, now); err != nil {
		return nil, fmt.Errorf("correct link totals: %w", err)
	}
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &s.logger
	}
	logger.Warn().
		Str("link_code", link.ShortCode).
		Int64("previous_total", link.TotalCollected).
		Int64("previous_count", link.DonationCount).
		Int64("total", total).
		Int64("count", count).
		Str("reason", reason).
		Msg("payment link totals corrected")

	link.TotalCollected = total
	link.DonationCount = count
	link.UpdatedAt = now
	return link, nil
}

func dedupeMethods(in []fees.Method) []fees.Method {
	out := make([]fees.Method, 0, len(in))
	for _, m := range in {
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}
