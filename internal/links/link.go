package links

import (
	"errors"
	"slices"
	"time"

	"github.com/noah-isme/backend-giving/internal/fees"
)

// CoverFeesOption controls whether donors through a link pay processing fees.
type CoverFeesOption string

const (
	CoverFeesDonorChoice CoverFeesOption = "donor_choice"
	CoverFeesAlways      CoverFeesOption = "always"
	CoverFeesNever       CoverFeesOption = "never"
)

// Status is the lifecycle state of a payment link.
type Status string

const (
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusDisabled Status = "disabled"
)

var (
	// ErrLinkNotFound is returned when no link carries the short code.
	ErrLinkNotFound = errors.New("payment link not found")
	// ErrLinkInactive is returned when a link is expired or disabled.
	ErrLinkInactive = errors.New("payment link is not active")
	// ErrDuplicateCode is returned by stores when a short code is already taken.
	ErrDuplicateCode = errors.New("payment link code already exists")
)

// PaymentLink is a shareable donation entry point. TotalCollected and
// DonationCount only grow, except through Service.CorrectTotals.
type PaymentLink struct {
	ID                    string          `json:"id"`
	ShortCode             string          `json:"shortCode"`
	URL                   string          `json:"url"`
	QRCodeURL             string          `json:"qrCodeUrl"`
	Amount                *int64          `json:"amount,omitempty"`
	Currency              string          `json:"currency"`
	Description           string          `json:"description,omitempty"`
	CampaignID            string          `json:"campaignId,omitempty"`
	AllowedPaymentMethods []fees.Method   `json:"allowedPaymentMethods"`
	CoverFeesOption       CoverFeesOption `json:"coverFeesOption"`
	Status                Status          `json:"status"`
	TotalCollected        int64           `json:"totalCollected"`
	DonationCount         int64           `json:"donationCount"`
	ExpiresAt             *time.Time      `json:"expiresAt,omitempty"`
	SuccessURL            string          `json:"successUrl,omitempty"`
	CancelURL             string          `json:"cancelUrl,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// Accepts reports whether donors may pay through the link with method.
func (l PaymentLink) Accepts(method fees.Method) bool {
	return slices.Contains(l.AllowedPaymentMethods, method)
}

// CoverFees resolves the donor's request against the link's fee option.
func (l PaymentLink) CoverFees(requested bool) bool {
	switch l.CoverFeesOption {
	case CoverFeesAlways:
		return true
	case CoverFeesNever:
		return false
	default:
		return requested
	}
}

// expiredAt reports whether an active link has passed its expiry at now.
func (l PaymentLink) expiredAt(now time.Time) bool {
	return l.Status == StatusActive && l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}
