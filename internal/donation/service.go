package donation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-giving/internal/common"
	"github.com/noah-isme/backend-giving/internal/fees"
	"github.com/noah-isme/backend-giving/internal/links"
	"github.com/noah-isme/backend-giving/internal/obs"
	"github.com/noah-isme/backend-giving/internal/payment"
)

// Metadata keys written on vendor payments and subscriptions.
const (
	MetaLinkCode       = "link_code"
	MetaCampaignID     = "campaign_id"
	MetaDonationAmount = "donation_amount"
	MetaCoveredFees    = "covered_fees"
)

// ErrNotDue is returned by FinalizeCancellation before the period has ended.
var ErrNotDue = errors.New("donation: cancellation not yet due")

const (
	kindOneTime   = "one_time"
	kindRecurring = "recurring"
)

// Donor identifies the person giving.
type Donor struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Phone     string `json:"phone" validate:"omitempty,e164"`
}

// Request is a donation submitted by a donor. Amount is what the organisation
// should receive; when CoverFees applies the charge is grossed up.
type Request struct {
	Amount          int64            `json:"amount" validate:"gte=0"`
	Currency        string           `json:"currency" validate:"omitempty,iso4217"`
	PaymentMethod   fees.Method      `json:"paymentMethod" validate:"required,oneof=card ach"`
	PaymentMethodID string           `json:"paymentMethodId" validate:"required,max=255"`
	CustomerID      string           `json:"customerId" validate:"max=255"`
	CoverFees       bool             `json:"coverFees"`
	Donor           Donor            `json:"donor"`
	CampaignID      string           `json:"campaignId" validate:"max=64"`
	LinkCode        string           `json:"linkCode" validate:"max=32"`
	Description     string           `json:"description" validate:"max=500"`
	Interval        payment.Interval `json:"interval" validate:"omitempty,oneof=weekly monthly quarterly yearly"`
	IdempotencyKey  string           `json:"-"`
}

// Quote is the fee outcome of a prospective donation.
type Quote struct {
	Amount    int64       `json:"amount"`
	Method    fees.Method `json:"method"`
	CoverFees bool        `json:"coverFees"`
	// ChargeAmount is what the donor is charged.
	ChargeAmount int64 `json:"chargeAmount"`
	// FeeAmount is what the processor deducts from ChargeAmount.
	FeeAmount int64 `json:"feeAmount"`
	// NetAmount is what the organisation receives.
	NetAmount int64 `json:"netAmount"`
	// CoverageFeeAmount is the extra a donor pays to cover fees.
	CoverageFeeAmount int64  `json:"coverageFeeAmount"`
	Description       string `json:"description"`
}

// Result is the outcome of Donate. Exactly one of Payment and Subscription is set.
type Result struct {
	Quote        Quote                 `json:"quote"`
	Customer     *payment.Customer     `json:"customer,omitempty"`
	Payment      *payment.Payment      `json:"payment,omitempty"`
	Subscription *payment.Subscription `json:"subscription,omitempty"`
}

// RefundRequest refunds part or all of a payment.
type RefundRequest struct {
	Amount         *int64 `json:"amount" validate:"omitempty,gt=0"`
	Reason         string `json:"reason" validate:"max=500"`
	IdempotencyKey string `json:"-"`
}

// WebhookResult reports how an inbound webhook was handled.
type WebhookResult struct {
	Event     *payment.WebhookEvent `json:"event,omitempty"`
	Duplicate bool                  `json:"duplicate"`
	Ignored   bool                  `json:"ignored"`
}

// Scheduler arranges for a cancel-at-period-end subscription to be finalised.
type Scheduler interface {
	ScheduleCancel(ctx context.Context, provider, subscriptionID string, at time.Time) error
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Provider        payment.Provider
	Locker          payment.Locker
	RefundLockTTL   time.Duration
	Links           *links.Service
	Events          EventLog
	Scheduler       Scheduler
	DefaultCurrency string
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Service turns donor requests into provider calls.
type Service struct {
	provider  payment.Provider
	links     *links.Service
	events    EventLog
	scheduler Scheduler
	currency  string
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService validates cfg and builds a Service. The provider is wrapped so
// refunds are serialised per payment and every call is instrumented.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Provider == nil {
		return nil, errors.New("donation: provider is required")
	}
	if cfg.Events == nil {
		return nil, errors.New("donation: event log is required")
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	provider := payment.WithRefundLock(cfg.Provider, cfg.Locker, cfg.RefundLockTTL)
	return &Service{
		provider:  payment.Instrument(provider),
		links:     cfg.Links,
		events:    cfg.Events,
		scheduler: cfg.Scheduler,
		currency:  strings.ToUpper(cfg.DefaultCurrency),
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// ProviderName is the name of the configured payment provider.
func (s *Service) ProviderName() string { return s.provider.Name() }

// Schedule returns the configured provider's fee schedule.
func (s *Service) Schedule() fees.Schedule { return s.provider.Schedule() }

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

// Quote prices a donation of amount on method against the provider schedule.
func (s *Service) Quote(amount int64, method fees.Method, coverFees bool) (Quote, error) {
	if amount <= 0 {
		return Quote{}, &payment.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	schedule := s.provider.Schedule()
	base, err := fees.CalculateFee(amount, method, schedule)
	if err != nil {
		return Quote{}, &payment.ValidationError{Field: "paymentMethod", Reason: fmt.Sprintf("unsupported method %q", method), Err: err}
	}
	charge := amount
	if coverFees {
		charge = base.TotalWithCoverage
	}
	charged, err := fees.CalculateFee(charge, method, schedule)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Amount:            amount,
		Method:            method,
		CoverFees:         coverFees,
		ChargeAmount:      charge,
		FeeAmount:         charged.FeeAmount,
		NetAmount:         charged.NetAmount,
		CoverageFeeAmount: base.CoverageFeeAmount,
		Description:       fees.FeeDescription(method, schedule),
	}, nil
}

// Donate charges a one-time donation or opens a recurring one when Interval is set.
func (s *Service) Donate(ctx context.Context, req Request) (*Result, error) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Donor.Email = strings.TrimSpace(req.Donor.Email)
	if err := common.ValidateStruct(req); err != nil {
		return nil, err
	}

	amount := req.Amount
	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}
	coverFees := req.CoverFees
	description := strings.TrimSpace(req.Description)
	meta := map[string]string{}
	if req.CampaignID != "" {
		meta[MetaCampaignID] = req.CampaignID
	}

	if code := strings.TrimSpace(req.LinkCode); code != "" {
		if s.links == nil {
			return nil, errors.New("donation: payment links are not configured")
		}
		link, err := s.links.Resolve(ctx, code)
		if err != nil {
			return nil, err
		}
		if link.Amount != nil {
			if amount != 0 && amount != *link.Amount {
				return nil, &payment.ValidationError{Field: "amount", Reason: fmt.Sprintf("must equal the link amount %d", *link.Amount)}
			}
			amount = *link.Amount
		}
		if !link.Accepts(req.PaymentMethod) {
			return nil, &payment.ValidationError{Field: "paymentMethod", Reason: fmt.Sprintf("%s is not accepted by this link", req.PaymentMethod)}
		}
		coverFees = link.CoverFees(req.CoverFees)
		currency = link.Currency
		meta[MetaLinkCode] = link.ShortCode
		if link.CampaignID != "" && req.CampaignID == "" {
			meta[MetaCampaignID] = link.CampaignID
		}
		if description == "" {
			description = link.Description
		}
	}

	quote, err := s.Quote(amount, req.PaymentMethod, coverFees)
	if err != nil {
		return nil, err
	}
	covered := int64(0)
	if coverFees {
		covered = quote.CoverageFeeAmount
	}
	meta[MetaDonationAmount] = strconv.FormatInt(amount, 10)
	meta[MetaCoveredFees] = strconv.FormatInt(covered, 10)
	if description == "" {
		description = "Donation"
	}

	kind := kindOneTime
	if req.Interval != "" {
		kind = kindRecurring
	}
	idemKey := req.IdempotencyKey
	if idemKey == "" {
		idemKey = uuid.NewString()
	}
	methodType := payment.MethodTypeCard
	if req.PaymentMethod == fees.MethodACH {
		methodType = payment.MethodTypeACH
	}

	fail := func(err error) (*Result, error) {
		obs.Inc(obs.DonationsTotal, s.provider.Name(), string(req.PaymentMethod), kind, "error")
		return nil, err
	}

	customer, err := s.provider.UpsertCustomer(ctx, payment.Customer{
		ID:        req.CustomerID,
		Email:     req.Donor.Email,
		FirstName: req.Donor.FirstName,
		LastName:  req.Donor.LastName,
		Phone:     req.Donor.Phone,
	})
	if err != nil {
		return fail(fmt.Errorf("upsert donor: %w", err))
	}

	result := &Result{Quote: quote, Customer: customer}
	if kind == kindOneTime {
		p, err := s.provider.CreatePayment(ctx, payment.CreatePaymentRequest{
			Amount:          quote.ChargeAmount,
			Currency:        currency,
			CustomerID:      customer.ID,
			PaymentMethodID: req.PaymentMethodID,
			MethodType:      methodType,
			Description:     description,
			Metadata:        meta,
			IdempotencyKey:  idemKey,
		})
		if err != nil {
			return fail(fmt.Errorf("create payment: %w", err))
		}
		result.Payment = p
		if code := meta[MetaLinkCode]; code != "" && p.Status == payment.StatusSucceeded {
			s.creditLink(ctx, code, p)
		}
	} else {
		sub, err := s.provider.CreateSubscription(ctx, payment.CreateSubscriptionRequest{
			CustomerID:      customer.ID,
			PaymentMethodID: req.PaymentMethodID,
			MethodType:      methodType,
			Amount:          quote.ChargeAmount,
			Currency:        currency,
			Interval:        req.Interval,
			Description:     description,
			Metadata:        meta,
			IdempotencyKey:  idemKey,
		})
		if err != nil {
			return fail(fmt.Errorf("create subscription: %w", err))
		}
		result.Subscription = sub
	}

	obs.Inc(obs.DonationsTotal, s.provider.Name(), string(req.PaymentMethod), kind, "success")
	obs.Add(obs.DonationAmountCents, float64(quote.ChargeAmount), currency, string(req.PaymentMethod))
	if covered > 0 {
		obs.Add(obs.CoveredFeesCents, float64(covered), currency, string(req.PaymentMethod))
	}
	s.log(ctx).Info().
		Str("provider", s.provider.Name()).
		Str("kind", kind).
		Str("method", string(req.PaymentMethod)).
		Int64("amount", amount).
		Int64("charge", quote.ChargeAmount).
		Bool("cover_fees", coverFees).
		Str("link_code", meta[MetaLinkCode]).
		Msg("donation accepted")
	return result, nil
}

// creditLink adds a settled payment to its link. Failures are logged; the
// payment.succeeded webhook retries the credit idempotently.
func (s *Service) creditLink(ctx context.Context, code string, p *payment.Payment) {
	if s.links == nil {
		return
	}
	if _, err := s.links.RecordDonation(ctx, code, p.ID, p.Amount); err != nil {
		s.log(ctx).Error().Err(err).Str("link_code", code).Str("payment_id", p.ID).Msg("credit payment link")
	}
}

// GetPayment returns the payment or payment.ErrNotFound.
func (s *Service) GetPayment(ctx context.Context, id string) (*payment.Payment, error) {
	p, err := s.provider.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("payment %s: %w", id, payment.ErrNotFound)
	}
	return p, nil
}

// ListPayments returns a donor's payments, newest first as the vendor orders them.
func (s *Service) ListPayments(ctx context.Context, customerID string, limit int) ([]payment.Payment, error) {
	return s.provider.ListPayments(ctx, payment.ListPaymentsRequest{CustomerID: customerID, Limit: limit})
}

// Refund refunds a payment. A nil amount refunds the remaining balance.
func (s *Service) Refund(ctx context.Context, paymentID string, req RefundRequest) (*payment.Refund, error) {
	if err := common.ValidateStruct(req); err != nil {
		return nil, err
	}
	ref, err := s.provider.CreateRefund(ctx, payment.CreateRefundRequest{
		PaymentID:      paymentID,
		Amount:         req.Amount,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		obs.Inc(obs.RefundsTotal, s.provider.Name(), "error")
		return nil, err
	}
	obs.Inc(obs.RefundsTotal, s.provider.Name(), "success")
	s.log(ctx).Info().Str("payment_id", paymentID).Str("refund_id", ref.ID).Int64("amount", ref.Amount).Msg("refund issued")
	return ref, nil
}

// ListRefunds returns the refunds recorded against a payment.
func (s *Service) ListRefunds(ctx context.Context, paymentID string) ([]payment.Refund, error) {
	return s.provider.ListRefunds(ctx, paymentID)
}

// GetSubscription returns the subscription or payment.ErrNotFound.
func (s *Service) GetSubscription(ctx context.Context, id string) (*payment.Subscription, error) {
	sub, err := s.provider.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("subscription %s: %w", id, payment.ErrNotFound)
	}
	return sub, nil
}

// CancelSubscription cancels now or at period end. Period-end cancellations are
// also scheduled locally so they complete even if the vendor never ends them.
func (s *Service) CancelSubscription(ctx context.Context, id string, opts payment.CancelOptions) (*payment.Subscription, error) {
	sub, err := s.provider.CancelSubscription(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	if sub.CancelAtPeriodEnd && s.scheduler != nil {
		if err := s.scheduler.ScheduleCancel(ctx, s.provider.Name(), sub.ID, sub.CurrentPeriodEnd); err != nil {
			s.log(ctx).Error().Err(err).Str("subscription_id", sub.ID).Msg("schedule period-end cancellation")
		}
	}
	return sub, nil
}

// PauseSubscription pauses an active subscription.
func (s *Service) PauseSubscription(ctx context.Context, id string) (*payment.Subscription, error) {
	return s.provider.PauseSubscription(ctx, id)
}

// ResumeSubscription resumes a paused subscription.
func (s *Service) ResumeSubscription(ctx context.Context, id string) (*payment.Subscription, error) {
	return s.provider.ResumeSubscription(ctx, id)
}

// FinalizeCancellation ends a subscription whose period-end cancellation is due.
// It reports whether a cancel was issued; resumed, already ended or missing
// subscriptions are left alone.
func (s *Service) FinalizeCancellation(ctx context.Context, id string) (bool, error) {
	sub, err := s.provider.GetSubscription(ctx, id)
	if err != nil {
		return false, err
	}
	if sub == nil || sub.Status == payment.SubscriptionCancelled || !sub.CancelAtPeriodEnd {
		return false, nil
	}
	if s.now().Before(sub.CurrentPeriodEnd) {
		return false, fmt.Errorf("subscription %s period ends at %s: %w", id, sub.CurrentPeriodEnd.Format(time.RFC3339), ErrNotDue)
	}
	reason := sub.CancelReason
	if reason == "" {
		reason = "cancel at period end"
	}
	if _, err := s.provider.CancelSubscription(ctx, id, payment.CancelOptions{CancelImmediately: true, Reason: reason}); err != nil {
		return false, err
	}
	return true, nil
}

// HandleWebhook verifies and applies a provider notification. Each event id is
// applied at most once; unsupported events are acknowledged and skipped.
func (s *Service) HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) (*WebhookResult, error) {
	name := s.provider.Name()
	if !strings.EqualFold(strings.TrimSpace(provider), name) {
		obs.Inc(obs.PaymentWebhookTotal, provider, "unknown_provider")
		return nil, fmt.Errorf("%w: %q", payment.ErrUnknownProvider, provider)
	}
	evt, err := s.provider.ParseWebhookEvent(ctx, payload, signature)
	switch {
	case errors.Is(err, payment.ErrEventIgnored):
		obs.Inc(obs.PaymentWebhookTotal, name, "ignored")
		return &WebhookResult{Ignored: true}, nil
	case payment.IsSignatureError(err):
		obs.Inc(obs.PaymentWebhookTotal, name, "invalid_signature")
		s.log(ctx).Warn().Err(err).Str("provider", name).Msg("webhook rejected")
		return nil, err
	case err != nil:
		obs.Inc(obs.PaymentWebhookTotal, name, "invalid")
		return nil, err
	}

	first, err := s.events.Acquire(ctx, name, evt.ID)
	if err != nil {
		obs.Inc(obs.PaymentWebhookTotal, name, "error")
		return nil, fmt.Errorf("acquire webhook event %s: %w", evt.ID, err)
	}
	if !first {
		obs.Inc(obs.PaymentWebhookTotal, name, "duplicate")
		return &WebhookResult{Event: evt, Duplicate: true}, nil
	}
	if err := s.apply(ctx, evt); err != nil {
		if relErr := s.events.Release(ctx, name, evt.ID); relErr != nil {
			s.log(ctx).Error().Err(relErr).Str("event_id", evt.ID).Msg("release webhook event")
		}
		obs.Inc(obs.PaymentWebhookTotal, name, "error")
		return nil, err
	}
	obs.Inc(obs.PaymentWebhookTotal, name, "processed")
	s.log(ctx).Info().Str("provider", name).Str("event_id", evt.ID).Str("type", string(evt.Type)).Msg("webhook processed")
	return &WebhookResult{Event: evt}, nil
}

func (s *Service) apply(ctx context.Context, evt *payment.WebhookEvent) error {
	switch evt.Type {
	case payment.EventPaymentSucceeded:
		p := evt.Payment
		if p == nil || s.links == nil {
			return nil
		}
		code := p.Metadata[MetaLinkCode]
		if code == "" {
			return nil
		}
		_, err := s.links.RecordDonation(ctx, code, p.ID, p.Amount)
		if errors.Is(err, links.ErrLinkNotFound) {
			s.log(ctx).Warn().Str("link_code", code).Str("payment_id", p.ID).Msg("payment references unknown link")
			return nil
		}
		return err
	case payment.EventSubscriptionCancelled:
		if evt.Subscription != nil {
			s.log(ctx).Info().Str("subscription_id", evt.Subscription.ID).Msg("subscription ended by provider")
		}
	}
	return nil
}
