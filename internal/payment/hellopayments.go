package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/backend-giving/internal/fees"
)

// HelloPaymentsName is the registry key of the HelloPayments adapter.
const HelloPaymentsName = "hellopayments"

const (
	helloPaymentsLiveURL    = "https://api.hellopayments.net/v1"
	helloPaymentsSandboxURL = "https://sandbox.hellopayments.net/v1"
)

// HelloPaymentsSchedule is the processor's published pricing.
func HelloPaymentsSchedule() fees.Schedule {
	return fees.Schedule{
		fees.MethodCard: {Percentage: 5},
		fees.MethodACH:  {Percentage: 1, MaxFeeCents: fees.Cap(500)},
	}
}

// HelloPayments implements Provider against the HelloPayments JSON API.
// The zero value is not initialised; use NewHelloPayments.
type HelloPayments struct {
	api           *apiClient
	webhookSecret string
	testMode      bool
	schedule      fees.Schedule
	now           func() time.Time
}

// NewHelloPayments validates cfg and returns a ready adapter.
func NewHelloPayments(cfg Config) (HelloPayments, error) {
	if err := requireKey(HelloPaymentsName, cfg); err != nil {
		return HelloPayments{}, err
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = helloPaymentsLiveURL
		if cfg.TestMode {
			base = helloPaymentsSandboxURL
		}
	}
	return HelloPayments{
		api:           newAPIClient(HelloPaymentsName, base, cfg, decodeHelloPaymentsError),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		testMode:      cfg.TestMode,
		schedule:      HelloPaymentsSchedule(),
		now:           cfg.clock(),
	}, nil
}

func (h HelloPayments) Name() string     { return HelloPaymentsName }
func (h HelloPayments) IsTestMode() bool { return h.testMode }

func (h HelloPayments) Schedule() fees.Schedule { return HelloPaymentsSchedule() }

func (h HelloPayments) CalculateFee(amount int64) fees.Breakdown {
	b, _ := fees.CalculateFee(amount, fees.MethodCard, HelloPaymentsSchedule())
	return b
}

func (h HelloPayments) ready() error {
	if h.api == nil {
		return ErrNotInitialized
	}
	return nil
}

// wire types

type hpAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type hpCustomer struct {
	ID                     string            `json:"id,omitempty"`
	Email                  string            `json:"email"`
	FirstName              string            `json:"first_name,omitempty"`
	LastName               string            `json:"last_name,omitempty"`
	Phone                  string            `json:"phone,omitempty"`
	Address                *hpAddress        `json:"address,omitempty"`
	Metadata               map[string]string `json:"metadata,omitempty"`
	DefaultPaymentMethodID string            `json:"default_payment_method_id,omitempty"`
}

type hpCard struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

type hpBank struct {
	BankName    string `json:"bank_name"`
	Last4       string `json:"last4"`
	AccountType string `json:"account_type"`
}

type hpPaymentMethod struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Type       string    `json:"type"`
	Card       *hpCard   `json:"card,omitempty"`
	Bank       *hpBank   `json:"bank_account,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type hpPayment struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	CustomerID     string            `json:"customer_id"`
	PaymentMethod  *hpPaymentMethod  `json:"payment_method,omitempty"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	FailureMessage string            `json:"failure_message,omitempty"`
	ReceiptURL     string            `json:"receipt_url,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type hpRefund struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"payment_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type hpSubscription struct {
	ID                 string            `json:"id"`
	CustomerID         string            `json:"customer_id"`
	PaymentMethodID    string            `json:"payment_method_id"`
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	Interval           string            `json:"interval"`
	Status             string            `json:"status"`
	CurrentPeriodStart time.Time         `json:"current_period_start"`
	CurrentPeriodEnd   time.Time         `json:"current_period_end"`
	NextPaymentDate    *time.Time        `json:"next_payment_date,omitempty"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason       string            `json:"cancel_reason,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

type hpList[T any] struct {
	Data []T `json:"data"`
}

type hpErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeHelloPaymentsError(_ int, body []byte) *VendorError {
	var e hpErrorBody
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Message == "" {
		return nil
	}
	return &VendorError{Code: e.Error.Code, Message: e.Error.Message}
}

// payments

func (h HelloPayments) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	if err := validatePaymentRequest(req); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"amount":            req.Amount,
		"currency":          strings.ToLower(req.Currency),
		"customer_id":       req.CustomerID,
		"payment_method_id": req.PaymentMethodID,
		"description":       req.Description,
		"metadata":          req.Metadata,
		"capture":           true,
	}
	c, err := jsonCall(http.MethodPost, "/payments", payload, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	var out hpPayment
	if err := h.api.do(ctx, c, &out); err != nil {
		return nil, err
	}
	p := h.toPayment(out)
	if req.MethodType != "" {
		applyFees(p, h.schedule, req.MethodType)
	}
	return p, nil
}

func (h HelloPayments) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	var out hpPayment
	found, err := h.api.get(ctx, "/payments/"+url.PathEscape(id), &out)
	if err != nil || !found {
		return nil, err
	}
	return h.toPayment(out), nil
}

func (h HelloPayments) ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	q := url.Values{}
	if req.CustomerID != "" {
		q.Set("customer_id", req.CustomerID)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	path := "/payments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out hpList[hpPayment]
	if _, err := h.api.get(ctx, path, &out); err != nil {
		return nil, err
	}
	payments := make([]Payment, 0, len(out.Data))
	for _, p := range out.Data {
		payments = append(payments, *h.toPayment(p))
	}
	return payments, nil
}

// customers

func (h HelloPayments) UpsertCustomer(ctx context.Context, cust Customer) (*Customer, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cust.Email) == "" {
		return nil, invalid("email", "is required")
	}
	body := fromCustomer(cust)
	method, path := http.MethodPost, "/customers"
	if cust.ID != "" {
		method, path = http.MethodPut, "/customers/"+url.PathEscape(cust.ID)
	}
	// PUT is idempotent on the id so it may be retried.
	key := ""
	if method == http.MethodPut {
		key = "customer-" + cust.ID
	}
	c, err := jsonCall(method, path, body, key)
	if err != nil {
		return nil, err
	}
	var out hpCustomer
	if err := h.api.do(ctx, c, &out); err != nil {
		return nil, mustExist(err, "customer", cust.ID)
	}
	return toCustomer(out), nil
}

func (h HelloPayments) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	out, found, err := h.rawCustomer(ctx, id)
	if err != nil || !found {
		return nil, err
	}
	return toCustomer(out), nil
}

func (h HelloPayments) rawCustomer(ctx context.Context, id string) (hpCustomer, bool, error) {
	var out hpCustomer
	found, err := h.api.get(ctx, "/customers/"+url.PathEscape(id), &out)
	return out, found, err
}

func (h HelloPayments) DeleteCustomer(ctx context.Context, id string) error {
	if err := h.ready(); err != nil {
		return err
	}
	return ignoreNotFound(h.api.do(ctx, call{method: http.MethodDelete, path: "/customers/" + url.PathEscape(id)}, nil))
}

// payment methods

func (h HelloPayments) CreatePaymentMethod(ctx context.Context, req CreatePaymentMethodRequest) (*PaymentMethod, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	if req.CustomerID == "" {
		return nil, invalid("customerId", "is required")
	}
	if req.Token == "" {
		return nil, invalid("token", "is required")
	}
	payload := map[string]any{"type": hpMethodType(req.Type), "token": req.Token}
	c, err := jsonCall(http.MethodPost, "/customers/"+url.PathEscape(req.CustomerID)+"/payment_methods", payload, "")
	if err != nil {
		return nil, err
	}
	var out hpPaymentMethod
	if err := h.api.do(ctx, c, &out); err != nil {
		return nil, mustExist(err, "customer", req.CustomerID)
	}
	if req.SetDefault {
		if err := h.SetDefaultPaymentMethod(ctx, req.CustomerID, out.ID); err != nil {
			return nil, err
		}
		pm := toPaymentMethod(out, out.ID)
		return &pm, nil
	}
	cust, _, err := h.rawCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	pm := toPaymentMethod(out, cust.DefaultPaymentMethodID)
	return &pm, nil
}

func (h HelloPayments) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	cust, found, err := h.rawCustomer(ctx, customerID)
	if err != nil || !found {
		return []PaymentMethod{}, err
	}
	var out hpList[hpPaymentMethod]
	if _, err := h.api.get(ctx, "/customers/"+url.PathEscape(customerID)+"/payment_methods", &out); err != nil {
		return nil, err
	}
	methods := make([]PaymentMethod, 0, len(out.Data))
	for _, m := range out.Data {
		methods = append(methods, toPaymentMethod(m, cust.DefaultPaymentMethodID))
	}
	return methods, nil
}

func (h HelloPayments) DeletePaymentMethod(ctx context.Context, id string) error {
	if err := h.ready(); err != nil {
		return err
	}
	return ignoreNotFound(h.api.do(ctx, call{method: http.MethodDelete, path: "/payment_methods/" + url.PathEscape(id)}, nil))
}

func (h HelloPayments) SetDefaultPaymentMethod(ctx context.Context, customerID, methodID string) error {
	if err := h.ready(); err != nil {
		return err
	}
	if customerID == "" || methodID == "" {
		return invalid("paymentMethodId", "customer and method are required")
	}
	payload := map[string]string{"payment_method_id": methodID}
	c, err := jsonCall(http.MethodPut, "/customers/"+url.PathEscape(customerID)+"/default_payment_method", payload, "default-"+customerID+"-"+methodID)
	if err != nil {
		return err
	}
	return mustExist(h.api.do(ctx, c, nil), "customer", customerID)
}

// subscriptions

func (h HelloPayments) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	if err := validateSubscriptionRequest(req); err != nil {
		return nil, err
	}
	start := h.now().UTC()
	end := AddInterval(start, req.Interval)
	payload := map[string]any{
		"customer_id":          req.CustomerID,
		"payment_method_id":    req.PaymentMethodID,
		"amount":               req.Amount,
		"currency":             strings.ToLower(req.Currency),
		"interval":             string(req.Interval),
		"description":          req.Description,
		"metadata":             req.Metadata,
		"current_period_start": start,
		"current_period_end":   end,
	}
	c, err := jsonCall(http.MethodPost, "/subscriptions", payload, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	var out hpSubscription
	if err := h.api.do(ctx, c, &out); err != nil {
		return nil, err
	}
	sub := h.toSubscription(out)
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end
	sub.NextPaymentDate = &end
	return sub, nil
}

func (h HelloPayments) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	var out hpSubscription
	found, err := h.api.get(ctx, "/subscriptions/"+url.PathEscape(id), &out)
	if err != nil || !found {
		return nil, err
	}
	return h.toSubscription(out), nil
}

func (h HelloPayments) CancelSubscription(ctx context.Context, id string, opts CancelOptions) (*Subscription, error) {
	current, err := h.existingSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(current, SubscriptionCancelled); err != nil {
		return nil, err
	}
	payload := map[string]any{"at_period_end": !opts.CancelImmediately, "reason": opts.Reason}
	c, err := jsonCall(http.MethodPost, "/subscriptions/"+url.PathEscape(id)+"/cancel", payload, "")
	if err != nil {
		return nil, err
	}
	var out hpSubscription
	if err := h.api.do(ctx, c, &out); err != nil {
		return nil, mustExist(err, "subscription", id)
	}
	sub := h.toSubscription(out)
	markCancelled(sub, current, opts, h.now().UTC())
	return sub, nil
}

func (h HelloPayments) PauseSubscription(ctx context.Context, id string) (*Subscription, error) {
	return h.toggle(ctx, id, "pause", SubscriptionPaused)
}

func (h HelloPayments) ResumeSubscription(ctx context.Context, id string) (*Subscription, error) {
	return h.toggle(ctx, id, "resume", SubscriptionActive)
}

func (h HelloPayments) toggle(ctx context.Context, id, action string, to SubscriptionStatus) (*Subscription, error) {
	current, err := h.existingSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(current, to); err != nil {
		return nil, err
	}
	c := call{method: http.MethodPost, path: "/subscriptions/" + url.PathEscape(id) + "/" + action}
	var out hpSubscription
	if err := h.api.do(ctx, c, &out); err != nil {
		return nil, mustExist(err, "subscription", id)
	}
	sub := h.toSubscription(out)
	sub.Status = to
	keepPeriod(sub, current)
	return sub, nil
}

func (h HelloPayments) existingSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub, err := h.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	return sub, nil
}

// refunds

func (h HelloPayments) CreateRefund(ctx context.Context, req CreateRefundRequest) (*Refund, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	p, err := h.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("payment %s: %w", req.PaymentID, ErrNotFound)
	}
	if err := refundableStatus(p); err != nil {
		return nil, err
	}
	prior, err := h.ListRefunds(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	amount, err := resolveRefundAmount(p, prior, req.Amount)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{"amount": amount, "reason": req.Reason}
	c, err := jsonCall(http.MethodPost, "/payments/"+url.PathEscape(req.PaymentID)+"/refunds", payload, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	var out hpRefund
	if err := h.api.do(ctx, c, &out); err != nil {
		return nil, mustExist(err, "payment", req.PaymentID)
	}
	r := toHPRefund(out)
	return &r, nil
}

func (h HelloPayments) ListRefunds(ctx context.Context, paymentID string) ([]Refund, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	var out hpList[hpRefund]
	if _, err := h.api.get(ctx, "/payments/"+url.PathEscape(paymentID)+"/refunds", &out); err != nil {
		return nil, err
	}
	refunds := make([]Refund, 0, len(out.Data))
	for _, r := range out.Data {
		refunds = append(refunds, toHPRefund(r))
	}
	return refunds, nil
}

// webhooks

type hpEvent struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

var helloPaymentsEvents = map[string]EventType{
	"payment.completed":        EventPaymentSucceeded,
	"payment.declined":         EventPaymentFailed,
	"payment.in_transit":       EventPaymentProcessing,
	"payment.voided":           EventPaymentCancelled,
	"payment.refunded":         EventPaymentRefunded,
	"refund.completed":         EventRefundSucceeded,
	"refund.declined":          EventRefundFailed,
	"subscription.started":     EventSubscriptionCreated,
	"subscription.changed":     EventSubscriptionUpdated,
	"subscription.suspended":   EventSubscriptionPaused,
	"subscription.reactivated": EventSubscriptionResumed,
	"subscription.ended":       EventSubscriptionCancelled,
}

// ParseWebhookEvent verifies the hex HMAC-SHA256 of payload and normalises the event.
func (h HelloPayments) ParseWebhookEvent(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	if err := h.verify(payload, signature); err != nil {
		return nil, err
	}
	var evt hpEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, invalid("payload", err.Error())
	}
	typ, ok := helloPaymentsEvents[evt.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventIgnored, evt.Event)
	}
	out := &WebhookEvent{ID: evt.ID, Type: typ, Provider: HelloPaymentsName, CreatedAt: evt.CreatedAt}
	switch {
	case strings.HasPrefix(evt.Event, "payment."):
		var p hpPayment
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return nil, invalid("data", err.Error())
		}
		out.Payment = h.toPayment(p)
	case strings.HasPrefix(evt.Event, "refund."):
		var r hpRefund
		if err := json.Unmarshal(evt.Data, &r); err != nil {
			return nil, invalid("data", err.Error())
		}
		refund := toHPRefund(r)
		out.Refund = &refund
	default:
		var s hpSubscription
		if err := json.Unmarshal(evt.Data, &s); err != nil {
			return nil, invalid("data", err.Error())
		}
		out.Subscription = h.toSubscription(s)
	}
	return out, nil
}

func (h HelloPayments) verify(payload []byte, signature string) error {
	if h.webhookSecret == "" {
		return &SignatureVerificationError{Provider: HelloPaymentsName, Reason: "webhook secret not configured"}
	}
	provided := strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if provided == "" {
		return &SignatureVerificationError{Provider: HelloPaymentsName, Reason: "missing signature"}
	}
	expected := SignHelloPayments(h.webhookSecret, payload)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(provided))) {
		return &SignatureVerificationError{Provider: HelloPaymentsName, Reason: "signature mismatch"}
	}
	return nil
}

// SignHelloPayments computes the signature HelloPayments sends for payload.
func SignHelloPayments(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// mapping

func normaliseHelloPaymentsStatus(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "in_transit":
		return StatusProcessing
	case "completed":
		return StatusSucceeded
	case "declined", "error":
		return StatusFailed
	case "voided":
		return StatusCancelled
	case "refunded":
		return StatusRefunded
	default:
		return StatusPending
	}
}

func normaliseHelloPaymentsSubscription(status string) SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return SubscriptionActive
	case "suspended":
		return SubscriptionPaused
	case "past_due":
		return SubscriptionPastDue
	case "ended", "cancelled":
		return SubscriptionCancelled
	default:
		return SubscriptionIncomplete
	}
}

func normaliseHelloPaymentsRefund(status string) RefundStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed":
		return RefundSucceeded
	case "declined":
		return RefundFailed
	default:
		return RefundPending
	}
}

func hpMethodType(t MethodType) string {
	if t.FeeMethod() == fees.MethodACH {
		return "bank_account"
	}
	return "card"
}

func (h HelloPayments) toPayment(in hpPayment) *Payment {
	p := &Payment{
		ID:             in.ID,
		Provider:       HelloPaymentsName,
		Amount:         in.Amount,
		Currency:       strings.ToUpper(in.Currency),
		Status:         normaliseHelloPaymentsStatus(in.Status),
		AmountRefunded: in.AmountRefunded,
		Description:    in.Description,
		Metadata:       in.Metadata,
		FailureReason:  in.FailureMessage,
		ReceiptURL:     in.ReceiptURL,
		CreatedAt:      in.CreatedAt,
		UpdatedAt:      in.UpdatedAt,
	}
	if in.CustomerID != "" {
		p.Customer = &Customer{ID: in.CustomerID}
	}
	methodType := MethodTypeCard
	if in.PaymentMethod != nil {
		pm := toPaymentMethod(*in.PaymentMethod, "")
		p.PaymentMethod = &pm
		methodType = pm.Type
	}
	applyFees(p, h.schedule, methodType)
	return p
}

func toPaymentMethod(in hpPaymentMethod, defaultID string) PaymentMethod {
	pm := PaymentMethod{
		ID:         in.ID,
		CustomerID: in.CustomerID,
		Type:       MethodTypeCard,
		IsDefault:  defaultID != "" && in.ID == defaultID,
		CreatedAt:  in.CreatedAt,
	}
	if in.Type == "bank_account" || in.Type == "ach" {
		pm.Type = MethodTypeBankAccount
	}
	if in.Card != nil {
		pm.Card = &CardDetails{Brand: in.Card.Brand, Last4: in.Card.Last4, ExpMonth: in.Card.ExpMonth, ExpYear: in.Card.ExpYear}
	}
	if in.Bank != nil {
		pm.BankAccount = &BankAccountDetails{BankName: in.Bank.BankName, Last4: in.Bank.Last4, AccountType: in.Bank.AccountType}
	}
	return pm
}

func fromCustomer(c Customer) hpCustomer {
	out := hpCustomer{
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Phone:     c.Phone,
		Metadata:  c.Metadata,
	}
	if c.Address != nil {
		out.Address = &hpAddress{
			Line1: c.Address.Line1, Line2: c.Address.Line2, City: c.Address.City,
			State: c.Address.State, PostalCode: c.Address.PostalCode, Country: c.Address.Country,
		}
	}
	return out
}

func toCustomer(in hpCustomer) *Customer {
	c := &Customer{
		ID:        in.ID,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
		Metadata:  in.Metadata,
	}
	if in.Address != nil {
		c.Address = &Address{
			Line1: in.Address.Line1, Line2: in.Address.Line2, City: in.Address.City,
			State: in.Address.State, PostalCode: in.Address.PostalCode, Country: in.Address.Country,
		}
	}
	return c
}

func (h HelloPayments) toSubscription(in hpSubscription) *Subscription {
	sub := &Subscription{
		ID:                 in.ID,
		Provider:           HelloPaymentsName,
		Amount:             in.Amount,
		Currency:           strings.ToUpper(in.Currency),
		Interval:           Interval(in.Interval),
		Status:             normaliseHelloPaymentsSubscription(in.Status),
		CurrentPeriodStart: in.CurrentPeriodStart,
		CurrentPeriodEnd:   in.CurrentPeriodEnd,
		NextPaymentDate:    in.NextPaymentDate,
		CancelAtPeriodEnd:  in.CancelAtPeriodEnd,
		CancelledAt:        in.CancelledAt,
		CancelReason:       in.CancelReason,
		Metadata:           in.Metadata,
		CreatedAt:          in.CreatedAt,
		UpdatedAt:          in.UpdatedAt,
	}
	if in.CustomerID != "" {
		sub.Customer = &Customer{ID: in.CustomerID}
	}
	if in.PaymentMethodID != "" {
		sub.PaymentMethod = &PaymentMethod{ID: in.PaymentMethodID, CustomerID: in.CustomerID}
	}
	if sub.CurrentPeriodEnd.IsZero() && !sub.CurrentPeriodStart.IsZero() {
		sub.CurrentPeriodEnd = AddInterval(sub.CurrentPeriodStart, sub.Interval)
	}
	return sub
}

func toHPRefund(in hpRefund) Refund {
	return Refund{
		ID:        in.ID,
		PaymentID: in.PaymentID,
		Amount:    in.Amount,
		Status:    normaliseHelloPaymentsRefund(in.Status),
		Reason:    in.Reason,
		CreatedAt: in.CreatedAt,
	}
}
