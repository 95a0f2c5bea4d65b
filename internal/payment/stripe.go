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
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/backend-giving/internal/fees"
)

// StripeName is the registry key of the Stripe adapter.
const StripeName = "stripe"

const (
	stripeAPIURL     = "https://api.stripe.com/v1"
	stripeAPIVersion = "2024-06-20"
	// stripeTolerance bounds the age of a signed webhook timestamp.
	stripeTolerance = 5 * time.Minute
)

// StripeSchedule is Stripe's standard US pricing.
func StripeSchedule() fees.Schedule {
	return fees.Schedule{
		fees.MethodCard: {Percentage: 2.9, FixedCents: 30},
		fees.MethodACH:  {Percentage: 0.8, MaxFeeCents: fees.Cap(500)},
	}
}

// Stripe implements Provider against the Stripe REST API using form-encoded requests.
// The zero value is not initialised; use NewStripe.
type Stripe struct {
	api           *apiClient
	webhookSecret string
	testMode      bool
	productID     string
	schedule      fees.Schedule
	now           func() time.Time
}

// NewStripe validates cfg and returns a ready adapter. Test mode requires a test key.
func NewStripe(cfg Config) (Stripe, error) {
	if err := requireKey(StripeName, cfg); err != nil {
		return Stripe{}, err
	}
	key := strings.TrimSpace(cfg.APIKey)
	live := strings.HasPrefix(key, "sk_live_") || strings.HasPrefix(key, "rk_live_")
	if cfg.TestMode && live {
		return Stripe{}, invalid("apiKey", "live key supplied in test mode")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = stripeAPIURL
	}
	api := newAPIClient(StripeName, base, cfg, decodeStripeError)
	api.apiVersion = stripeAPIVersion
	return Stripe{
		api:           api,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		testMode:      cfg.TestMode,
		productID:     strings.TrimSpace(cfg.ProductID),
		schedule:      StripeSchedule(),
		now:           cfg.clock(),
	}, nil
}

func (s Stripe) Name() string     { return StripeName }
func (s Stripe) IsTestMode() bool { return s.testMode }

func (s Stripe) Schedule() fees.Schedule { return StripeSchedule() }

func (s Stripe) CalculateFee(amount int64) fees.Breakdown {
	b, _ := fees.CalculateFee(amount, fees.MethodCard, StripeSchedule())
	return b
}

func (s Stripe) ready() error {
	if s.api == nil {
		return ErrNotInitialized
	}
	return nil
}

// wire types

// stripeRef decodes a field Stripe returns either as an id string or, when
// expanded, as the full object.
type stripeRef[T any] struct {
	ID  string
	Obj *T
}

func (r *stripeRef[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &r.ID)
	}
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	var obj T
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	r.ID, r.Obj = head.ID, &obj
	return nil
}

type stripeAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type stripeCustomer struct {
	ID              string            `json:"id"`
	Deleted         bool              `json:"deleted"`
	Email           string            `json:"email"`
	Name            string            `json:"name"`
	Phone           string            `json:"phone"`
	Address         *stripeAddress    `json:"address"`
	Metadata        map[string]string `json:"metadata"`
	InvoiceSettings struct {
		DefaultPaymentMethod stripeRef[stripePaymentMethod] `json:"default_payment_method"`
	} `json:"invoice_settings"`
}

type stripePaymentMethod struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Customer stripeRef[struct{}]  `json:"customer"`
	Card     *stripeCard          `json:"card"`
	Bank     *stripeUSBankAccount `json:"us_bank_account"`
	Created  int64                `json:"created"`
	Metadata map[string]string    `json:"metadata"`
}

type stripeCard struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

type stripeUSBankAccount struct {
	BankName    string `json:"bank_name"`
	Last4       string `json:"last4"`
	AccountType string `json:"account_type"`
}

type stripeCharge struct {
	ID             string `json:"id"`
	AmountRefunded int64  `json:"amount_refunded"`
	Refunded       bool   `json:"refunded"`
	ReceiptURL     string `json:"receipt_url"`
}

type stripePaymentIntent struct {
	ID               string                         `json:"id"`
	Amount           int64                          `json:"amount"`
	Currency         string                         `json:"currency"`
	Status           string                         `json:"status"`
	Customer         stripeRef[struct{}]            `json:"customer"`
	PaymentMethod    stripeRef[stripePaymentMethod] `json:"payment_method"`
	MethodTypes      []string                       `json:"payment_method_types"`
	LatestCharge     stripeRef[stripeCharge]        `json:"latest_charge"`
	Description      string                         `json:"description"`
	Metadata         map[string]string              `json:"metadata"`
	Created          int64                          `json:"created"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type stripeRefund struct {
	ID            string              `json:"id"`
	Amount        int64               `json:"amount"`
	Status        string              `json:"status"`
	PaymentIntent stripeRef[struct{}] `json:"payment_intent"`
	Metadata      map[string]string   `json:"metadata"`
	Created       int64               `json:"created"`
}

type stripeSubscription struct {
	ID                   string                         `json:"id"`
	Status               string                         `json:"status"`
	Customer             stripeRef[struct{}]            `json:"customer"`
	DefaultPaymentMethod stripeRef[stripePaymentMethod] `json:"default_payment_method"`
	CurrentPeriodStart   int64                          `json:"current_period_start"`
	CurrentPeriodEnd     int64                          `json:"current_period_end"`
	CancelAtPeriodEnd    bool                           `json:"cancel_at_period_end"`
	CanceledAt           int64                          `json:"canceled_at"`
	PauseCollection      *struct {
		Behavior string `json:"behavior"`
	} `json:"pause_collection"`
	CancellationDetails *struct {
		Comment string `json:"comment"`
	} `json:"cancellation_details"`
	Items struct {
		Data []struct {
			Price struct {
				UnitAmount int64  `json:"unit_amount"`
				Currency   string `json:"currency"`
				Recurring  struct {
					Interval      string `json:"interval"`
					IntervalCount int    `json:"interval_count"`
				} `json:"recurring"`
			} `json:"price"`
			Quantity int64 `json:"quantity"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
	Created  int64             `json:"created"`
}

type stripeList[T any] struct {
	Data    []T  `json:"data"`
	HasMore bool `json:"has_more"`
}

type stripeErrorBody struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"error"`
}

func decodeStripeError(_ int, body []byte) *VendorError {
	var e stripeErrorBody
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Message == "" {
		return nil
	}
	code := e.Error.Code
	if e.Error.DeclineCode != "" {
		code = e.Error.DeclineCode
	}
	if code == "" {
		code = e.Error.Type
	}
	return &VendorError{Code: code, Message: e.Error.Message}
}

func formCall(method, path string, form url.Values, idemKey string) call {
	c := call{method: method, path: path, idemKey: idemKey}
	if len(form) > 0 {
		c.body = []byte(form.Encode())
		c.contentType = "application/x-www-form-urlencoded"
	}
	return c
}

func setMetadata(form url.Values, prefix string, md map[string]string) {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		form.Set(prefix+"["+k+"]", md[k])
	}
}

var paymentIntentExpand = url.Values{"expand[]": {"latest_charge", "payment_method"}}

// payments

func (s Stripe) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := validatePaymentRequest(req); err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("customer", req.CustomerID)
	form.Set("payment_method", req.PaymentMethodID)
	form.Set("payment_method_types[]", stripeMethodType(req.MethodType))
	form.Set("confirm", "true")
	form.Set("off_session", "true")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	setMetadata(form, "metadata", req.Metadata)
	form["expand[]"] = paymentIntentExpand["expand[]"]

	var out stripePaymentIntent
	if err := s.api.do(ctx, formCall(http.MethodPost, "/payment_intents", form, req.IdempotencyKey), &out); err != nil {
		return nil, err
	}
	p := s.toPayment(out)
	if req.MethodType != "" {
		applyFees(p, s.schedule, req.MethodType)
	}
	return p, nil
}

func (s Stripe) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var out stripePaymentIntent
	found, err := s.api.get(ctx, "/payment_intents/"+url.PathEscape(id)+"?"+paymentIntentExpand.Encode(), &out)
	if err != nil || !found {
		return nil, err
	}
	return s.toPayment(out), nil
}

func (s Stripe) ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	q := url.Values{"expand[]": {"data.latest_charge", "data.payment_method"}}
	if req.CustomerID != "" {
		q.Set("customer", req.CustomerID)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(min(req.Limit, 100)))
	}
	var out stripeList[stripePaymentIntent]
	if _, err := s.api.get(ctx, "/payment_intents?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	payments := make([]Payment, 0, len(out.Data))
	for _, pi := range out.Data {
		payments = append(payments, *s.toPayment(pi))
	}
	return payments, nil
}

// customers

func (s Stripe) UpsertCustomer(ctx context.Context, cust Customer) (*Customer, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cust.Email) == "" {
		return nil, invalid("email", "is required")
	}
	form := url.Values{}
	form.Set("email", cust.Email)
	if name := strings.TrimSpace(cust.FirstName + " " + cust.LastName); name != "" {
		form.Set("name", name)
	}
	if cust.Phone != "" {
		form.Set("phone", cust.Phone)
	}
	if a := cust.Address; a != nil {
		form.Set("address[line1]", a.Line1)
		form.Set("address[line2]", a.Line2)
		form.Set("address[city]", a.City)
		form.Set("address[state]", a.State)
		form.Set("address[postal_code]", a.PostalCode)
		form.Set("address[country]", a.Country)
	}
	md := map[string]string{}
	for k, v := range cust.Metadata {
		md[k] = v
	}
	md["first_name"] = cust.FirstName
	md["last_name"] = cust.LastName
	setMetadata(form, "metadata", md)

	path := "/customers"
	if cust.ID != "" {
		path += "/" + url.PathEscape(cust.ID)
	}
	var out stripeCustomer
	if err := s.api.do(ctx, formCall(http.MethodPost, path, form, ""), &out); err != nil {
		return nil, mustExist(err, "customer", cust.ID)
	}
	return toStripeCustomer(out), nil
}

func (s Stripe) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	out, found, err := s.rawCustomer(ctx, id)
	if err != nil || !found {
		return nil, err
	}
	return toStripeCustomer(out), nil
}

func (s Stripe) rawCustomer(ctx context.Context, id string) (stripeCustomer, bool, error) {
	var out stripeCustomer
	found, err := s.api.get(ctx, "/customers/"+url.PathEscape(id), &out)
	if err != nil || !found || out.Deleted {
		return out, false, err
	}
	return out, true, nil
}

func (s Stripe) DeleteCustomer(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return ignoreNotFound(s.api.do(ctx, call{method: http.MethodDelete, path: "/customers/" + url.PathEscape(id)}, nil))
}

// payment methods

func (s Stripe) CreatePaymentMethod(ctx context.Context, req CreatePaymentMethodRequest) (*PaymentMethod, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if req.CustomerID == "" {
		return nil, invalid("customerId", "is required")
	}
	if req.Token == "" {
		return nil, invalid("token", "is required")
	}
	form := url.Values{"customer": {req.CustomerID}}
	var out stripePaymentMethod
	path := "/payment_methods/" + url.PathEscape(req.Token) + "/attach"
	if err := s.api.do(ctx, formCall(http.MethodPost, path, form, "attach-"+req.Token+"-"+req.CustomerID), &out); err != nil {
		return nil, mustExist(err, "payment method", req.Token)
	}
	if req.SetDefault {
		if err := s.SetDefaultPaymentMethod(ctx, req.CustomerID, out.ID); err != nil {
			return nil, err
		}
		pm := toStripePaymentMethod(out, out.ID)
		return &pm, nil
	}
	cust, _, err := s.rawCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	pm := toStripePaymentMethod(out, cust.InvoiceSettings.DefaultPaymentMethod.ID)
	return &pm, nil
}

func (s Stripe) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	cust, found, err := s.rawCustomer(ctx, customerID)
	if err != nil || !found {
		return []PaymentMethod{}, err
	}
	var out stripeList[stripePaymentMethod]
	if _, err := s.api.get(ctx, "/customers/"+url.PathEscape(customerID)+"/payment_methods", &out); err != nil {
		return nil, err
	}
	methods := make([]PaymentMethod, 0, len(out.Data))
	for _, m := range out.Data {
		methods = append(methods, toStripePaymentMethod(m, cust.InvoiceSettings.DefaultPaymentMethod.ID))
	}
	return methods, nil
}

func (s Stripe) DeletePaymentMethod(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	path := "/payment_methods/" + url.PathEscape(id) + "/detach"
	return ignoreNotFound(s.api.do(ctx, formCall(http.MethodPost, path, nil, "detach-"+id), nil))
}

func (s Stripe) SetDefaultPaymentMethod(ctx context.Context, customerID, methodID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if customerID == "" || methodID == "" {
		return invalid("paymentMethodId", "customer and method are required")
	}
	form := url.Values{"invoice_settings[default_payment_method]": {methodID}}
	err := s.api.do(ctx, formCall(http.MethodPost, "/customers/"+url.PathEscape(customerID), form, ""), nil)
	return mustExist(err, "customer", customerID)
}

// subscriptions

func (s Stripe) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := validateSubscriptionRequest(req); err != nil {
		return nil, err
	}
	if s.productID == "" {
		return nil, invalid("productId", "stripe product for recurring donations is not configured")
	}
	interval, count := stripeRecurring(req.Interval)
	form := url.Values{}
	form.Set("customer", req.CustomerID)
	form.Set("default_payment_method", req.PaymentMethodID)
	form.Set("items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("items[0][price_data][product]", s.productID)
	form.Set("items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	form.Set("items[0][price_data][recurring][interval]", interval)
	form.Set("items[0][price_data][recurring][interval_count]", strconv.Itoa(count))
	form.Set("payment_behavior", "allow_incomplete")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	setMetadata(form, "metadata", req.Metadata)

	var out stripeSubscription
	if err := s.api.do(ctx, formCall(http.MethodPost, "/subscriptions", form, req.IdempotencyKey), &out); err != nil {
		return nil, err
	}
	sub := s.toSubscription(out)
	start := s.now().UTC()
	if out.CurrentPeriodStart > 0 {
		start = sub.CurrentPeriodStart
	}
	end := AddInterval(start, req.Interval)
	sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.NextPaymentDate = start, end, &end
	sub.Interval = req.Interval
	return sub, nil
}

func (s Stripe) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var out stripeSubscription
	found, err := s.api.get(ctx, "/subscriptions/"+url.PathEscape(id), &out)
	if err != nil || !found {
		return nil, err
	}
	return s.toSubscription(out), nil
}

func (s Stripe) CancelSubscription(ctx context.Context, id string, opts CancelOptions) (*Subscription, error) {
	current, err := s.existingSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(current, SubscriptionCancelled); err != nil {
		return nil, err
	}
	form := url.Values{}
	if opts.Reason != "" {
		form.Set("cancellation_details[comment]", opts.Reason)
	}
	var c call
	if opts.CancelImmediately {
		c = formCall(http.MethodDelete, "/subscriptions/"+url.PathEscape(id), form, "")
	} else {
		form.Set("cancel_at_period_end", "true")
		c = formCall(http.MethodPost, "/subscriptions/"+url.PathEscape(id), form, "")
	}
	var out stripeSubscription
	if err := s.api.do(ctx, c, &out); err != nil {
		return nil, mustExist(err, "subscription", id)
	}
	sub := s.toSubscription(out)
	markCancelled(sub, current, opts, s.now().UTC())
	return sub, nil
}

func (s Stripe) PauseSubscription(ctx context.Context, id string) (*Subscription, error) {
	return s.toggle(ctx, id, url.Values{"pause_collection[behavior]": {"void"}}, SubscriptionPaused)
}

func (s Stripe) ResumeSubscription(ctx context.Context, id string) (*Subscription, error) {
	// an empty value unsets pause_collection
	return s.toggle(ctx, id, url.Values{"pause_collection": {""}}, SubscriptionActive)
}

func (s Stripe) toggle(ctx context.Context, id string, form url.Values, to SubscriptionStatus) (*Subscription, error) {
	current, err := s.existingSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(current, to); err != nil {
		return nil, err
	}
	var out stripeSubscription
	if err := s.api.do(ctx, formCall(http.MethodPost, "/subscriptions/"+url.PathEscape(id), form, ""), &out); err != nil {
		return nil, mustExist(err, "subscription", id)
	}
	sub := s.toSubscription(out)
	sub.Status = to
	keepPeriod(sub, current)
	return sub, nil
}

func (s Stripe) existingSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub, err := s.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	return sub, nil
}

// refunds

func (s Stripe) CreateRefund(ctx context.Context, req CreateRefundRequest) (*Refund, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	p, err := s.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("payment %s: %w", req.PaymentID, ErrNotFound)
	}
	if err := refundableStatus(p); err != nil {
		return nil, err
	}
	prior, err := s.ListRefunds(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	amount, err := resolveRefundAmount(p, prior, req.Amount)
	if err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("payment_intent", req.PaymentID)
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("reason", "requested_by_customer")
	if req.Reason != "" {
		form.Set("metadata[reason]", req.Reason)
	}
	var out stripeRefund
	if err := s.api.do(ctx, formCall(http.MethodPost, "/refunds", form, req.IdempotencyKey), &out); err != nil {
		return nil, err
	}
	r := toStripeRefund(out)
	return &r, nil
}

func (s Stripe) ListRefunds(ctx context.Context, paymentID string) ([]Refund, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var refunds []Refund
	q := url.Values{"payment_intent": {paymentID}, "limit": {"100"}}
	for {
		var out stripeList[stripeRefund]
		if _, err := s.api.get(ctx, "/refunds?"+q.Encode(), &out); err != nil {
			return nil, err
		}
		for _, r := range out.Data {
			refunds = append(refunds, toStripeRefund(r))
		}
		if !out.HasMore || len(out.Data) == 0 {
			break
		}
		q.Set("starting_after", out.Data[len(out.Data)-1].ID)
	}
	if refunds == nil {
		refunds = []Refund{}
	}
	return refunds, nil
}

// webhooks

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

var stripePaymentEvents = map[string]EventType{
	"payment_intent.succeeded":      EventPaymentSucceeded,
	"payment_intent.payment_failed": EventPaymentFailed,
	"payment_intent.processing":     EventPaymentProcessing,
	"payment_intent.canceled":       EventPaymentCancelled,
}

var stripeSubscriptionEvents = map[string]EventType{
	"customer.subscription.created": EventSubscriptionCreated,
	"customer.subscription.updated": EventSubscriptionUpdated,
	"customer.subscription.paused":  EventSubscriptionPaused,
	"customer.subscription.resumed": EventSubscriptionResumed,
	"customer.subscription.deleted": EventSubscriptionCancelled,
}

// ParseWebhookEvent verifies the Stripe-Signature header value and normalises the event.
func (s Stripe) ParseWebhookEvent(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.verify(payload, signature); err != nil {
		return nil, err
	}
	var evt stripeEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, invalid("payload", err.Error())
	}
	if strings.TrimSpace(evt.ID) == "" {
		return nil, invalid("id", "event id missing")
	}
	out := &WebhookEvent{ID: evt.ID, Provider: StripeName, CreatedAt: unixTime(evt.Created)}

	if typ, ok := stripePaymentEvents[evt.Type]; ok {
		var pi stripePaymentIntent
		if err := json.Unmarshal(evt.Data.Object, &pi); err != nil {
			return nil, invalid("data", err.Error())
		}
		out.Type, out.Payment = typ, s.toPayment(pi)
		return out, nil
	}
	if typ, ok := stripeSubscriptionEvents[evt.Type]; ok {
		var sub stripeSubscription
		if err := json.Unmarshal(evt.Data.Object, &sub); err != nil {
			return nil, invalid("data", err.Error())
		}
		out.Type, out.Subscription = typ, s.toSubscription(sub)
		return out, nil
	}
	if strings.HasPrefix(evt.Type, "refund.") {
		var r stripeRefund
		if err := json.Unmarshal(evt.Data.Object, &r); err != nil {
			return nil, invalid("data", err.Error())
		}
		refund := toStripeRefund(r)
		switch refund.Status {
		case RefundSucceeded:
			out.Type = EventRefundSucceeded
		case RefundFailed:
			out.Type = EventRefundFailed
		default:
			return nil, fmt.Errorf("%w: %s (%s)", ErrEventIgnored, evt.Type, r.Status)
		}
		out.Refund = &refund
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrEventIgnored, evt.Type)
}

func (s Stripe) verify(payload []byte, header string) error {
	fail := func(reason string) error {
		return &SignatureVerificationError{Provider: StripeName, Reason: reason}
	}
	if s.webhookSecret == "" {
		return fail("webhook secret not configured")
	}
	if strings.TrimSpace(header) == "" {
		return fail("missing Stripe-Signature header")
	}
	ts, signatures, err := parseStripeSignature(header)
	if err != nil {
		return fail(err.Error())
	}
	signedAt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fail("invalid timestamp")
	}
	if age := s.now().Sub(time.Unix(signedAt, 0)); age > stripeTolerance || age < -stripeTolerance {
		return fail("timestamp outside tolerance")
	}
	expected := SignStripe(s.webhookSecret, ts, payload)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return fail("signature mismatch")
}

// SignStripe computes the v1 signature for payload signed at timestamp ts.
func SignStripe(secret, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(ts + "." + string(payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseStripeSignature(header string) (string, []string, error) {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return "", nil, fmt.Errorf("malformed signature header")
	}
	return ts, sigs, nil
}

// mapping

func normaliseStripePaymentStatus(pi stripePaymentIntent) Status {
	switch pi.Status {
	case "succeeded":
		if ch := pi.LatestCharge.Obj; ch != nil && ch.Refunded {
			return StatusRefunded
		}
		return StatusSucceeded
	case "processing":
		return StatusProcessing
	case "canceled":
		return StatusCancelled
	case "requires_payment_method":
		if pi.LastPaymentError != nil {
			return StatusFailed
		}
		return StatusPending
	default:
		return StatusPending
	}
}

func normaliseStripeSubscription(sub stripeSubscription) SubscriptionStatus {
	switch sub.Status {
	case "active", "trialing":
		if sub.PauseCollection != nil {
			return SubscriptionPaused
		}
		return SubscriptionActive
	case "paused":
		return SubscriptionPaused
	case "past_due", "unpaid":
		return SubscriptionPastDue
	case "canceled", "incomplete_expired":
		return SubscriptionCancelled
	default:
		return SubscriptionIncomplete
	}
}

func normaliseStripeRefund(status string) RefundStatus {
	switch status {
	case "succeeded":
		return RefundSucceeded
	case "failed", "canceled":
		return RefundFailed
	default:
		return RefundPending
	}
}

func stripeMethodType(t MethodType) string {
	if t.FeeMethod() == fees.MethodACH {
		return "us_bank_account"
	}
	return "card"
}

func stripeRecurring(i Interval) (string, int) {
	switch i {
	case IntervalWeekly:
		return "week", 1
	case IntervalQuarterly:
		return "month", 3
	case IntervalYearly:
		return "year", 1
	default:
		return "month", 1
	}
}

func intervalFromStripe(interval string, count int) Interval {
	switch {
	case interval == "week":
		return IntervalWeekly
	case interval == "year":
		return IntervalYearly
	case interval == "month" && count == 3:
		return IntervalQuarterly
	default:
		return IntervalMonthly
	}
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func (s Stripe) toPayment(in stripePaymentIntent) *Payment {
	created := unixTime(in.Created)
	p := &Payment{
		ID:          in.ID,
		Provider:    StripeName,
		Amount:      in.Amount,
		Currency:    strings.ToUpper(in.Currency),
		Status:      normaliseStripePaymentStatus(in),
		Description: in.Description,
		Metadata:    in.Metadata,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	if in.Customer.ID != "" {
		p.Customer = &Customer{ID: in.Customer.ID}
	}
	if in.LastPaymentError != nil {
		p.FailureReason = in.LastPaymentError.Message
	}
	if ch := in.LatestCharge.Obj; ch != nil {
		p.AmountRefunded = ch.AmountRefunded
		p.ReceiptURL = ch.ReceiptURL
	}
	methodType := stripeIntentMethodType(in.MethodTypes)
	if pm := in.PaymentMethod.Obj; pm != nil {
		mapped := toStripePaymentMethod(*pm, "")
		p.PaymentMethod = &mapped
		methodType = mapped.Type
	} else if in.PaymentMethod.ID != "" {
		p.PaymentMethod = &PaymentMethod{ID: in.PaymentMethod.ID, CustomerID: in.Customer.ID, Type: methodType}
	}
	applyFees(p, s.schedule, methodType)
	return p
}

// stripeIntentMethodType derives the rail from payment_method_types when the
// payment method is not expanded, as in webhook payloads.
func stripeIntentMethodType(types []string) MethodType {
	if len(types) == 1 && types[0] == "us_bank_account" {
		return MethodTypeACH
	}
	return MethodTypeCard
}

func toStripePaymentMethod(in stripePaymentMethod, defaultID string) PaymentMethod {
	pm := PaymentMethod{
		ID:         in.ID,
		CustomerID: in.Customer.ID,
		Type:       MethodTypeCard,
		IsDefault:  defaultID != "" && in.ID == defaultID,
		CreatedAt:  unixTime(in.Created),
	}
	if in.Type == "us_bank_account" {
		pm.Type = MethodTypeACH
	}
	if in.Card != nil {
		pm.Card = &CardDetails{Brand: in.Card.Brand, Last4: in.Card.Last4, ExpMonth: in.Card.ExpMonth, ExpYear: in.Card.ExpYear}
	}
	if in.Bank != nil {
		pm.BankAccount = &BankAccountDetails{BankName: in.Bank.BankName, Last4: in.Bank.Last4, AccountType: in.Bank.AccountType}
	}
	return pm
}

func toStripeCustomer(in stripeCustomer) *Customer {
	c := &Customer{
		ID:        in.ID,
		Email:     in.Email,
		Phone:     in.Phone,
		FirstName: in.Metadata["first_name"],
		LastName:  in.Metadata["last_name"],
	}
	if c.FirstName == "" && c.LastName == "" && in.Name != "" {
		first, last, _ := strings.Cut(in.Name, " ")
		c.FirstName, c.LastName = first, last
	}
	if len(in.Metadata) > 0 {
		c.Metadata = make(map[string]string, len(in.Metadata))
		for k, v := range in.Metadata {
			if k == "first_name" || k == "last_name" {
				continue
			}
			c.Metadata[k] = v
		}
	}
	if a := in.Address; a != nil {
		c.Address = &Address{Line1: a.Line1, Line2: a.Line2, City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country}
	}
	return c
}

func (s Stripe) toSubscription(in stripeSubscription) *Subscription {
	created := unixTime(in.Created)
	sub := &Subscription{
		ID:                 in.ID,
		Provider:           StripeName,
		Status:             normaliseStripeSubscription(in),
		CurrentPeriodStart: unixTime(in.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(in.CurrentPeriodEnd),
		CancelAtPeriodEnd:  in.CancelAtPeriodEnd,
		Metadata:           in.Metadata,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
	if len(in.Items.Data) > 0 {
		item := in.Items.Data[0]
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		sub.Amount = item.Price.UnitAmount * qty
		sub.Currency = strings.ToUpper(item.Price.Currency)
		sub.Interval = intervalFromStripe(item.Price.Recurring.Interval, item.Price.Recurring.IntervalCount)
	}
	if in.Customer.ID != "" {
		sub.Customer = &Customer{ID: in.Customer.ID}
	}
	if in.DefaultPaymentMethod.ID != "" {
		pm := PaymentMethod{ID: in.DefaultPaymentMethod.ID, CustomerID: in.Customer.ID, Type: MethodTypeCard}
		if obj := in.DefaultPaymentMethod.Obj; obj != nil {
			pm = toStripePaymentMethod(*obj, obj.ID)
		}
		sub.PaymentMethod = &pm
	}
	if in.CanceledAt > 0 {
		t := unixTime(in.CanceledAt)
		sub.CancelledAt = &t
	}
	if in.CancellationDetails != nil {
		sub.CancelReason = in.CancellationDetails.Comment
	}
	if sub.Status == SubscriptionActive && !sub.CurrentPeriodEnd.IsZero() && !sub.CancelAtPeriodEnd {
		next := sub.CurrentPeriodEnd
		sub.NextPaymentDate = &next
	}
	return sub
}

func toStripeRefund(in stripeRefund) Refund {
	return Refund{
		ID:        in.ID,
		PaymentID: in.PaymentIntent.ID,
		Amount:    in.Amount,
		Status:    normaliseStripeRefund(in.Status),
		Reason:    in.Metadata["reason"],
		CreatedAt: unixTime(in.Created),
	}
}
