package payment

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config is the initialisation input shared by every adapter.
type Config struct {
	APIKey        string
	WebhookSecret string
	TestMode      bool
	// BaseURL overrides the vendor host; used for sandboxes and tests.
	BaseURL string
	// HTTPClient defaults to an otelhttp-instrumented client.
	HTTPClient *http.Client
	// Timeout bounds each vendor attempt.
	Timeout time.Duration
	// MaxReadAttempts bounds retries of idempotent vendor calls.
	MaxReadAttempts int
	// ProductID is the vendor product recurring donations are priced under.
	ProductID string
	Logger    *zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Factory builds an initialised adapter.
type Factory func(cfg Config) (Provider, error)

var factories = map[string]Factory{
	HelloPaymentsName: func(cfg Config) (Provider, error) { return NewHelloPayments(cfg) },
	StripeName:        func(cfg Config) (Provider, error) { return NewStripe(cfg) },
}

// New returns the adapter registered under name (case-insensitive).
func New(name string, cfg Config) (Provider, error) {
	f, ok := factories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownProvider, name, strings.Join(Names(), ", "))
	}
	return f(cfg)
}

// Names lists the registered provider names.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c Config) clock() func() time.Time {
	if c.Now != nil {
		return c.Now
	}
	return time.Now
}

func requireKey(vendor string, cfg Config) error {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return invalid("apiKey", vendor+" api key is required")
	}
	return nil
}

var signatureHeaders = map[string]string{
	HelloPaymentsName: "X-HelloPayments-Signature",
	StripeName:        "Stripe-Signature",
}

// SignatureHeader names the request header carrying the provider's webhook signature.
func SignatureHeader(provider string) string {
	if h, ok := signatureHeaders[strings.ToLower(provider)]; ok {
		return h
	}
	return "X-Webhook-Signature"
}
