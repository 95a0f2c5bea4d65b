package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-giving/internal/resilience"
)

const maxErrorBody = 64 << 10

// errVendorNotFound is returned by apiClient.do on a 404 so lookups can map it to nil.
var errVendorNotFound = errors.New("payment: vendor returned not found")

// apiClient performs authenticated calls against a vendor REST API.
type apiClient struct {
	vendor     string
	baseURL    string
	apiKey     string
	http       resilience.HTTPClient
	logger     zerolog.Logger
	decodeErr  func(status int, body []byte) *VendorError
	userAgent  string
	apiVersion string
}

func newAPIClient(vendor, baseURL string, cfg Config, decodeErr func(int, []byte) *VendorError) *apiClient {
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	attempts := cfg.MaxReadAttempts
	if attempts <= 0 {
		attempts = 3
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("vendor", vendor).Logger()
	}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Vendor:       vendor,
		Window:       20,
		MinRequests:  10,
		FailureRatio: 0.5,
		Cooldown:     30 * time.Second,
		Logger:       logger,
	})
	return &apiClient{
		vendor:  vendor,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		http: resilience.HTTPClient{
			Client:      base,
			Breaker:     breaker,
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: attempts,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		logger:    logger,
		decodeErr: decodeErr,
		userAgent: "backend-giving/1.0",
	}
}

type call struct {
	method      string
	path        string
	body        []byte
	contentType string
	idemKey     string
}

func jsonCall(method, path string, payload any, idemKey string) (call, error) {
	c := call{method: method, path: path, idemKey: idemKey}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return c, fmt.Errorf("%s: encode request: %w", path, err)
		}
		c.body = b
		c.contentType = "application/json"
	}
	return c, nil
}

// do executes c and decodes a 2xx JSON response into out.
func (a *apiClient) do(ctx context.Context, c call, out any) error {
	var body io.Reader
	if c.body != nil {
		body = bytes.NewReader(c.body)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, a.baseURL+c.path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.userAgent)
	if c.contentType != "" {
		req.Header.Set("Content-Type", c.contentType)
	}
	if c.idemKey != "" {
		req.Header.Set("Idempotency-Key", c.idemKey)
	}
	if a.apiVersion != "" {
		req.Header.Set("Stripe-Version", a.apiVersion)
	}

	start := time.Now()
	resp, err := a.http.Do(ctx, req)
	if err != nil {
		a.logger.Error().Err(err).Str("method", c.method).Str("path", c.path).Msg("vendor_request_failed")
		return fmt.Errorf("%s %s: %w", c.method, c.path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	a.logger.Debug().
		Str("method", c.method).
		Str("path", c.path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("vendor_request")

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return errVendorNotFound
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		vErr := a.decodeErr(resp.StatusCode, raw)
		if vErr == nil {
			vErr = &VendorError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		vErr.Vendor = a.vendor
		vErr.StatusCode = resp.StatusCode
		return vErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", c.method, c.path, err)
	}
	return nil
}

// get performs a GET and reports found=false on a vendor 404.
func (a *apiClient) get(ctx context.Context, path string, out any) (bool, error) {
	err := a.do(ctx, call{method: http.MethodGet, path: path}, out)
	if errors.Is(err, errVendorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// mustExist converts a vendor 404 on a mutating call into ErrNotFound.
func mustExist(err error, what, id string) error {
	if errors.Is(err, errVendorNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return err
}
