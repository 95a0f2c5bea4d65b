package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	LogLevel           string
	LogFormat          string
	DatabaseURL        string
	RedisURL           string
	PublicBaseURL      string
	DefaultCurrency    string
	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	MetricsNamespace   string
	MetricsEnabled     bool
	SecurityHeaders    bool
	NodeID             int64

	Payment PaymentConfig

	RefundLockTTL      time.Duration
	WebhookEventLog    string
	WebhookReplayTTL   time.Duration
	IdempotencyTTL     time.Duration
	RateLimitDonations string

	WorkerConcurrency int
	Tracing           TracingConfig
}

// PaymentConfig selects and configures the payment processor adapter.
type PaymentConfig struct {
	Provider      string
	APIKey        string
	WebhookSecret string
	TestMode      bool
	BaseURL       string
	HTTPTimeout   time.Duration
	ProductID     string
}

// TracingConfig controls OTLP export.
type TracingConfig struct {
	Enabled       bool
	Endpoint      string
	SamplingRatio float64
}

// Supported WEBHOOK_EVENT_LOG backends.
const (
	EventLogRedis    = "redis"
	EventLogPostgres = "postgres"
)

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		LogLevel:           valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat:          valueOrDefault(k.String("LOG_FORMAT"), "json"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		PublicBaseURL:      strings.TrimRight(valueOrDefault(k.String("PUBLIC_BASE_URL"), "http://localhost:8080"), "/"),
		DefaultCurrency:    strings.ToUpper(valueOrDefault(k.String("DEFAULT_CURRENCY"), "USD")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     parseInt64(k.String("BODY_LIMIT_BYTES"), 1<<20),
		MetricsNamespace:   valueOrDefault(k.String("METRICS_NAMESPACE"), "giving"),
		MetricsEnabled:     parseBool(valueOrDefault(k.String("METRICS_ENABLED"), "true")),
		SecurityHeaders:    parseBool(valueOrDefault(k.String("SECURITY_HEADERS"), "true")),
		NodeID:             parseInt64(k.String("NODE_ID"), 1),
		Payment: PaymentConfig{
			Provider:      strings.ToLower(valueOrDefault(k.String("PAYMENT_PROVIDER"), "hellopayments")),
			APIKey:        strings.TrimSpace(k.String("PAYMENT_API_KEY")),
			WebhookSecret: strings.TrimSpace(k.String("PAYMENT_WEBHOOK_SECRET")),
			TestMode:      parseBool(valueOrDefault(k.String("PAYMENT_TEST_MODE"), "true")),
			BaseURL:       strings.TrimSpace(k.String("PAYMENT_BASE_URL")),
			HTTPTimeout:   parseDuration(k.String("PAYMENT_HTTP_TIMEOUT"), "15s"),
			ProductID:     strings.TrimSpace(k.String("PAYMENT_PRODUCT_ID")),
		},
		RefundLockTTL:      parseDuration(k.String("REFUND_LOCK_TTL"), "30s"),
		WebhookEventLog:    strings.ToLower(valueOrDefault(k.String("WEBHOOK_EVENT_LOG"), EventLogRedis)),
		WebhookReplayTTL:   parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "168h"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitDonations: valueOrDefault(k.String("RATE_LIMIT_DONATIONS"), "30-M"),
		WorkerConcurrency:  int(parseInt64(k.String("WORKER_CONCURRENCY"), 10)),
		Tracing: TracingConfig{
			Enabled:       parseBool(k.String("OTEL_ENABLED")),
			Endpoint:      strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
			SamplingRatio: parseFloat(k.String("OTEL_SAMPLING_RATIO"), 1),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.Payment.APIKey == "" {
		return nil, errors.New("PAYMENT_API_KEY is required")
	}
	switch cfg.WebhookEventLog {
	case EventLogRedis, EventLogPostgres:
	default:
		return nil, fmt.Errorf("WEBHOOK_EVENT_LOG must be %q or %q, got %q", EventLogRedis, EventLogPostgres, cfg.WebhookEventLog)
	}
	if len(cfg.DefaultCurrency) != 3 {
		return nil, fmt.Errorf("DEFAULT_CURRENCY must be an ISO 4217 code, got %q", cfg.DefaultCurrency)
	}
	if cfg.NodeID > 1023 {
		return nil, fmt.Errorf("NODE_ID must be between 1 and 1023, got %d", cfg.NodeID)
	}
	if cfg.Payment.WebhookSecret == "" && cfg.IsProduction() {
		return nil, errors.New("PAYMENT_WEBHOOK_SECRET is required in production")
	}

	return cfg, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.AppEnv)) {
	case "prod", "production":
		return true
	}
	return false
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt64(value string, fallback int64) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v <= 0 || v > 1 {
		return fallback
	}
	return v
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
