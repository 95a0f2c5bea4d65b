package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-giving/internal/config"
	"github.com/noah-isme/backend-giving/internal/donation"
	"github.com/noah-isme/backend-giving/internal/jobs"
	"github.com/noah-isme/backend-giving/internal/links"
	"github.com/noah-isme/backend-giving/internal/lock"
	"github.com/noah-isme/backend-giving/internal/obs"
	"github.com/noah-isme/backend-giving/internal/payment"
	"github.com/noah-isme/backend-giving/internal/ratelimit"
	"github.com/noah-isme/backend-giving/internal/repo"
)

// Infra holds the connections shared by the API and the worker.
type Infra struct {
	DB    repo.DB
	Redis redis.UniversalClient
	// Tasks enqueues background jobs; nil disables period-end scheduling.
	Tasks jobs.Enqueuer
}

// Services is the wired domain layer.
type Services struct {
	Provider  payment.Provider
	Links     *links.Service
	Donations *donation.Service
}

// NewPool connects a pgx pool with query tracing and checks it with a ping.
func NewPool(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewRedis connects a Redis client instrumented with redisotel.
func NewRedis(ctx context.Context, redisURL string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewTaskClient builds an asynq client on the configured Redis.
func NewTaskClient(redisURL string) (*asynq.Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url for tasks: %w", err)
	}
	return asynq.NewClient(opt), nil
}

// NewLimiterStore wires a rate limiter store backed by Redis.
func NewLimiterStore(rdb redis.UniversalClient) (limiter.Store, error) {
	return ratelimit.NewRedisStore(rdb, "giving:ratelimit")
}

// RunMigrations applies pending migrations; an up-to-date schema is not an error.
func RunMigrations(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// NewProvider initialises the configured payment adapter.
func NewProvider(cfg *config.Config, logger zerolog.Logger) (payment.Provider, error) {
	return payment.New(cfg.Payment.Provider, payment.Config{
		APIKey:        cfg.Payment.APIKey,
		WebhookSecret: cfg.Payment.WebhookSecret,
		TestMode:      cfg.Payment.TestMode,
		BaseURL:       cfg.Payment.BaseURL,
		Timeout:       cfg.Payment.HTTPTimeout,
		ProductID:     cfg.Payment.ProductID,
		Logger:        &logger,
	})
}

// NewEventLog selects the processed-webhook store named by WEBHOOK_EVENT_LOG.
func NewEventLog(cfg *config.Config, infra Infra) (donation.EventLog, error) {
	switch cfg.WebhookEventLog {
	case config.EventLogPostgres:
		if infra.DB == nil {
			return nil, errors.New("postgres event log requires a database")
		}
		return repo.WebhookEventRepo{DB: infra.DB}, nil
	case config.EventLogRedis, "":
		if infra.Redis == nil {
			return nil, errors.New("redis event log requires redis")
		}
		return donation.RedisEventLog{Client: infra.Redis, TTL: cfg.WebhookReplayTTL}, nil
	default:
		return nil, fmt.Errorf("unknown webhook event log %q", cfg.WebhookEventLog)
	}
}

// NewServices wires the provider, link and donation services over infra.
func NewServices(cfg *config.Config, infra Infra, logger zerolog.Logger) (*Services, error) {
	if infra.DB == nil {
		return nil, errors.New("database is required for payment links")
	}
	if infra.Redis == nil {
		return nil, errors.New("redis is required for refund locks")
	}
	provider, err := NewProvider(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialise payment provider: %w", err)
	}
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("initialise id node: %w", err)
	}
	linkSvc, err := links.NewService(links.ServiceConfig{
		Store:           repo.LinkRepo{DB: infra.DB},
		Node:            node,
		PublicBaseURL:   cfg.PublicBaseURL,
		DefaultCurrency: cfg.DefaultCurrency,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise link service: %w", err)
	}
	events, err := NewEventLog(cfg, infra)
	if err != nil {
		return nil, err
	}
	var scheduler donation.Scheduler
	if infra.Tasks != nil {
		scheduler = jobs.Scheduler{Client: infra.Tasks}
	}
	donationSvc, err := donation.NewService(donation.ServiceConfig{
		Provider:        provider,
		Locker:          lock.Locker{R: infra.Redis, RetryBackoff: 50 * time.Millisecond, MaxWait: 5 * time.Second},
		RefundLockTTL:   cfg.RefundLockTTL,
		Links:           linkSvc,
		Events:          events,
		Scheduler:       scheduler,
		DefaultCurrency: cfg.DefaultCurrency,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise donation service: %w", err)
	}
	return &Services{
		Provider:  provider,
		Links:     linkSvc,
		Donations: donationSvc,
	}, nil
}
