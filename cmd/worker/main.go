package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-giving/internal/app"
	"github.com/noah-isme/backend-giving/internal/config"
	"github.com/noah-isme/backend-giving/internal/donation"
	"github.com/noah-isme/backend-giving/internal/jobs"
	"github.com/noah-isme/backend-giving/internal/obs"
	"github.com/noah-isme/backend-giving/internal/repo"
	"github.com/noah-isme/backend-giving/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	if err := resilience.Register(nil); err != nil {
		logger.Error().Err(err).Msg("register resilience metrics")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.Tracing.Enabled,
		ServiceName:   "giving-worker",
		Endpoint:      cfg.Tracing.Endpoint,
		SamplingRatio: cfg.Tracing.SamplingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	pool, err := app.NewPool(ctx, cfg.DatabaseURL, "giving-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise database")
	}
	defer pool.Close()

	redisClient, err := app.NewRedis(ctx, cfg.RedisURL, cfg.MetricsEnabled, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	taskClient, err := app.NewTaskClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise task client")
	}
	defer func() { _ = taskClient.Close() }()

	services, err := app.NewServices(cfg, app.Infra{DB: pool, Redis: redisClient, Tasks: taskClient}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for tasks")
	}

	var prune *jobs.PruneWebhookEventsHandler
	var scheduler *asynq.Scheduler
	if cfg.WebhookEventLog == config.EventLogPostgres {
		prune = &jobs.PruneWebhookEventsHandler{
			Pruner:    repo.WebhookEventRepo{DB: pool},
			Retention: cfg.WebhookReplayTTL,
			Logger:    logger,
		}
		scheduler = asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: jobs.Logger{L: logger}})
		if _, err := scheduler.Register("@hourly", jobs.NewPruneWebhookEventsTask(), asynq.TaskID(jobs.TypePruneWebhookEvents)); err != nil {
			logger.Fatal().Err(err).Msg("register prune schedule")
		}
		if err := scheduler.Start(); err != nil {
			logger.Fatal().Err(err).Msg("start scheduler")
		}
		defer scheduler.Shutdown()
	}

	mux := jobs.NewServeMux(jobs.FinalizeCancelHandler{Finalizer: services.Donations, Logger: logger}, prune)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    cfg.WorkerConcurrency,
		Logger:         jobs.Logger{L: logger},
		RetryDelayFunc: jobs.RetryDelay(donation.ErrNotDue),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error().Err(err).Str("task", task.Type()).Int("retry", retried).Int("max_retry", maxRetry).Msg("task failed")
		}),
	})

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Str("provider", services.Donations.ProviderName()).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
