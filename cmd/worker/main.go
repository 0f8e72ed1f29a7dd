package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/tempora-app/tempora/internal/app"
	"github.com/tempora-app/tempora/internal/auth"
	"github.com/tempora-app/tempora/internal/capability"
	"github.com/tempora-app/tempora/internal/impersonation"
	jobmetrics "github.com/tempora-app/tempora/internal/jobs"
	"github.com/tempora-app/tempora/internal/observability"
	"github.com/tempora-app/tempora/internal/platform/cache"
	"github.com/tempora-app/tempora/internal/platform/db"
	"github.com/tempora-app/tempora/internal/rbac"
	"github.com/tempora-app/tempora/internal/shared"
	"github.com/tempora-app/tempora/internal/users"
	"github.com/tempora-app/tempora/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	tokenIssuer := auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL)
	sessionStore := auth.NewSessionStore(redisClient, cfg.SessionTTL)

	usersRepo := users.NewRepository(pool)
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(usersRepo, authRepo, sessionStore, tokenIssuer, auth.LockoutPolicy{
		Threshold: cfg.LockoutThreshold,
		Window:    cfg.LockoutWindow,
		Duration:  cfg.LockoutDuration,
	}, logger)

	catalog := capability.NewCatalog(capability.NewRepository(pool))
	rbacRepo := rbac.NewRepository(pool)
	resolver := rbac.NewResolver(rbacRepo)
	cachedResolver := rbac.NewCachedResolver(resolver, redisClient, cfg.AuthzCacheTTL, logger, metrics)
	rbacService := rbac.NewService(rbacRepo, catalog, cachedResolver, auditLogger)

	impersonationRepo := impersonation.NewRepository(pool)
	impersonationService := impersonation.NewService(
		impersonationRepo,
		usersRepo,
		rbacService,
		tokenIssuer,
		authService,
		cachedResolver,
		auditLogger,
		metrics,
		logger,
	)

	sweeps := jobs.Sweeps{
		Lockouts:              authRepo,
		Impersonations:        impersonationService,
		Logger:                logger,
		Metrics:               jobmetrics.NewMetrics(metrics.Registerer()),
		LoginAttemptRetention: cfg.LoginAttemptRetention,
		ImpersonationMaxAge:   cfg.ImpersonationMaxAge,
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers:  sweeps.Handlers(),
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: jobs.NewLockoutSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/5 * * * *", Task: jobs.NewImpersonationExpiryTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: jobs.NewLoginAttemptPruneTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	// Kick an expiry sweep right away so sessions that outlived a
	// worker outage are closed without waiting for the next cron tick.
	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	if _, err := queueClient.EnqueueImpersonationExpiry(ctx); err != nil {
		logger.Warn("enqueue impersonation expiry", slog.Any("error", err))
	}
	if err := queueClient.Close(); err != nil {
		logger.Warn("queue client close", slog.Any("error", err))
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
