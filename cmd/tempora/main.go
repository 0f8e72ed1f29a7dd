package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tempora-app/tempora/internal/app"
	"github.com/tempora-app/tempora/internal/audit"
	"github.com/tempora-app/tempora/internal/auth"
	"github.com/tempora-app/tempora/internal/capability"
	"github.com/tempora-app/tempora/internal/impersonation"
	"github.com/tempora-app/tempora/internal/observability"
	"github.com/tempora-app/tempora/internal/platform/cache"
	"github.com/tempora-app/tempora/internal/platform/db"
	"github.com/tempora-app/tempora/internal/rbac"
	"github.com/tempora-app/tempora/internal/shared"
	"github.com/tempora-app/tempora/internal/tenants"
	"github.com/tempora-app/tempora/internal/users"
	"github.com/tempora-app/tempora/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
	auditLogger := shared.NewAuditLogger(dbpool)
	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audit.NewHandler(logger, auditService)

	tokenIssuer := auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL)
	sessionStore := auth.NewSessionStore(redisClient, cfg.SessionTTL)

	tenantsService := tenants.NewService(tenants.NewRepository(dbpool))
	tenantsHandler := tenants.NewHandler(logger, tenantsService)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(usersRepo, authRepo, sessionStore, tokenIssuer, auth.LockoutPolicy{
		Threshold: cfg.LockoutThreshold,
		Window:    cfg.LockoutWindow,
		Duration:  cfg.LockoutDuration,
	}, logger)
	authHandler := auth.NewHandler(logger, authService)
	authenticator := auth.Middleware{Tokens: tokenIssuer, Sessions: sessionStore, Logger: logger}

	capabilityRepo := capability.NewRepository(dbpool)
	catalog := capability.NewCatalog(capabilityRepo)
	if err := catalog.Seed(ctx, capability.CoreSeed()); err != nil {
		logger.Error("seed capabilities", slog.Any("error", err))
		os.Exit(1)
	}

	rbacRepo := rbac.NewRepository(dbpool)
	resolver := rbac.NewResolver(rbacRepo)
	cachedResolver := rbac.NewCachedResolver(resolver, redisClient, cfg.AuthzCacheTTL, logger, metrics)

	rbacService := rbac.NewService(rbacRepo, catalog, cachedResolver, auditLogger)
	if _, err := rbacService.EnsureAdminRole(ctx); err != nil {
		logger.Error("ensure admin role", slog.Any("error", err))
		os.Exit(1)
	}
	rbacHandler := rbac.NewHandler(logger, rbacService, cachedResolver, catalog)

	gate := rbac.Middleware{
		Resolver: cachedResolver,
		Lockouts: authService,
		Logger:   logger,
		Metrics:  metrics,
	}

	impersonationRepo := impersonation.NewRepository(dbpool)
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
	impersonationHandler := impersonation.NewHandler(logger, impersonationService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Authenticator:        authenticator,
		Gate:                 gate,
		AuthHandler:          authHandler,
		AuditHandler:         auditHandler,
		TenantsHandler:       tenantsHandler,
		UsersHandler:         usersHandler,
		RBACHandler:          rbacHandler,
		ImpersonationHandler: impersonationHandler,
		JobHandler:           jobHandler,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
