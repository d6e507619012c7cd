package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calloway-labs/cvforge/internal"
	"github.com/calloway-labs/cvforge/internal/ai"
	aimock "github.com/calloway-labs/cvforge/internal/ai/mock"
	"github.com/calloway-labs/cvforge/internal/ai/openai"
	"github.com/calloway-labs/cvforge/internal/billing"
	"github.com/calloway-labs/cvforge/internal/cache"
	"github.com/calloway-labs/cvforge/internal/handler"
	"github.com/calloway-labs/cvforge/internal/metrics"
	"github.com/calloway-labs/cvforge/internal/middleware"
	"github.com/calloway-labs/cvforge/internal/ratelimit"
	"github.com/calloway-labs/cvforge/internal/repository"
	"github.com/calloway-labs/cvforge/internal/service"
	"github.com/calloway-labs/cvforge/internal/storage"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize the rate-limit store. Redis when configured; otherwise an
	// in-process store that is lost on restart.
	var store cache.Store
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		defer redisClient.Close()
		store = cache.NewRedis(redisClient)
		logger.Info("Rate limit store ready", "backend", "redis")
	} else {
		store = cache.NewMemory(ctx, 5*time.Minute)
		logger.Warn("REDIS_URL not set, rate limit counters are in-process only")
	}

	// Initialize the rate-limit engine
	policy := ratelimit.NewPolicy()
	counter := ratelimit.NewCounter(store)
	throttler := ratelimit.NewThrottler(policy, counter, logger, cfg.BaseURL+"/pricing")
	reporter := ratelimit.NewStatusReporter(policy, counter, logger)

	guardCfg := ratelimit.DefaultIPGuardConfig()
	if cfg.IPRequestsPerMinute > 0 {
		guardCfg.RequestsPerMinute = cfg.IPRequestsPerMinute
	}
	if cfg.IPRequestsPerHour > 0 {
		guardCfg.RequestsPerHour = cfg.IPRequestsPerHour
	}
	if cfg.IPSuspiciousThreshold > 0 {
		guardCfg.SuspiciousThreshold = cfg.IPSuspiciousThreshold
	}
	if cfg.IPBlockDuration > 0 {
		guardCfg.BlockDuration = cfg.IPBlockDuration
	}
	guard := ratelimit.NewIPGuard(store, guardCfg, logger)

	// Initialize file storage
	var fileStore storage.Storage
	switch cfg.StorageProvider {
	case "r2":
		fileStore, err = storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	default:
		fileStore, err = storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("Storage ready", "provider", cfg.StorageProvider)

	// Initialize the AI provider
	var provider ai.Provider
	if cfg.AIProvider == "openai" {
		provider, err = openai.New(openai.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			ProviderConfig: ai.ProviderConfig{
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("ai provider initialization failed: %w", err)
		}
	} else {
		provider = aimock.New(logger)
		logger.Warn("AI_PROVIDER is 'mock', responses are canned")
	}

	// Initialize billing. Without Stripe credentials the checkout and
	// portal endpoints return 503 and the webhook route is not registered.
	var billingService billing.Service
	prices := billing.PriceConfig{
		BasicMonthlyPriceID:   cfg.StripeBasicMonthlyPriceID,
		BasicYearlyPriceID:    cfg.StripeBasicYearlyPriceID,
		ProMonthlyPriceID:     cfg.StripeProMonthlyPriceID,
		ProYearlyPriceID:      cfg.StripeProYearlyPriceID,
		PremiumMonthlyPriceID: cfg.StripePremiumMonthlyPriceID,
		PremiumYearlyPriceID:  cfg.StripePremiumYearlyPriceID,
	}
	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, prices)
		logger.Info("Billing ready")
	} else {
		logger.Warn("Stripe credentials not set, billing endpoints are disabled")
	}

	// Initialize repository and services
	repo := repository.New(db)
	userService := service.NewUserService(repo, logger)
	questionnaireService := service.NewQuestionnaireService(repo, provider, logger)

	// Initialize middleware
	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(userService, logger)
	ipGuardMw := middleware.NewIPGuardMiddleware(guard, logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	throttleMw := middleware.NewThrottleMiddleware(throttler, logger)

	// Middleware stacks. Every route passes through the IP guard first so
	// blocked addresses are turned away before any other work happens.
	base := middleware.Stack(
		ipGuardMw.Handler,
		securityMw.Handler,
		loggingMw.Handler,
		metrics.Middleware,
	)
	public := middleware.Stack(base, authMw.WithUser, throttleMw.Limit(ratelimit.ScopeAPICalls))
	authed := middleware.Stack(public, authMw.RequireUser)
	questionnaireScoped := middleware.Stack(authed, throttleMw.Limit(ratelimit.ScopeQuestionnaires))
	aiScoped := middleware.Stack(authed, throttleMw.Limit(ratelimit.ScopeAIResponses))
	uploadScoped := middleware.Stack(authed, throttleMw.Limit(ratelimit.ScopeUploads))

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	handler.NewAuthHandler(userService, logger).RegisterRoutes(mux, public, authed)
	handler.NewQuestionnaireHandler(questionnaireService, logger).
		RegisterRoutes(mux, authed, questionnaireScoped, aiScoped)
	handler.NewStatusHandler(reporter, logger).RegisterRoutes(mux, authed)
	handler.NewUploadHandler(fileStore, questionnaireService, logger).RegisterRoutes(mux, authed, uploadScoped)
	handler.NewBillingHandler(billingService, userService, policy, cfg.BaseURL, prices, logger).
		RegisterRoutes(mux, public, authed)
	handler.NewHealthHandler(db, redisClient, cfg.AIProvider == "openai", logger).RegisterRoutes(mux)

	if billingService != nil {
		handler.NewWebhookHandler(billingService, userService, logger).RegisterRoutes(mux)
	}

	if cfg.AdminUsername != "" {
		adminAuth := middleware.Stack(base,
			middleware.NewBasicAuthMiddleware(cfg.AdminUsername, cfg.AdminPassword, "admin").Handler)
		handler.NewAdminHandler(counter, guard, logger).RegisterRoutes(mux, adminAuth)
	} else {
		logger.Warn("ADMIN_USERNAME not set, admin endpoints are disabled")
	}

	// Metrics endpoint
	var metricsHandler http.Handler = promhttp.Handler()
	if cfg.MetricsUsername != "" || cfg.MetricsPassword != "" {
		metricsHandler = middleware.NewBasicAuthMiddleware(
			cfg.MetricsUsername, cfg.MetricsPassword, "metrics").Handler(metricsHandler)
	} else {
		logger.Warn("Metrics endpoint is unprotected, set METRICS_USERNAME and METRICS_PASSWORD")
	}
	mux.Handle("GET /metrics", metricsHandler)

	// ==========================================================================
	// Background session cleanup
	// ==========================================================================

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if err := userService.DeleteExpiredSessions(cleanupCtx); err != nil {
					logger.Error("session cleanup failed", "error", err)
				}
			}
		}
	}()

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
