package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/config"
	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/handler"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/alert"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/cache"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/client"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/kvstore"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/observability"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/repartos-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("backend_url", cfg.BackendURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("seen_limit", cfg.SeenLimit),
		zap.String("kv_backend", cfg.KVBackend),
		zap.Duration("session_ttl", cfg.SessionTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.TracingEnabled, cfg.OTLPEndpoint, "repartos-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	outletCache := cache.New[[]domain.Outlet](cfg.CacheTTL)
	defer outletCache.Close()

	// --- Preferences store ---
	kv, closeKV, err := kvstore.Open(kvstore.Options{
		Backend:       cfg.KVBackend,
		File:          cfg.KVFile,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		TTL:           cfg.SessionTTL,
	}, logger)
	if err != nil {
		logger.Fatal("failed to open preferences store", zap.Error(err))
	}
	defer closeKV()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("delivery-backend", func(err error) bool {
		return err == nil || client.IsClientError(err)
	}, logger)

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	backend := client.NewBackendClient(httpClient, cfg.BackendURL, cb, resilienceCfg)

	// --- Services ---
	authSvc := service.NewAuthService(backend, kv, cfg.JWTSecret, cfg.SessionTTL, logger)
	dashSvc := service.NewDashboardService(
		backend,
		service.NewCachedOutlets(backend, outletCache, metrics),
		alert.Feed{},
		service.DashboardConfig{
			PollInterval:   cfg.PollInterval,
			SeenLimit:      cfg.SeenLimit,
			MaxConcurrency: cfg.MaxConcurrency,
		},
		metrics,
		logger,
	)

	// --- Router ---
	router := handler.NewRouter(authSvc, dashSvc, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}
	dashSvc.Close()

	logger.Info("server stopped")
}
