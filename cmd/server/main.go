package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Priya8975/hookrelay/internal/api"
	"github.com/Priya8975/hookrelay/internal/config"
	"github.com/Priya8975/hookrelay/internal/engine"
	"github.com/Priya8975/hookrelay/internal/hook"
	"github.com/Priya8975/hookrelay/internal/plugins"
	"github.com/Priya8975/hookrelay/internal/store"
	"github.com/Priya8975/hookrelay/internal/webhook"
	ws "github.com/Priya8975/hookrelay/internal/websocket"
	"github.com/Priya8975/hookrelay/internal/worker"
	"github.com/Priya8975/hookrelay/migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	verifier, err := webhook.NewVerifier(cfg.WebhookSecret, cfg.SignatureAlgorithm)
	if err != nil {
		logger.Error("invalid webhook configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL is optional; without it events and runs are only logged.
	var (
		pgStore  *store.PostgresStore
		recorder engine.Recorder
		services = hook.Services{Logger: logger, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
		deps     = api.Deps{WebhookPath: cfg.WebhookPath}
	)
	if cfg.DatabaseURL != "" {
		pgStore, err = store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		logger.Info("connected to PostgreSQL")

		if err := pgStore.RunMigrations(ctx, migrations.FS); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrations applied")

		recorder = pgStore
		services.Store = pgStore
		deps.Events, deps.Metrics, deps.DB = pgStore, pgStore, pgStore
	}

	// Redis is optional; it enables delivery dedup and per-handler circuit breakers.
	var (
		redisClient *redis.Client
		dedup       *engine.Deduplicator
		breaker     *engine.CircuitBreaker
		limiter     *engine.RateLimiter
	)
	if cfg.RedisURL != "" {
		redisClient, err = store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		logger.Info("connected to Redis")

		services.Redis = redisClient
		dedup = engine.NewDeduplicator(redisClient, cfg.DedupTTL, logger)
		breaker = engine.NewCircuitBreaker(redisClient, logger)
		deps.Breaker = breaker
		if cfg.HandlerRateLimit > 0 {
			limiter = engine.NewRateLimiter(redisClient, cfg.HandlerRateLimit, cfg.HandlerRateWindow, logger)
		}
	}

	// The hub outlives the signal so handlers draining during shutdown can
	// still report.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := ws.NewHub(logger)
	go hub.Run(hubCtx)

	observers := []worker.Observer{engine.NewRunObserver(recorder, hub, logger)}
	if breaker != nil {
		observers = append(observers, breaker.Observe)
	}
	supervisor := worker.NewSupervisor(worker.Config{
		MaxConcurrent: cfg.MaxConcurrentHandlers,
		Timeout:       cfg.HandlerTimeout,
	}, logger, observers...)
	supervisor.Start(context.Background())

	registry := hook.NewRegistry(logger)
	if err := plugins.Register(registry); err != nil {
		logger.Error("failed to register handlers", "error", err)
		os.Exit(1)
	}

	dispatcher, err := engine.NewDispatcher(verifier, registry, supervisor, logger, engine.Options{
		Headers:      webhook.Headers{Event: cfg.EventHeader, Delivery: cfg.DeliveryHeader},
		MaxBodyBytes: cfg.MaxBodyBytes,
		Services:     services,
		Dedup:        dedup,
		Breaker:      breaker,
		RateLimiter:  limiter,
		Recorder:     recorder,
		Notifier:     hub,
	})
	if err != nil {
		logger.Error("failed to create dispatcher", "error", err)
		os.Exit(1)
	}

	deps.Webhook = dispatcher
	deps.Registry = registry
	deps.Hub = hub

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			"port", cfg.Port,
			"webhook_path", cfg.WebhookPath,
			"handlers", registry.Len(),
			"max_concurrent_handlers", cfg.MaxConcurrentHandlers,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := supervisor.Stop(shutdownCtx); err != nil {
		logger.Error("handlers did not finish before shutdown deadline", "error", err)
	}
	stopHub()

	logger.Info("server stopped")
}
