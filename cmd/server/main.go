// Command server starts the mock interview HTTP API.
//
// Usage:
//
//	server                    run the API
//	server hash-api-key KEY   print an ADMIN_API_KEY_HASH value for KEY
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/mailer"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-mock-interview/internal/app"
	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/usecase"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-api-key" {
		os.Exit(hashAPIKey(os.Args[2:]))
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Infra: DB pool and schema
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	cleanupSvc := postgres.NewCleanupService(postgres.PoolBeginner(pool), cfg.DataRetentionDays)
	go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
	slog.Info("cleanup service started",
		slog.Int("retention_days", cfg.DataRetentionDays),
		slog.Duration("interval", cfg.CleanupInterval))

	// Redis backs the LLM rate limiter and the booking lock; both are optional.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}

	// Notifications go to the broker; the notifier process turns them into mail.
	var (
		notifier  domain.Notifier = mailer.LogNotifier{}
		publisher *redpanda.Publisher
	)
	if cfg.NotificationsEnabled {
		publisher, err = redpanda.NewPublisher(ctx, cfg.KafkaBrokers, cfg.NotificationTopic)
		if err != nil {
			slog.Error("notification publisher init failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer publisher.Close()
		notifier = publisher
	} else {
		slog.Warn("notifications disabled; booking events are only logged")
	}

	svcs, err := app.BuildServices(ctx, cfg, app.Deps{DB: pool, Redis: rdb, Notifier: notifier})
	if err != nil {
		slog.Error("service wiring failed", slog.Any("error", err))
		os.Exit(1)
	}

	health := buildHealth(pool, rdb, publisher)
	srv := httpserver.NewServer(svcs.Practice, svcs.Bookings, svcs.Availability, health, cfg.ScheduleLocation())
	handler := app.BuildRouter(cfg, srv, httpserver.NewIdentity(cfg))

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting",
			slog.Int("port", cfg.Port),
			slog.String("env", cfg.AppEnv),
			slog.String("llm_provider", cfg.LLMProvider))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", slog.Any("error", err))
	}
}

// buildHealth keeps typed-nil clients out of the readiness registry.
func buildHealth(pool usecase.Pinger, rdb *redis.Client, publisher *redpanda.Publisher) *usecase.HealthService {
	var (
		redisPing app.RedisPinger
		kafkaPing usecase.Pinger
	)
	if rdb != nil {
		redisPing = rdb
	}
	if publisher != nil {
		kafkaPing = publisher
	}
	return app.BuildHealthService(pool, redisPing, kafkaPing, 2*time.Second)
}

func hashAPIKey(args []string) int {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintln(os.Stderr, "usage: server hash-api-key KEY")
		return 2
	}
	hash, err := httpserver.HashAPIKey(args[0], httpserver.DefaultArgon2Params)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash failed:", err)
		return 1
	}
	fmt.Println(hash)
	return 0
}
