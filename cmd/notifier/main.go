// Command notifier consumes booking notifications from the broker and
// delivers them as templated email.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/mailer"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

func main() {
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

	templates, err := mailer.LoadTemplates()
	if err != nil {
		slog.Error("mail templates invalid", slog.Any("error", err))
		os.Exit(1)
	}

	// Without a mail API the notifier still drains the topic and logs each message.
	var deliverer domain.Notifier = mailer.LogNotifier{}
	if cfg.MailAPIURL != "" {
		client, err := mailer.New(cfg, templates)
		if err != nil {
			slog.Error("mailer init failed", slog.Any("error", err))
			os.Exit(1)
		}
		deliverer = client
	} else {
		slog.Warn("MAIL_API_URL not set; notifications are logged, not sent")
	}

	consumer, err := redpanda.NewConsumer(ctx, cfg.KafkaBrokers, cfg.NotifierGroup, cfg.NotificationTopic, deliverer)
	if err != nil {
		slog.Error("notification consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           opsMux(consumer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("notifier metrics server error", slog.Any("error", err))
		}
	}()

	slog.Info("starting notifier",
		slog.String("env", cfg.AppEnv),
		slog.String("topic", cfg.NotificationTopic),
		slog.String("group", cfg.NotifierGroup),
		slog.Any("templates", templates.Keys()))

	if err := consumer.Run(ctx); err != nil {
		slog.Error("notification consumer stopped", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	consumer.Close(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	slog.Info("notifier stopped")
}

// opsMux serves /metrics and a /healthz driven by the poller health.
func opsMux(consumer *redpanda.Consumer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !consumer.Healthy() {
			http.Error(w, "consumer unhealthy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
