package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/smukkama/airfield-alerts/internal/alerting"
	"github.com/smukkama/airfield-alerts/internal/database"
	"github.com/smukkama/airfield-alerts/internal/httpapi"
	"github.com/smukkama/airfield-alerts/internal/observability"
	"github.com/smukkama/airfield-alerts/internal/queue"
	"github.com/smukkama/airfield-alerts/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(ctx, cfg.MigrationsDir, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	topics := []string{cfg.Kafka.TopicEvaluations, cfg.Kafka.TopicAlerts}
	if err := queue.EnsureTopics(cfg.Kafka.Brokers, topics, 3, 1, logger); err != nil {
		logger.Warn("could not ensure kafka topics", "error", err)
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvaluations, cfg.Kafka.GroupID)
	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts)

	policy, err := alerting.NewPolicy(cfg.Evaluator.DedupPolicy, db, metrics, logger)
	if err != nil {
		logger.Error("invalid dedup policy", "error", err)
		os.Exit(1)
	}

	evaluator := alerting.NewStreamEvaluator(consumer, policy, producer,
		alerting.BandsFromConfig(cfg.Bands), cfg.AlertTTL, metrics, logger)

	srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.Deps{
		Ready:   evaluator,
		Alerts:  db,
		Metrics: metrics,
		Logger:  logger,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := evaluator.Run(ctx); err != nil {
			logger.Error("stream evaluator error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	<-done
	if err := consumer.Close(); err != nil {
		logger.Error("kafka consumer close error", "error", err)
	}
	if err := producer.Close(); err != nil {
		logger.Error("kafka producer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
