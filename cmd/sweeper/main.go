package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/smukkama/airfield-alerts/internal/alerting"
	"github.com/smukkama/airfield-alerts/internal/database"
	"github.com/smukkama/airfield-alerts/internal/httpapi"
	"github.com/smukkama/airfield-alerts/internal/observability"
	"github.com/smukkama/airfield-alerts/internal/queue"
	"github.com/smukkama/airfield-alerts/internal/timer"
	"github.com/smukkama/airfield-alerts/internal/weather"
	"github.com/smukkama/airfield-alerts/pkg/config"
)

const leaseKey = "airfield-alerts:sweep-lease"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// A sweep cannot run without a usable provider.
	if err := cfg.Weather.Validate(); err != nil {
		logger.Error("invalid weather provider configuration", "error", err)
		os.Exit(1)
	}

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

	var provider weather.Provider
	switch cfg.Weather.Provider {
	case config.ProviderSimulated:
		provider = weather.NewSimulatedProvider(clockwork.NewRealClock(), time.Minute)
	default:
		provider = weather.NewOpenWeatherClient(cfg.Weather.APIKey, cfg.Weather.BaseURL, cfg.Weather.Timeout, metrics, logger)
	}
	logger.Info("weather provider configured", "provider", cfg.Weather.Provider, "timeout", cfg.Weather.Timeout)

	var lease alerting.Lease
	if redisClient := connectRedis(ctx, cfg.Redis, logger); redisClient != nil {
		defer redisClient.Close()
		provider = weather.NewCachedProvider(provider, redisClient, cfg.Weather.CacheTTL, metrics, logger)
		lease = alerting.NewRedisLease(redisClient, leaseKey)
		logger.Info("redis cache and sweep lease enabled", "cache_ttl", cfg.Weather.CacheTTL, "lock_ttl", cfg.Sweep.LockTTL)
	}

	if err := queue.EnsureTopics(cfg.Kafka.Brokers, []string{cfg.Kafka.TopicAlerts}, 3, 1, logger); err != nil {
		logger.Warn("could not ensure kafka topics", "error", err)
	}
	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts)

	policy, err := alerting.NewPolicy(cfg.Sweep.DedupPolicy, db, metrics, logger)
	if err != nil {
		logger.Error("invalid dedup policy", "error", err)
		os.Exit(1)
	}

	sweeper := alerting.NewSweeper(alerting.SweeperDeps{
		Thresholds: db,
		Alerts:     db,
		Provider:   provider,
		Policy:     policy,
		Publisher:  producer,
		Lease:      lease,
		Metrics:    metrics,
		Logger:     logger,
	}, alerting.SweeperConfig{
		Concurrency:  cfg.Sweep.Concurrency,
		FetchTimeout: cfg.Weather.Timeout,
		LockTTL:      cfg.Sweep.LockTTL,
		AlertTTL:     cfg.AlertTTL,
	})

	runSweep := func() {
		if _, err := sweeper.Run(ctx); err != nil {
			logger.Error("sweep failed", "error", err)
		}
	}

	timers := timer.NewTimerManager(nil)
	timers.Start()
	if err := timers.Every("sweep", cfg.Sweep.Interval, runSweep); err != nil {
		logger.Error("failed to schedule sweep", "error", err)
		os.Exit(1)
	}
	go runSweep()
	logger.Info("sweeper started", "interval", cfg.Sweep.Interval, "concurrency", cfg.Sweep.Concurrency, "policy", policy.Name())

	srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.Deps{
		Ready:   sweeper,
		Alerts:  db,
		Sweeps:  sweeper,
		Metrics: metrics,
		Logger:  logger,
	})
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	timers.Stop()
	if err := producer.Close(); err != nil {
		logger.Error("kafka producer close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// connectRedis returns nil when Redis is disabled or unreachable; sweeps then
// run uncached and unlocked.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) *redis.Client {
	if !cfg.Enabled {
		logger.Info("redis disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, continuing without cache and lease", "addr", cfg.Addr, "error", err)
		client.Close()
		return nil
	}
	return client
}
