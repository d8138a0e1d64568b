package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/config"
	"tokopos/backend/internal/events"
	"tokopos/backend/internal/jobs"
	"tokopos/backend/internal/metrics"
	"tokopos/backend/internal/service"
	pgstore "tokopos/backend/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := validateWorkerConfig(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	repo, err := pgstore.New(connectCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer repo.Close()

	redisCache := cache.NewRedisStatusCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisCache.Close()

	publishers := events.Fanout{cache.StatusInvalidator{Cache: redisCache}}
	if brokers := events.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(brokers, cfg.KafkaOrderTopic)
		defer kafkaPublisher.Close()
		publishers = append(publishers, kafkaPublisher)
	}

	m := metrics.New()
	svc := service.New(repo, publishers, logger, m)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Concurrency: cfg.WorkerConcurrency,
		SweepCron:   cfg.PendingSweepCron,
		Jobs:        jobs.NewOrderJobs(svc, cfg.PendingStaleAfter, logger, m),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	// Catch up on orders whose expiry tasks were lost while nothing was running.
	client := jobs.NewClient(redisOpts)
	if err := client.EnqueueSweep(ctx); err != nil {
		logger.Warn("initial pending sweep not enqueued", slog.Any("error", err))
	}
	_ = client.Close()

	logger.Info("worker started",
		slog.Int("concurrency", cfg.WorkerConcurrency),
		slog.String("sweep_cron", cfg.PendingSweepCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("worker stopped")
	return nil
}

func validateWorkerConfig(cfg config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for the worker")
	}
	if cfg.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required for the worker")
	}
	return nil
}
