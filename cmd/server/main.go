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

	"github.com/hibiken/asynq"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/config"
	"tokopos/backend/internal/events"
	"tokopos/backend/internal/httpapi"
	"tokopos/backend/internal/jobs"
	"tokopos/backend/internal/metrics"
	"tokopos/backend/internal/payment"
	"tokopos/backend/internal/service"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/store/memory"
	pgstore "tokopos/backend/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
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

	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closers := make([]func() error, 0, 4)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close error", slog.Any("error", err))
			}
		}
	}()

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	statusCache := cache.StatusCache(cache.NoopStatusCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisStatusCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, status cache disabled", slog.Any("error", err))
		} else {
			statusCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("status cache: redis")
		}
	}

	publishers := events.Fanout{cache.StatusInvalidator{Cache: statusCache}}
	if brokers := events.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(brokers, cfg.KafkaOrderTopic)
		publishers = append(publishers, kafkaPublisher)
		closers = append(closers, kafkaPublisher.Close)
		logger.Info("order events: kafka", slog.String("topic", cfg.KafkaOrderTopic))
	}

	m := metrics.New()
	svc := service.New(repo, publishers, logger, m)

	var scheduler payment.ExpiryScheduler
	if cfg.RedisAddr != "" {
		jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		scheduler = jobClient
		closers = append(closers, jobClient.Close)
	}

	var gateway payment.Gateway
	if cfg.GatewayEnabled() {
		gateway = payment.NewSnapClient(payment.SnapConfig{
			BaseURL:   cfg.GatewayBaseURL,
			ServerKey: cfg.GatewayServerKey,
			Timeout:   cfg.GatewayTimeout,
			Acquirer:  cfg.GatewayAcquirer,
		}, logger)
	} else {
		logger.Warn("GATEWAY_SERVER_KEY is empty; payment sessions are disabled")
	}

	payments := payment.NewAdapter(svc, gateway, statusCache, scheduler, payment.Config{
		OrderPrefix:     cfg.GatewayOrderPrefix,
		SessionTTL:      cfg.GatewaySessionTTL,
		CacheTTL:        cfg.StatusCacheTTL,
		ServerKey:       cfg.GatewayServerKey,
		VerifySignature: cfg.GatewayVerifySignature,
	}, logger, m)

	auth, err := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL, cfg.ManagerPIN, repo, logger)
	if err != nil {
		return err
	}
	api := httpapi.New(svc, payments, auth, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		RequestTimeout: cfg.RequestTimeout,
		Production:     cfg.IsProduction(),
		Logger:         logger,
		Metrics:        m,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("POS backend listening", slog.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.Any("error", err))
	}
	logger.Info("server stopped")
	return nil
}

// openRepository refuses to fall back to memory when DATABASE_URL is set.
func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pg, err := pgstore.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	if cfg.DBAutoMigrate {
		if err := pg.Migrate(); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
	}
	logger.Info("repository: postgres")
	return pg, pg.Close, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	if cfg.IsProduction() && cfg.GatewayEnabled() && !cfg.GatewayVerifySignature {
		return fmt.Errorf("GATEWAY_VERIFY_SIGNATURE cannot be disabled in production")
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("PIN must be numeric")
		}
	}

	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true, "147258": true,
		"159753": true, "696969": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
