package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is read from the environment. Secrets carry no defaults so a missing
// value is caught by the server's startup checks instead of running weak.
type Config struct {
	AppEnv        string `envconfig:"APP_ENV" default:"development"`
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	DatabaseURL   string `envconfig:"DATABASE_URL"`
	DBAutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`

	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	StatusCacheTTL time.Duration `envconfig:"STATUS_CACHE_TTL" default:"10s"`

	AuthSecret     string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`
	ManagerPIN     string        `envconfig:"MANAGER_PIN"`

	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string        `envconfig:"LOG_FORMAT" default:"json"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	GatewayBaseURL         string        `envconfig:"GATEWAY_BASE_URL" default:"https://app.sandbox.midtrans.com"`
	GatewayServerKey       string        `envconfig:"GATEWAY_SERVER_KEY"`
	GatewayOrderPrefix     string        `envconfig:"GATEWAY_ORDER_PREFIX" default:"POS"`
	GatewayTimeout         time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`
	GatewaySessionTTL      time.Duration `envconfig:"GATEWAY_SESSION_TTL" default:"15m"`
	GatewayVerifySignature bool          `envconfig:"GATEWAY_VERIFY_SIGNATURE" default:"true"`
	GatewayAcquirer        string        `envconfig:"GATEWAY_ACQUIRER" default:"gopay"`

	KafkaBrokers    string `envconfig:"KAFKA_BROKERS"`
	KafkaOrderTopic string `envconfig:"KAFKA_ORDER_TOPIC" default:"pos.orders"`

	WorkerConcurrency int           `envconfig:"WORKER_CONCURRENCY" default:"5"`
	PendingSweepCron  string        `envconfig:"PENDING_SWEEP_CRON" default:"@every 5m"`
	PendingStaleAfter time.Duration `envconfig:"PENDING_STALE_AFTER" default:"30m"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ManagerPIN = strings.TrimSpace(cfg.ManagerPIN)
	cfg.GatewayServerKey = strings.TrimSpace(cfg.GatewayServerKey)
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GatewayEnabled reports whether payment sessions can be opened.
func (c Config) GatewayEnabled() bool {
	return c.GatewayServerKey != ""
}

func NewLogger(cfg Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}
