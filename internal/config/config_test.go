package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")
	t.Setenv("GATEWAY_SERVER_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
	assert.Empty(t, cfg.ManagerPIN)
	assert.False(t, cfg.GatewayEnabled())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 10*time.Second, cfg.StatusCacheTTL)
	assert.Equal(t, 15*time.Minute, cfg.GatewaySessionTTL)
	assert.Equal(t, "POS", cfg.GatewayOrderPrefix)
	assert.True(t, cfg.GatewayVerifySignature)
	assert.Equal(t, "@every 5m", cfg.PendingSweepCron)
	assert.False(t, cfg.IsProduction())
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_SECRET", "  0123456789abcdef0123456789abcdef  ")
	t.Setenv("GATEWAY_SERVER_KEY", "SB-Mid-server-abc")
	t.Setenv("GATEWAY_SESSION_TTL", "5m")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Address())
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.AuthSecret)
	assert.True(t, cfg.GatewayEnabled())
	assert.Equal(t, 5*time.Minute, cfg.GatewaySessionTTL)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "k1:9092,k2:9092", cfg.KafkaBrokers)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestNewLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, Config{LogFormat: "text", LogLevel: "warn"})

	logger.Info("hidden")
	logger.Warn("shown", slog.String("order_id", "ord-1"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "order_id=ord-1")

	buf.Reset()
	newLogger(&buf, Config{LogFormat: "json", LogLevel: "bogus"}).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}
