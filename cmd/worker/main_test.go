package main

import (
	"testing"

	"tokopos/backend/internal/config"
)

func TestValidateWorkerConfig(t *testing.T) {
	if err := validateWorkerConfig(config.Config{RedisAddr: "127.0.0.1:6379"}); err == nil {
		t.Fatalf("expected missing DATABASE_URL to be rejected")
	}
	if err := validateWorkerConfig(config.Config{DatabaseURL: "postgres://localhost/pos"}); err == nil {
		t.Fatalf("expected missing REDIS_ADDR to be rejected")
	}
	if err := validateWorkerConfig(config.Config{DatabaseURL: "postgres://localhost/pos", RedisAddr: "127.0.0.1:6379"}); err != nil {
		t.Fatalf("expected complete config to pass, got %v", err)
	}
}
