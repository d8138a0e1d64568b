package main

import (
	"testing"

	"tokopos/backend/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "739154"})
	if err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
	err = validateSecurityConfig(config.Config{AuthSecret: strongSecret, ManagerPIN: "1234"})
	if err == nil {
		t.Fatalf("expected short PIN to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRequiresSignatureChecksInProduction(t *testing.T) {
	cfg := config.Config{
		AppEnv:           "production",
		AuthSecret:       strongSecret,
		ManagerPIN:       "739154",
		GatewayServerKey: "SB-Mid-server-abc",
	}
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected disabled signature verification to be rejected in production")
	}
	cfg.GatewayVerifySignature = true
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected verified production config to pass, got %v", err)
	}
}

func TestValidatePINStrength(t *testing.T) {
	cases := map[string]bool{
		"123456": false,
		"987654": false,
		"555555": false,
		"147258": false,
		"12a456": false,
		"739154": true,
		"4829136": true,
	}
	for pin, ok := range cases {
		err := validatePINStrength(pin)
		if ok && err != nil {
			t.Fatalf("pin %s: unexpected error %v", pin, err)
		}
		if !ok && err == nil {
			t.Fatalf("pin %s: expected rejection", pin)
		}
	}
}
