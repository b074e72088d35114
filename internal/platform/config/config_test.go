package config

import (
	"strings"
	"testing"
	"time"
)

func load(t *testing.T, values map[string]string) Config {
	t.Helper()
	cfg, err := Load(WithEnvMap(values), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := load(t, map[string]string{"FIRESTORE_PROJECT_ID": "demo"})

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %v", cfg.Server.ReadTimeout)
	}
	if cfg.QueryFallback.Enabled {
		t.Error("query fallback must be disabled by default")
	}
	if cfg.QueryFallback.FetchCap != 200 {
		t.Errorf("unexpected fallback cap: %d", cfg.QueryFallback.FetchCap)
	}
	if cfg.Backfill.BatchSize != 100 {
		t.Errorf("unexpected backfill batch size: %d", cfg.Backfill.BatchSize)
	}
	if got := strings.Join(cfg.Orders.CustomerCancelStatuses, ","); got != "pending,confirmed" {
		t.Errorf("unexpected cancel allow-list: %s", got)
	}
	if got := strings.Join(cfg.Orders.ShipperReadyStatuses, ","); got != "available" {
		t.Errorf("unexpected ready statuses: %s", got)
	}
	if cfg.Payments.Provider != "noop" {
		t.Errorf("unexpected payments provider: %s", cfg.Payments.Provider)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg := load(t, map[string]string{
		"FIRESTORE_PROJECT_ID":           "demo",
		"ORDER_CUSTOMER_CANCEL_STATUSES": "pending, confirmed ,PREPARING",
		"ORDER_QUERY_FALLBACK":           "true",
		"ORDER_QUERY_FALLBACK_CAP":       "50",
		"BACKFILL_BATCH_SIZE":            "25",
	})

	if got := strings.Join(cfg.Orders.CustomerCancelStatuses, ","); got != "pending,confirmed,preparing" {
		t.Errorf("allow-list should be trimmed and lowercased, got %s", got)
	}
	if !cfg.QueryFallback.Enabled || cfg.QueryFallback.FetchCap != 50 {
		t.Errorf("unexpected fallback config: %+v", cfg.QueryFallback)
	}
	if cfg.Backfill.BatchSize != 25 {
		t.Errorf("unexpected backfill batch size: %d", cfg.Backfill.BatchSize)
	}
}

func TestLoadValidation(t *testing.T) {
	if _, err := Load(WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile("")); err == nil {
		t.Error("expected error when firestore project is missing")
	}

	if _, err := Load(WithEnvMap(map[string]string{
		"FIRESTORE_PROJECT_ID": "demo",
		"PAYMENTS_PROVIDER":    "stripe",
	}), WithoutSystemEnv(), WithEnvFile("")); err == nil {
		t.Error("expected error when stripe is selected without an API key")
	}

	if _, err := Load(WithEnvMap(map[string]string{
		"FIRESTORE_PROJECT_ID": "demo",
		"BACKFILL_BATCH_SIZE":  "9000",
	}), WithoutSystemEnv(), WithEnvFile("")); err == nil {
		t.Error("expected error for batch size beyond store write-batch limits")
	}
}
