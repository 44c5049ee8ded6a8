package config

import (
	"testing"
	"time"
)

func TestLoadPeerConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadPeerConfigFromEnv(map[string]string{"MASTER_SECRET": "x"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("expected default gin mode release, got %q", cfg.GinMode)
	}
	if cfg.AccessTokenExpiry != 15*time.Minute {
		t.Fatalf("expected 15m access expiry, got %v", cfg.AccessTokenExpiry)
	}
	if cfg.RefreshTokenExpiry != 7*24*time.Hour {
		t.Fatalf("expected 168h refresh expiry, got %v", cfg.RefreshTokenExpiry)
	}
	if cfg.InventorySlots != 20 || cfg.TokenCacheSize != 10000 {
		t.Fatalf("unexpected slots %d or cache size %d", cfg.InventorySlots, cfg.TokenCacheSize)
	}
	if cfg.StaleTimeout != 2*time.Minute || cfg.CleanupInterval != time.Minute {
		t.Fatalf("unexpected stale timeout %v or cleanup interval %v", cfg.StaleTimeout, cfg.CleanupInterval)
	}
}

func TestLoadPeerConfigFromEnv_MissingSecret(t *testing.T) {
	_, err := LoadPeerConfigFromEnv(map[string]string{})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadPeerConfigFromEnv_Overrides(t *testing.T) {
	cfg, err := LoadPeerConfigFromEnv(map[string]string{
		"MASTER_SECRET":       "x",
		"PORT":                "1234",
		"ACCESS_TOKEN_EXPIRY": "90s",
		"STATE_FILE":          "/tmp/state.json",
		"INVENTORY_SLOTS":     "5",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 1234 {
		t.Fatalf("expected port 1234, got %d", cfg.Port)
	}
	if cfg.AccessTokenExpiry != 90*time.Second {
		t.Fatalf("expected 90s, got %v", cfg.AccessTokenExpiry)
	}
	if cfg.StateFile != "/tmp/state.json" {
		t.Fatalf("unexpected state file %q", cfg.StateFile)
	}
	if cfg.InventorySlots != 5 {
		t.Fatalf("expected 5 slots, got %d", cfg.InventorySlots)
	}
}

func TestLoadPeerConfigFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
	}{
		{name: "port not a number", environ: map[string]string{"MASTER_SECRET": "x", "PORT": "abc"}},
		{name: "port out of range", environ: map[string]string{"MASTER_SECRET": "x", "PORT": "70000"}},
		{name: "refresh shorter than access", environ: map[string]string{"MASTER_SECRET": "x", "ACCESS_TOKEN_EXPIRY": "1h", "REFRESH_TOKEN_EXPIRY": "1m"}},
		{name: "no inventory slots", environ: map[string]string{"MASTER_SECRET": "x", "INVENTORY_SLOTS": "0"}},
		{name: "no token cache", environ: map[string]string{"MASTER_SECRET": "x", "TOKEN_CACHE_SIZE": "-1"}},
		{name: "zero cleanup interval", environ: map[string]string{"MASTER_SECRET": "x", "CLEANUP_INTERVAL": "0s"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadPeerConfigFromEnv(tc.environ); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadClientConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadClientConfigFromEnv(map[string]string{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Environment != EnvironmentLocal {
		t.Fatalf("expected local environment, got %q", cfg.Environment)
	}
	if cfg.TokenCheckInterval != 30*time.Second {
		t.Fatalf("expected 30s token check, got %v", cfg.TokenCheckInterval)
	}
	if cfg.PlayerSyncInterval != 10*time.Second {
		t.Fatalf("expected 10s player sync, got %v", cfg.PlayerSyncInterval)
	}
}

func TestLoadClientConfigFromEnv_PrefixedKeys(t *testing.T) {
	cfg, err := LoadClientConfigFromEnv(map[string]string{
		"BUGWARS_ENVIRONMENT":  "deployed",
		"BUGWARS_HOST":         "play.example.com",
		"BUGWARS_ACCESS_TOKEN": "tok",
		"ACCESS_TOKEN":         "ignored",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Host != "play.example.com" {
		t.Fatalf("unexpected host %q", cfg.Host)
	}
	if cfg.AccessToken != "tok" {
		t.Fatalf("expected prefixed token, got %q", cfg.AccessToken)
	}
}

func TestLoadClientConfigFromEnv_InvalidEnvironment(t *testing.T) {
	if _, err := LoadClientConfigFromEnv(map[string]string{"BUGWARS_ENVIRONMENT": "staging"}); err == nil {
		t.Fatalf("expected error")
	}
}
