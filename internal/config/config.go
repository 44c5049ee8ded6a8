package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// PeerConfig configures the development sync peer.
type PeerConfig struct {
	Port               int           `env:"PORT" envDefault:"3000"`
	MasterSecret       string        `env:"MASTER_SECRET"`
	GinMode            string        `env:"GIN_MODE" envDefault:"release"`
	TLSCertFile        string        `env:"TLS_CERT_FILE"`
	TLSKeyFile         string        `env:"TLS_KEY_FILE"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	StateFile          string        `env:"STATE_FILE"`
	LogLevel           slog.Level    `env:"LOG_LEVEL" envDefault:"INFO"`
	InventorySlots     int           `env:"INVENTORY_SLOTS" envDefault:"20"`
	TokenCacheSize     int           `env:"TOKEN_CACHE_SIZE" envDefault:"10000"`
	StaleTimeout       time.Duration `env:"STALE_TIMEOUT" envDefault:"2m"`
	CleanupInterval    time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1m"`
}

func LoadPeerConfig() (PeerConfig, error) {
	return LoadPeerConfigFromEnv(env.ToMap(os.Environ()))
}

func LoadPeerConfigFromEnv(environ map[string]string) (PeerConfig, error) {
	var cfg PeerConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return PeerConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return PeerConfig{}, errors.New("invalid PORT")
	}
	if cfg.MasterSecret == "" {
		return PeerConfig{}, errors.New("MASTER_SECRET is required")
	}
	if cfg.AccessTokenExpiry <= 0 {
		return PeerConfig{}, errors.New("invalid ACCESS_TOKEN_EXPIRY")
	}
	if cfg.RefreshTokenExpiry < cfg.AccessTokenExpiry {
		return PeerConfig{}, errors.New("REFRESH_TOKEN_EXPIRY must not be shorter than ACCESS_TOKEN_EXPIRY")
	}
	if cfg.InventorySlots <= 0 {
		return PeerConfig{}, errors.New("invalid INVENTORY_SLOTS")
	}
	if cfg.TokenCacheSize <= 0 {
		return PeerConfig{}, errors.New("invalid TOKEN_CACHE_SIZE")
	}
	if cfg.StaleTimeout <= 0 || cfg.CleanupInterval <= 0 {
		return PeerConfig{}, errors.New("STALE_TIMEOUT and CLEANUP_INTERVAL must be positive")
	}
	return cfg, nil
}
