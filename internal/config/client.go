package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	EnvironmentLocal    = "local"
	EnvironmentDeployed = "deployed"

	// DevPort is the port the local development peer listens on.
	DevPort = 3000
)

// ClientConfig configures the headless sync client. Every key is prefixed
// with BUGWARS_.
type ClientConfig struct {
	WebSocketURL  string `env:"WS_URL"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Host          string `env:"HOST"`
	Port          int    `env:"PORT"`
	Secure        bool   `env:"SECURE"`
	WebSocketPath string `env:"WS_PATH" envDefault:"/ws"`

	TickInterval        time.Duration `env:"TICK_INTERVAL" envDefault:"50ms"`
	TokenCheckInterval  time.Duration `env:"TOKEN_CHECK_INTERVAL" envDefault:"30s"`
	PlayerSyncInterval  time.Duration `env:"PLAYER_SYNC_INTERVAL" envDefault:"10s"`
	ReconnectMaxElapsed time.Duration `env:"RECONNECT_MAX_ELAPSED" envDefault:"2m"`

	UserID       string `env:"USER_ID"`
	AccessToken  string `env:"ACCESS_TOKEN"`
	RefreshToken string `env:"REFRESH_TOKEN"`

	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
}

func LoadClientConfig() (ClientConfig, error) {
	return LoadClientConfigFromEnv(env.ToMap(os.Environ()))
}

func LoadClientConfigFromEnv(environ map[string]string) (ClientConfig, error) {
	var cfg ClientConfig
	opts := env.Options{Environment: environ, Prefix: "BUGWARS_"}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return ClientConfig{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.Environment {
	case EnvironmentLocal, EnvironmentDeployed:
	default:
		return ClientConfig{}, fmt.Errorf("invalid BUGWARS_ENVIRONMENT %q", cfg.Environment)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return ClientConfig{}, errors.New("invalid BUGWARS_PORT")
	}
	if cfg.TickInterval <= 0 {
		return ClientConfig{}, errors.New("invalid BUGWARS_TICK_INTERVAL")
	}
	if cfg.TokenCheckInterval <= 0 {
		return ClientConfig{}, errors.New("invalid BUGWARS_TOKEN_CHECK_INTERVAL")
	}
	if cfg.PlayerSyncInterval <= 0 {
		return ClientConfig{}, errors.New("invalid BUGWARS_PLAYER_SYNC_INTERVAL")
	}
	return cfg, nil
}
