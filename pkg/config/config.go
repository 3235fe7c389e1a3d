// Package config loads the engine configuration from a JSON file with
// environment-variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full engine configuration.
type Config struct {
	// BotToken authenticates against the messaging platform.
	BotToken string `env:"CHATWARDEN_BOT_TOKEN"              json:"bot_token"`

	// AdminChannelID receives mirrored audit entries; 0 disables
	// mirroring.
	AdminChannelID int64 `env:"CHATWARDEN_ADMIN_CHANNEL_ID"  json:"admin_channel_id"`

	// DatabasePath is the SQLite state database location.
	DatabasePath string `env:"CHATWARDEN_DB_PATH"            json:"database_path"`

	// DispatchIntervalSeconds is the scheduled-content poll interval.
	DispatchIntervalSeconds int `env:"CHATWARDEN_DISPATCH_INTERVAL_SECONDS" json:"dispatch_interval_seconds"`

	// CaptchaTimeoutSeconds bounds how long a challenge stays live.
	CaptchaTimeoutSeconds int `env:"CHATWARDEN_CAPTCHA_TIMEOUT_SECONDS"   json:"captcha_timeout_seconds"`

	Debug bool `env:"CHATWARDEN_DEBUG" json:"debug,omitempty"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:            "chatwarden.db",
		DispatchIntervalSeconds: 30,
		CaptchaTimeoutSeconds:   120,
	}
}

// Load reads the config file at path (if it exists) and applies
// environment overrides on top of it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// No file is fine; env vars may carry everything.
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields the gateway cannot run without.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return errors.New("bot token is required (CHATWARDEN_BOT_TOKEN)")
	}
	if c.DispatchIntervalSeconds <= 0 {
		return errors.New("dispatch interval must be positive")
	}
	if c.CaptchaTimeoutSeconds <= 0 {
		return errors.New("captcha timeout must be positive")
	}
	return nil
}

// DispatchInterval returns the poll interval as a duration.
func (c *Config) DispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalSeconds) * time.Second
}

// CaptchaTimeout returns the challenge timeout as a duration.
func (c *Config) CaptchaTimeout() time.Duration {
	return time.Duration(c.CaptchaTimeoutSeconds) * time.Second
}
