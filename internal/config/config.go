// Package config loads the engine's configuration from environment
// variables (via envconfig), with per-auction defaults overridable by a
// TOML file. The nested-struct-with-defaults layout mirrors the source's
// Telegram-bot configuration loader.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// DeploymentMode selects the infrastructure backend for the lock, queue,
// event bus and repository components.
type DeploymentMode string

const (
	ModeEmbedded DeploymentMode = "embedded"
	ModeCluster  DeploymentMode = "cluster"
)

// AuctionDefaults holds the operator-tunable per-auction defaults from
// spec.md §6.4. Env vars (AUCTION_DEFAULTS_*) override the TOML file,
// which overrides the built-in defaults below. These fields deliberately
// carry no envconfig "default" tag: envconfig applies its default
// whenever the env var is absent, which would stomp a value the TOML
// file just set. defaultAuctionDefaults fills the baseline instead.
type AuctionDefaults struct {
	FirstRoundDuration time.Duration `toml:"first_round_duration" envconfig:"AUCTION_DEFAULTS_FIRST_ROUND_DURATION"`
	OtherRoundDuration time.Duration `toml:"other_round_duration" envconfig:"AUCTION_DEFAULTS_OTHER_ROUND_DURATION"`
	AntiSnipeWindow    time.Duration `toml:"anti_snipe_window" envconfig:"AUCTION_DEFAULTS_ANTI_SNIPE_WINDOW"`
	AntiSnipeExtension time.Duration `toml:"anti_snipe_extension" envconfig:"AUCTION_DEFAULTS_ANTI_SNIPE_EXTENSION"`
	AntiSnipeThreshold int           `toml:"anti_snipe_threshold" envconfig:"AUCTION_DEFAULTS_ANTI_SNIPE_THRESHOLD"`
}

// defaultAuctionDefaults is the built-in baseline, applied before the
// TOML file (if any) and before envconfig, so both can override it.
func defaultAuctionDefaults() AuctionDefaults {
	return AuctionDefaults{
		FirstRoundDuration: 20 * time.Minute,
		OtherRoundDuration: 3 * time.Minute,
		AntiSnipeWindow:    5 * time.Second,
		AntiSnipeExtension: 30 * time.Second,
		AntiSnipeThreshold: 3,
	}
}

// Config is the engine's complete runtime configuration.
type Config struct {
	Port     string         `envconfig:"PORT" default:"8080"`
	Mode     DeploymentMode `envconfig:"DEPLOYMENT_MODE" default:"embedded"`
	LogLevel string         `envconfig:"LOG_LEVEL" default:"info"`

	// PersistenceURL is a postgres:// DSN. Required when Mode == cluster.
	PersistenceURL string `envconfig:"PERSISTENCE_URL" default:""`
	// BrokerURL is the queue/lock broker DSN. It is loaded but not read by
	// the serve command: in cluster mode the queue and the lock use the
	// same pool as PersistenceURL.
	BrokerURL string `envconfig:"BROKER_URL" default:""`

	// FallbackPollInterval is the period of the scheduler's safety-net
	// poller (spec.md §4.8). Round closure itself is never polled.
	FallbackPollInterval time.Duration `envconfig:"FALLBACK_POLL_INTERVAL" default:"5s"`

	DefaultsFile string `envconfig:"AUCTION_DEFAULTS_FILE" default:""`

	Defaults AuctionDefaults
}

// Load reads environment variables, applying the TOML defaults file first
// (if configured) so env vars still take precedence.
func Load() (*Config, error) {
	var cfg Config
	cfg.Defaults = defaultAuctionDefaults()

	if path := os.Getenv("AUCTION_DEFAULTS_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg.Defaults); err != nil {
			return nil, fmt.Errorf("config: failed to decode defaults file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if c.Mode != ModeEmbedded && c.Mode != ModeCluster {
		return fmt.Errorf("config: invalid DEPLOYMENT_MODE %q", c.Mode)
	}
	if c.Mode == ModeCluster && c.PersistenceURL == "" {
		return fmt.Errorf("config: PERSISTENCE_URL is required in cluster mode")
	}
	if c.FallbackPollInterval <= 0 {
		return fmt.Errorf("config: FALLBACK_POLL_INTERVAL must be > 0")
	}
	return nil
}
