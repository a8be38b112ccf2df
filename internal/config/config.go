// Package config defines all configuration for the arbitrage engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via ARBD_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"`
	Venues    []VenueConfig   `mapstructure:"venues"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	OMS       OMSConfig       `mapstructure:"oms"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Sizing    SizingConfig    `mapstructure:"sizing"`
	Bus       BusConfig       `mapstructure:"bus"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// VenueConfig carries the per-venue knobs the spec requires to be
// configuration, not hardcoded (§4.1): URL, ping/pong convention, channel
// naming, and batching/connection limits.
type VenueConfig struct {
	Name                 string        `mapstructure:"name"`
	WSURL                string        `mapstructure:"ws_url"`
	PingConvention       string        `mapstructure:"ping_convention"` // "server_ping" or "client_ping"
	MaxChannelsPerSocket int           `mapstructure:"max_channels_per_socket"`
	MaxChannelsPerReq    int           `mapstructure:"max_channels_per_request"`
	MaxBackoff           time.Duration `mapstructure:"max_backoff"`
	SubscribeGroups      [][]string    `mapstructure:"subscribe_groups"` // one symbol group per socket, read from this YAML key; no separate grouping file is loaded
	ReferenceCurrency    string        `mapstructure:"reference_currency"`
	MonitoringOnly       bool          `mapstructure:"monitoring_only"`
}

// CatalogConfig points at the instruments catalog source. Path is a local
// file; if URL is set instead, the catalog is fetched over HTTP (§6).
type CatalogConfig struct {
	Path string `mapstructure:"path"`
	URL  string `mapstructure:"url"`
}

// OMSConfig configures the FIX-over-TLS order management session (§4.7, §6).
type OMSConfig struct {
	Venue             string        `mapstructure:"venue"`
	Host              string        `mapstructure:"host"`
	SenderCompID      string        `mapstructure:"sender_comp_id"`
	TargetCompID      string        `mapstructure:"target_comp_id"`
	PrivateKeyPath    string        `mapstructure:"private_key_path"` // PKCS#8 PEM Ed25519
	APIKeyEnv         string        `mapstructure:"api_key_env"`      // env var holding the API key
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MessageHandling   int           `mapstructure:"message_handling"`
}

// StrategyConfig tunes the arbitrage strategy state machine (§4.6).
type StrategyConfig struct {
	SkipThreshold int           `mapstructure:"skip_threshold"`
	ShortCooldown time.Duration `mapstructure:"short_cooldown"`
	LongCooldown  time.Duration `mapstructure:"long_cooldown"`
}

// SizingConfig is the reference currency and absolute enter-amount bounds (§3).
type SizingConfig struct {
	ReferenceCurrency string  `mapstructure:"reference_currency"`
	MinOrderSize      float64 `mapstructure:"min_order_size"`
	MaxOrderSize      float64 `mapstructure:"max_order_size"`
}

// BusConfig sizes the fan-in queue (§4.2).
type BusConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the optional read-only status HTTP server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads the YAML config at path, applies ARBD_* env overrides, and
// unmarshals into Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ARBD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.capacity", 2_000_000)
	v.SetDefault("strategy.skip_threshold", 3)
	v.SetDefault("strategy.short_cooldown", 5*time.Millisecond)
	v.SetDefault("strategy.long_cooldown", 3*time.Second)
	v.SetDefault("oms.heartbeat_interval", 10*time.Second)
	v.SetDefault("oms.reconnect_delay", 5*time.Second)
	v.SetDefault("oms.message_handling", 2)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("dashboard.port", 8090)
}

// Validate checks cross-field invariants that mapstructure tags cannot express.
func (c *Config) Validate() error {
	if len(c.Venues) == 0 {
		return fmt.Errorf("at least one venue must be configured")
	}
	for _, venue := range c.Venues {
		if venue.Name == "" {
			return fmt.Errorf("venue entry missing name")
		}
		if venue.WSURL == "" {
			return fmt.Errorf("venue %s: ws_url is required", venue.Name)
		}
		if venue.ReferenceCurrency == "" {
			return fmt.Errorf("venue %s: reference_currency is required", venue.Name)
		}
		if venue.MaxChannelsPerSocket <= 0 {
			return fmt.Errorf("venue %s: max_channels_per_socket must be positive", venue.Name)
		}
	}
	if c.Catalog.Path == "" && c.Catalog.URL == "" {
		return fmt.Errorf("catalog.path or catalog.url is required")
	}
	if c.OMS.Host == "" {
		return fmt.Errorf("oms.host is required")
	}
	if c.OMS.PrivateKeyPath == "" {
		return fmt.Errorf("oms.private_key_path is required")
	}
	if os.Getenv(c.OMS.APIKeyEnv) == "" {
		return fmt.Errorf("oms.api_key_env (%s) is not set in the environment", c.OMS.APIKeyEnv)
	}
	if c.Sizing.ReferenceCurrency == "" {
		return fmt.Errorf("sizing.reference_currency is required")
	}
	if c.Sizing.MinOrderSize <= 0 || c.Sizing.MaxOrderSize <= 0 {
		return fmt.Errorf("sizing.min_order_size and sizing.max_order_size must be positive")
	}
	if c.Sizing.MinOrderSize > c.Sizing.MaxOrderSize {
		return fmt.Errorf("sizing.min_order_size must be <= sizing.max_order_size")
	}
	return nil
}

// APIKey returns the API key configured via environment variable.
func (c OMSConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}
