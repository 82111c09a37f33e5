// Package config defines the gateway's process-level configuration and
// binds it to CLI flags, environment variables, and an optional config
// file, in the popctl module's viper/cobra idiom.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config covers every item in spec.md §6 Configuration.
type Config struct {
	UpstreamRPCURL string `mapstructure:"upstream_rpc_url"`
	UpstreamWSURL  string `mapstructure:"upstream_ws_url"`

	HTTPBindAddr string `mapstructure:"http_bind_addr"`

	Commitment string `mapstructure:"commitment"`

	BatchSize         int    `mapstructure:"batch_size"`
	BatchIntervalMS   int    `mapstructure:"batch_interval_ms"`
	CleanIntervalMS   int    `mapstructure:"clean_interval_ms"`
	CleanHorizonSlots uint64 `mapstructure:"clean_horizon_slots"`
	QueueCapacity     int    `mapstructure:"queue_capacity"`
	FanOutSize        int    `mapstructure:"fan_out_size"`
}

// BatchInterval returns BatchIntervalMS as a time.Duration.
func (c Config) BatchInterval() time.Duration {
	return time.Duration(c.BatchIntervalMS) * time.Millisecond
}

// CleanInterval returns CleanIntervalMS as a time.Duration.
func (c Config) CleanInterval() time.Duration {
	return time.Duration(c.CleanIntervalMS) * time.Millisecond
}

// SetDefaults registers every default onto v. Called once from
// cobra.OnInitialize; viper gives set flags and env vars priority over
// these defaults whatever the order in which they were registered.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("upstream_rpc_url", "http://127.0.0.1:8899")
	v.SetDefault("upstream_ws_url", "ws://127.0.0.1:8900")
	v.SetDefault("http_bind_addr", "0.0.0.0:8899")
	v.SetDefault("commitment", "confirmed")
	v.SetDefault("batch_size", 50)
	v.SetDefault("batch_interval_ms", 200)
	v.SetDefault("clean_interval_ms", 10_000)
	v.SetDefault("clean_horizon_slots", 150)
	v.SetDefault("queue_capacity", 100_000)
	v.SetDefault("fan_out_size", 4)
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a configuration that would make the supervisor fail at
// startup in an unhelpful way.
func (c Config) Validate() error {
	if c.UpstreamRPCURL == "" {
		return fmt.Errorf("config: upstream_rpc_url is required")
	}
	if c.UpstreamWSURL == "" {
		return fmt.Errorf("config: upstream_ws_url is required")
	}
	if c.HTTPBindAddr == "" {
		return fmt.Errorf("config: http_bind_addr is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive")
	}
	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("config: commitment must be one of processed, confirmed, finalized, got %q", c.Commitment)
	}
	return nil
}
