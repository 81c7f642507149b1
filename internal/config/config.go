// Package config loads runtime configuration for the tptmodel CLI. Values
// come from .tptmodel.yaml, TPTMODEL_* env vars and CLI flags, in viper's
// usual precedence.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for a tptmodel session.
type Config struct {
	// AttachmentsDB is the SQLite file holding attachment content. Empty
	// keeps attachments in memory.
	AttachmentsDB string `mapstructure:"attachments_db"`
	// TelemetryPath is the JSONL event log. Empty disables telemetry.
	TelemetryPath string        `mapstructure:"telemetry_path"`
	Scope         string        `mapstructure:"scope"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("attachments_db", "")
	viper.SetDefault("telemetry_path", "")
	viper.SetDefault("scope", "")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("watch_debounce", 200*time.Millisecond)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MinWatchDebounce is the shortest accepted non-zero watch_debounce.
const MinWatchDebounce = time.Millisecond

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	if _, ok := levels[c.LogLevel]; !ok {
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("config: log_format must be text or json, got %q", c.LogFormat)
	}
	if c.WatchDebounce < 0 {
		return fmt.Errorf("config: negative watch_debounce %s", c.WatchDebounce)
	}
	if c.WatchDebounce > 0 && c.WatchDebounce < MinWatchDebounce {
		return fmt.Errorf("config: watch_debounce %s is below %s", c.WatchDebounce, MinWatchDebounce)
	}
	return nil
}
