// Package config loads daemon configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything tunable about the daemon.
type Config struct {
	DataDir           string        `mapstructure:"dataDir"`
	LogLevel          string        `mapstructure:"logLevel"`
	TickInterval      time.Duration `mapstructure:"tickInterval"`
	PollInterval      time.Duration `mapstructure:"pollInterval"`
	HistoryLimit      int           `mapstructure:"historyLimit"`
	SuppressionWindow time.Duration `mapstructure:"suppressionWindow"`
	StopCooldown      time.Duration `mapstructure:"stopCooldown"`
	EventBuffer       int           `mapstructure:"eventBuffer"`
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".focusguard"
	}
	return filepath.Join(home, ".focusguard")
}

// Load reads the config file at path (optional: an empty path or a missing
// file yields defaults) and applies FOCUSGUARD_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("dataDir", defaultDataDir())
	v.SetDefault("logLevel", "info")
	v.SetDefault("tickInterval", time.Second)
	v.SetDefault("pollInterval", time.Second)
	v.SetDefault("historyLimit", 100)
	v.SetDefault("suppressionWindow", time.Second)
	v.SetDefault("stopCooldown", 30*time.Second)
	v.SetDefault("eventBuffer", 64)

	v.BindEnv("dataDir", "FOCUSGUARD_DATA_DIR")
	v.BindEnv("logLevel", "FOCUSGUARD_LOG_LEVEL")
	v.BindEnv("tickInterval", "FOCUSGUARD_TICK_INTERVAL")
	v.BindEnv("pollInterval", "FOCUSGUARD_POLL_INTERVAL")

	if path != "" {
		filename := filepath.Base(path)
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	if cfg.TickInterval <= 0 || cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("intervals must be positive")
	}
	if cfg.HistoryLimit <= 0 {
		return nil, fmt.Errorf("historyLimit must be positive")
	}

	return &cfg, nil
}
