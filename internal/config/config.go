// Package config loads spool configuration: defaults, then
// .spool/config.yaml at the repository root, then SPOOL_* environment
// variables, each layer overriding the previous.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved configuration for one invocation.
type Config struct {
	Sync    SyncConfig    `mapstructure:"sync"`
	Tracker TrackerConfig `mapstructure:"tracker"`
	Color   bool          `mapstructure:"color"`
}

// SyncConfig controls the record branch and push behavior.
type SyncConfig struct {
	Branch     string        `mapstructure:"branch"`
	Remote     string        `mapstructure:"remote"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// TrackerConfig controls external tracker mirroring.
type TrackerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration for the repository rooted at repoRoot.
func Load(repoRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("sync.branch", "spool-sync")
	v.SetDefault("sync.remote", "origin")
	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("sync.timeout", 60*time.Second)
	v.SetDefault("tracker.enabled", false)
	v.SetDefault("color", true)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(repoRoot, ".spool"))

	v.SetEnvPrefix("SPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
