// Package config loads the application configuration. All values are
// threaded explicitly into constructors; nothing reads ambient global
// state at runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	// Year is the conference edition the synchronizer is bound to.
	Year int `mapstructure:"year"`

	// RemoteURL is the base URL of the remote schedule source. The year
	// and document name are appended by the remote client.
	RemoteURL string `mapstructure:"remote_url"`

	// DatabasePath is the SQLite file holding the schedule.
	DatabasePath string `mapstructure:"database_path"`

	// PrefsPath is the favorites/playback settings file.
	PrefsPath string `mapstructure:"prefs_path"`

	// CacheDir holds the remote client's conditional-request cache.
	CacheDir string `mapstructure:"cache_dir"`

	// SyncInterval is the period between sync attempts.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// DashboardPort is the dashboard's listen port; 0 disables it.
	DashboardPort int `mapstructure:"dashboard_port"`

	// LogFile, if set, routes daemon logs to a rotating file instead of
	// stderr.
	LogFile string `mapstructure:"log_file"`
}

// Load reads configuration from the given YAML file (optional), overlaid
// with SCHEDSTORE_* environment variables, on top of defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SCHEDSTORE")
	v.AutomaticEnv()

	v.SetDefault("year", time.Now().Year())
	v.SetDefault("remote_url", "")
	v.SetDefault("database_path", "")
	v.SetDefault("prefs_path", "")
	v.SetDefault("cache_dir", "")
	v.SetDefault("sync_interval", time.Hour)
	v.SetDefault("dashboard_port", 0)
	v.SetDefault("log_file", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

// normalize fills in missing values with defaults rooted in the user's
// home directory.
func (c *Config) normalize() {
	base := baseDir()
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(base, "schedule.db")
	}
	if c.PrefsPath == "" {
		c.PrefsPath = filepath.Join(base, "settings.yaml")
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(base, "cache")
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = time.Hour
	}
}

// baseDir returns the per-user data directory, falling back to the current
// directory when the home directory cannot be determined.
func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".schedstore"
	}
	return filepath.Join(home, ".schedstore")
}
