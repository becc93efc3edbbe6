// Package config loads application configuration from file, environment
// and defaults, in that ascending order of precedence.
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

// Config is the resolved application configuration.
type Config struct {
	// RemoteURL is the libsql connection string of the hosted backend.
	RemoteURL string `mapstructure:"remote_url"`

	// NotifyURL is the WebSocket endpoint publishing change events for
	// the routines collection.
	NotifyURL string `mapstructure:"notify_url"`

	// StorePath is the local cache database file.
	StorePath string `mapstructure:"store_path"`

	// ProbeAddr is the host:port the connectivity monitor dials.
	ProbeAddr string `mapstructure:"probe_addr"`

	// CacheWindow is the freshness validity window.
	CacheWindow time.Duration `mapstructure:"cache_window"`

	// ProbeInterval is how often connectivity is re-probed.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// ReconcileInterval is the daemon's periodic reconcile cadence.
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`

	// LogFile, when set, routes daemon logs to a rotating file instead
	// of stderr.
	LogFile string `mapstructure:"log_file"`

	// Offline forces offline mode regardless of probing.
	Offline bool `mapstructure:"offline"`
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".nesttask"), nil
}

// Load reads configuration from ~/.nesttask/config.yaml (if present) and
// the NESTTASK_* environment, applying defaults for anything unset.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("NESTTASK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv can surface env-only
	// values through Unmarshal.
	v.SetDefault("remote_url", "")
	v.SetDefault("notify_url", "")
	v.SetDefault("probe_addr", "")
	v.SetDefault("log_file", "")
	v.SetDefault("store_path", filepath.Join(dir, "cache.db"))
	v.SetDefault("cache_window", 4*time.Minute)
	v.SetDefault("probe_interval", 15*time.Second)
	v.SetDefault("reconcile_interval", time.Minute)
	v.SetDefault("offline", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.ProbeAddr == "" && cfg.RemoteURL != "" {
		cfg.ProbeAddr = probeAddrFromURL(cfg.RemoteURL)
	}

	return &cfg, nil
}

// probeAddrFromURL derives a host:port probe target from the libsql URL.
func probeAddrFromURL(url string) string {
	rest := url
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return ""
	}
	if !strings.Contains(rest, ":") {
		rest += ":443"
	}
	return rest
}
