// Package config holds the daemon's own settings: where the firewall
// configs live, how often to reconcile and how strict to be about
// broken guest configs. The file format is HCL.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the daemon configuration.
type Config struct {
	// ConfigDir is the root of the firewall config tree:
	// cluster.fw, host.fw, guests/<vmid>.fw + guests/<vmid>.conf,
	// sdn/running-config.json, sdn/<vnet>.fw and ipam.db.
	ConfigDir string `hcl:"config_dir,optional"`

	// DisableSentinel force-disables the firewall while it exists.
	DisableSentinel string `hcl:"disable_sentinel,optional"`

	// ReconcileInterval is the daemon's compile-and-apply period.
	ReconcileInterval string `hcl:"reconcile_interval,optional"`

	// Lenient gates a broken guest to its default policy instead of
	// aborting the whole cycle.
	Lenient bool `hcl:"lenient,optional"`

	// MetricsListen exposes prometheus metrics when set, e.g.
	// "127.0.0.1:9632".
	MetricsListen string `hcl:"metrics_listen,optional"`

	LogLevel string `hcl:"log_level,optional"`
	LogJSON  bool   `hcl:"log_json,optional"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		ConfigDir:         "/etc/pve/firewall",
		DisableSentinel:   "/run/proxfw/force-disable",
		ReconcileInterval: "10s",
		LogLevel:          "info",
	}
}

// Load reads an HCL config file, falling back to defaults when the
// file does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	if cfg.ConfigDir == "" {
		cfg.ConfigDir = Default().ConfigDir
	}
	if cfg.ReconcileInterval == "" {
		cfg.ReconcileInterval = Default().ReconcileInterval
	}
	if cfg.DisableSentinel == "" {
		cfg.DisableSentinel = Default().DisableSentinel
	}

	if _, err := cfg.Interval(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Interval parses the reconcile interval.
func (c *Config) Interval() (time.Duration, error) {
	interval, err := time.ParseDuration(c.ReconcileInterval)
	if err != nil || interval <= 0 {
		return 0, fmt.Errorf("invalid reconcile_interval %q", c.ReconcileInterval)
	}
	return interval, nil
}
