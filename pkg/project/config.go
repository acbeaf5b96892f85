// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package project reads and writes the per-project plunk configuration at
// .plunk/config.yaml. Unlike the machine-owned state file next to it, the
// config is meant to be edited by hand, so it is YAML and load failures
// are loud.
package project

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/pkg/fsutil"
	"github.com/kraklabs/plunk/pkg/names"
)

// ConfigVersion is the current config schema version.
const ConfigVersion = "1"

// WatchConfig holds watch-loop tuning.
type WatchConfig struct {
	DebounceMs int      `yaml:"debounce_ms,omitempty"`
	CooldownMs int      `yaml:"cooldown_ms,omitempty"`
	Patterns   []string `yaml:"patterns,omitempty"`
}

// Config is the .plunk/config.yaml payload.
type Config struct {
	Version        string      `yaml:"version"`
	Role           string      `yaml:"role"`
	PackageManager string      `yaml:"package_manager,omitempty"`
	Build          string      `yaml:"build,omitempty"`
	Watch          WatchConfig `yaml:"watch,omitempty"`
}

// Default returns a config with sensible defaults.
func Default(role, packageManager string) *Config {
	return &Config{
		Version:        ConfigVersion,
		Role:           role,
		PackageManager: packageManager,
	}
}

// Debounce returns the configured debounce, or 0 when unset.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// Cooldown returns the configured cooldown, or 0 when unset.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Watch.CooldownMs) * time.Millisecond
}

// Load reads the project config. A missing file returns os.ErrNotExist
// via the wrapped error; a malformed file fails loudly.
func Load(consumerDir string) (*Config, error) {
	path := names.ConfigPath(consumerDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewError(errors.KindConfigCorrupt,
			"Cannot parse project config", path,
			fmt.Sprintf("Fix the YAML in %s or delete it and re-run plunk init", path), err)
	}
	if cfg.Version == "" {
		cfg.Version = ConfigVersion
	}
	return &cfg, nil
}

// Save writes the config atomically.
func Save(consumerDir string, cfg *Config) error {
	if cfg.Version == "" {
		cfg.Version = ConfigVersion
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(names.ConfigPath(consumerDir), data, 0o644)
}
