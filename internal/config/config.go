// Package config loads service configuration from a YAML or JSON file.
// Every field has a usable default, so running without a file works.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"bitledger/internal/ledger"
)

// Config is the full service configuration.
type Config struct {
	// DBPath is the sqlite ledger file. ":memory:" selects the in-memory
	// ledger (no durability, useful for demos and tests).
	DBPath string `yaml:"db_path" json:"db_path"`
	// Listen is the HTTP bind address.
	Listen string `yaml:"listen" json:"listen"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// Scope selects the conflict scope predicate: "episode" or "none".
	Scope string `yaml:"scope" json:"scope"`
	// DedupWindow is the idempotent-retry window as a Go duration string
	// ("2m", "30s"). "off" disables dedup.
	DedupWindow string `yaml:"dedup_window" json:"dedup_window"`

	// WindowDays is the default audit window when a request omits one.
	WindowDays int `yaml:"window_days" json:"window_days"`
	// RecentLimit is the default cap on recent-transition feeds.
	RecentLimit int `yaml:"recent_limit" json:"recent_limit"`
}

// Default returns the zero-config setup.
func Default() Config {
	return Config{
		DBPath:      ledger.DefaultDBPath,
		Listen:      ":8090",
		LogLevel:    "info",
		LogFormat:   "text",
		Scope:       "episode",
		DedupWindow: "2m",
		WindowDays:  7,
		RecentLimit: 20,
	}
}

// LoadFromPath reads a config file (YAML or JSON). An empty path returns
// the defaults.
func LoadFromPath(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Load(data, filepath.Ext(path))
}

// Load parses config from bytes. ext is the file extension for format hint
// (".yaml"/".yml"/".json"); empty = detect from content. Missing fields keep
// their defaults.
func Load(data []byte, ext string) (Config, error) {
	cfg := Default()
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}

	switch ext {
	case ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config json: %w", err)
		}
	default:
		// Detect: JSON starts with {, else YAML.
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "{") {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config json: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields that parse further downstream.
func (c Config) Validate() error {
	if _, err := c.DedupWindowDuration(); err != nil {
		return err
	}
	switch c.Scope {
	case "", "episode", "none":
	default:
		return fmt.Errorf("unknown scope predicate %q", c.Scope)
	}
	return nil
}

// DedupWindowDuration parses DedupWindow. "off" (or "0") disables dedup and
// maps to a negative duration.
func (c Config) DedupWindowDuration() (time.Duration, error) {
	s := strings.TrimSpace(c.DedupWindow)
	if s == "" {
		return 0, nil
	}
	if s == "off" || s == "0" {
		return -1, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse dedup_window: %w", err)
	}
	return d, nil
}
