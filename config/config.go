// Package config resolves musickit settings from defaults, an optional YAML
// file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains every musickit setting.
type Config struct {
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	HelperPath        string        `yaml:"helper_path"`
	HelperTimeout     time.Duration `yaml:"helper_timeout"`
	MinOSVersion      string        `yaml:"min_os_version"`
	UseDatabase       bool          `yaml:"use_database"`
	DBPath            string        `yaml:"db_path"`
	Addr              string        `yaml:"addr"`
	QueuePlaylist     string        `yaml:"queue_playlist"`
	StorefrontTimeout time.Duration `yaml:"storefront_timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:          "info",
		LogFormat:         "json",
		HelperPath:        "musickit-helper",
		HelperTimeout:     15 * time.Second,
		MinOSVersion:      "11.0",
		UseDatabase:       false,
		DBPath:            "~/Library/Application Support/musickit/journal.db",
		Addr:              "127.0.0.1:8537",
		QueuePlaylist:     "MusicKit Queue",
		StorefrontTimeout: 10 * time.Second,
	}
}

// Load resolves the configuration. MUSICKIT_CONFIG names an optional YAML
// file; environment variables override both.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("MUSICKIT_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile merges the YAML file at path into c. Missing keys keep their
// current value.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", path)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("MUSICKIT_LOG_LEVEL", &c.LogLevel)
	str("MUSICKIT_LOG_FORMAT", &c.LogFormat)
	str("MUSICKIT_HELPER_PATH", &c.HelperPath)
	str("MUSICKIT_MIN_OS_VERSION", &c.MinOSVersion)
	str("MUSICKIT_DB_PATH", &c.DBPath)
	str("MUSICKIT_ADDR", &c.Addr)
	str("MUSICKIT_QUEUE_PLAYLIST", &c.QueuePlaylist)

	if err := dur("MUSICKIT_HELPER_TIMEOUT", &c.HelperTimeout); err != nil {
		return err
	}
	if err := dur("MUSICKIT_STOREFRONT_TIMEOUT", &c.StorefrontTimeout); err != nil {
		return err
	}

	if v, ok := lookup("MUSICKIT_USE_DATABASE"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid MUSICKIT_USE_DATABASE: %w", err)
		}
		c.UseDatabase = b
	}
	return nil
}
