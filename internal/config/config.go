// Package config loads linkgate settings.
//
// Settings are resolved in order: built-in defaults, then an optional YAML
// file, then environment variables. Unknown YAML keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/linkgate/internal/channel"
)

// Config is the full process configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`

	// Channel is the side-channel name assertions arrive on.
	Channel string `yaml:"channel" env:"LINKGATE_CHANNEL"`

	// Workers bounds concurrent link calls.
	Workers int `yaml:"workers" env:"LINKGATE_WORKERS"`

	// LookupTimeout bounds each join or command lookup.
	LookupTimeout time.Duration `yaml:"lookup_timeout" env:"LINKGATE_LOOKUP_TIMEOUT"`

	// MaxLinks caps how many sessions may be linked. 0 means no cap.
	MaxLinks int `yaml:"max_links" env:"LINKGATE_MAX_LINKS"`

	Log LogConfig `yaml:"log"`
}

// DatabaseConfig locates the identity store.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"LINKGATE_DB_PATH"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"LINKGATE_LOG_LEVEL"`
	Format string `yaml:"format" env:"LINKGATE_LOG_FORMAT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:      DatabaseConfig{Path: "linkgate.db"},
		Channel:       channel.Name,
		Workers:       4,
		LookupTimeout: 2 * time.Second,
		Log:           LogConfig{Level: "info", Format: "text"},
	}
}

// Load resolves the configuration. path may be empty to skip the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if strings.TrimSpace(c.Channel) == "" {
		errs = append(errs, errors.New("channel is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.MaxLinks < 0 {
		errs = append(errs, fmt.Errorf("max_links must not be negative, got %d", c.MaxLinks))
	}
	if c.LookupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("lookup_timeout must be positive, got %s", c.LookupTimeout))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
