// Package config loads engine configuration from YAML, the way scenario
// fixtures are loaded in internal/harness: strict field validation so a
// typo in an operator's config file fails loudly instead of silently
// defaulting.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SinkMode selects which session.Sink variant the daemon wires up at
// startup.
type SinkMode string

const (
	// SinkModeNull discards every side-effect.
	SinkModeNull SinkMode = "null"
	// SinkModeBridge hands side-effects off to an external sync target.
	SinkModeBridge SinkMode = "bridge"
)

// Config is the top-level engine configuration, loaded from a single YAML
// document.
type Config struct {
	// DatabasePath is the filesystem path to the durable log. Validate
	// only checks that it is non-empty; this package does not open it.
	DatabasePath string `yaml:"database_path"`

	// BusyTimeout bounds how long a write waits for the log's write lock
	// before failing with a busy error.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// Sink selects which side-effect sink variant the engine is wired
	// with at startup.
	Sink SinkConfig `yaml:"sink"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// SinkConfig configures the engine's side-effect sink.
type SinkConfig struct {
	Mode SinkMode `yaml:"mode"`

	// Bridge is only consulted when Mode == SinkModeBridge.
	Bridge BridgeConfig `yaml:"bridge,omitempty"`
}

// BridgeConfig configures the bridge sink's external sync target.
type BridgeConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LogConfig configures the engine's structured logger.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format is one of "text" or "json".
	Format string `yaml:"format,omitempty"`
}

// Default returns a Config with every field at its documented default.
func Default() Config {
	return Config{
		DatabasePath: "sessiond.db",
		BusyTimeout:  5 * time.Second,
		Sink:         SinkConfig{Mode: SinkModeNull},
		Log:          LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads and strictly parses a Config from path. Unknown fields are
// rejected so a misspelled key (e.g. "endpont") surfaces at load time
// instead of silently falling back to a default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that required fields are present and internally
// consistent.
func (c Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.BusyTimeout <= 0 {
		return fmt.Errorf("busy_timeout must be positive")
	}

	switch c.Sink.Mode {
	case SinkModeNull:
	case SinkModeBridge:
		if c.Sink.Bridge.Endpoint == "" {
			return fmt.Errorf("sink.bridge.endpoint is required when sink.mode is %q", SinkModeBridge)
		}
	default:
		return fmt.Errorf("sink.mode: unknown mode %q", c.Sink.Mode)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}

	return nil
}
