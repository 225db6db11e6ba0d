// Package config loads optional daybook settings from the journal
// directory. Absent file or fields fall back to defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the config file inside the journal directory.
const FileName = "config.yaml"

// Defaults applied when the file or a field is absent.
const (
	DefaultInactivityTimeout = 5 * time.Minute
	DefaultBackgroundTimeout = 30 * time.Second
	DefaultPollInterval      = 30 * time.Second
)

// ErrConfigInvalid is returned when the config file fails validation.
var ErrConfigInvalid = errors.New("config: invalid configuration")

// Duration wraps time.Duration to accept "5m" style YAML values.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LockConfig controls auto-lock behavior.
type LockConfig struct {
	InactivityTimeout Duration `yaml:"inactivity_timeout"`
	BackgroundTimeout Duration `yaml:"background_timeout"`
	PollInterval      Duration `yaml:"poll_interval"`
}

// SyncConfig controls the outbound queue.
type SyncConfig struct {
	// Remote is the base URL of the sync endpoint. Empty keeps the
	// journal fully local.
	Remote string `yaml:"remote"`
}

// Config is the full daybook configuration.
type Config struct {
	Version int        `yaml:"version"`
	Lock    LockConfig `yaml:"lock"`
	Sync    SyncConfig `yaml:"sync"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version: 1,
		Lock: LockConfig{
			InactivityTimeout: Duration(DefaultInactivityTimeout),
			BackgroundTimeout: Duration(DefaultBackgroundTimeout),
			PollInterval:      Duration(DefaultPollInterval),
		},
	}
}

// Load reads config.yaml from the journal directory. A missing file yields
// the defaults; a present but malformed file is an error.
func Load(journalPath string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(journalPath, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: failed to read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Version != 1 {
		return fmt.Errorf("%w: unsupported version %d", ErrConfigInvalid, c.Version)
	}
	if c.Lock.InactivityTimeout <= 0 {
		return fmt.Errorf("%w: inactivity_timeout must be positive", ErrConfigInvalid)
	}
	if c.Lock.BackgroundTimeout <= 0 {
		return fmt.Errorf("%w: background_timeout must be positive", ErrConfigInvalid)
	}
	if c.Lock.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrConfigInvalid)
	}
	return nil
}
