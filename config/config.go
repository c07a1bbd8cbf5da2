// Package config handles spyglass.toml host configuration, with
// environment variable overrides for deployment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("spyglass.config")

// Config holds all host-side configuration.
type Config struct {
	Worker  WorkerConfig  `toml:"worker"`
	Limits  LimitsConfig  `toml:"limits"`
	Logging LogConfig     `toml:"logging"`

	// Dir is the directory containing the spyglass.toml file (set at load
	// time).
	Dir string `toml:"-" ignored:"true"`
}

// WorkerConfig describes how to launch the inspection worker.
type WorkerConfig struct {
	Executable     string `toml:"executable" envconfig:"SPYGLASS_WORKER_EXECUTABLE"`
	SupportRoot    string `toml:"support-root" envconfig:"SPYGLASS_SUPPORT_ROOT"`
	RuntimeVersion string `toml:"runtime-version" envconfig:"SPYGLASS_RUNTIME_VERSION"`
}

// LimitsConfig bounds host-side resources.
type LimitsConfig struct {
	StderrQueueLines int `toml:"stderr-queue-lines" envconfig:"SPYGLASS_STDERR_QUEUE_LINES"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int `toml:"verbosity" envconfig:"SPYGLASS_LOG_VERBOSITY"`
}

// Load parses a spyglass.toml file from the given directory, then applies
// environment overrides.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "spyglass.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	cfg.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from dir or falls back to defaults
// with environment overrides applied.
func LoadOrDefault(dir string) *Config {
	cfg, err := Load(dir)
	if err != nil {
		cfg = Default()
		if err := envconfig.Process("", cfg); err != nil {
			log.Warningf("environment overrides: %s", err.Error())
		}
	}
	return cfg
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			Executable: "spyglass-worker",
		},
		Limits: LimitsConfig{
			StderrQueueLines: 256,
		},
		Logging: LogConfig{
			Verbosity: 0,
		},
	}
}
