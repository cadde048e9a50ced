// Package config provides loading and validation of the core configuration.
//
// Configuration is strictly separated from state: the file holds settings a
// deployment may tune (timeouts, batch sizes, paths); anything that changes
// at runtime belongs in the store, never here. CoreConfig is passed by value
// so callers cannot mutate a shared instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates an invalid configuration was provided.
var ErrInvalidConfig = errors.New("invalid configuration")

// CoreConfig holds the tunables of the coordination core.
type CoreConfig struct {
	// DatabasePath is the sqlite file backing all repositories.
	// ":memory:" is accepted for tests.
	DatabasePath string `yaml:"database_path"`

	// EventLogDir is where the JSONL audit mirror of bus traffic is written.
	// Empty disables the mirror.
	EventLogDir string `yaml:"event_log_dir"`

	// HumanResponseTimeout bounds HumanResponseRegistry.WaitForResponse.
	HumanResponseTimeout time.Duration `yaml:"human_response_timeout"`

	// ReplayBatchSize is how many persisted events a replay reads per query.
	ReplayBatchSize int `yaml:"replay_batch_size"`

	// PlanMaxSteps caps the number of steps accepted in a single plan.
	PlanMaxSteps int `yaml:"plan_max_steps"`

	// BusQueueSize is the capacity of the bus ingest channel.
	BusQueueSize int `yaml:"bus_queue_size"`

	// SubscriberQueueSize is the per-subscriber dispatch buffer capacity.
	SubscriberQueueSize int `yaml:"subscriber_queue_size"`
}

// Default returns the documented default configuration.
func Default() CoreConfig {
	return CoreConfig{
		DatabasePath:         "ampere.db",
		EventLogDir:          "logs",
		HumanResponseTimeout: 30 * time.Minute,
		ReplayBatchSize:      500,
		PlanMaxSteps:         64,
		BusQueueSize:         256,
		SubscriberQueueSize:  64,
	}
}

// UnmarshalYAML decodes the config, accepting durations in Go notation
// ("30m", "1h30m"). yaml.v3 has no native time.Duration support.
func (c *CoreConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig struct {
		DatabasePath         string `yaml:"database_path"`
		EventLogDir          string `yaml:"event_log_dir"`
		HumanResponseTimeout string `yaml:"human_response_timeout"`
		ReplayBatchSize      *int   `yaml:"replay_batch_size"`
		PlanMaxSteps         *int   `yaml:"plan_max_steps"`
		BusQueueSize         *int   `yaml:"bus_queue_size"`
		SubscriberQueueSize  *int   `yaml:"subscriber_queue_size"`
	}

	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	if raw.DatabasePath != "" {
		c.DatabasePath = raw.DatabasePath
	}
	if raw.EventLogDir != "" {
		c.EventLogDir = raw.EventLogDir
	}
	if raw.HumanResponseTimeout != "" {
		d, err := time.ParseDuration(raw.HumanResponseTimeout)
		if err != nil {
			return fmt.Errorf("invalid human_response_timeout %q: %w", raw.HumanResponseTimeout, err)
		}
		c.HumanResponseTimeout = d
	}
	if raw.ReplayBatchSize != nil {
		c.ReplayBatchSize = *raw.ReplayBatchSize
	}
	if raw.PlanMaxSteps != nil {
		c.PlanMaxSteps = *raw.PlanMaxSteps
	}
	if raw.BusQueueSize != nil {
		c.BusQueueSize = *raw.BusQueueSize
	}
	if raw.SubscriberQueueSize != nil {
		c.SubscriberQueueSize = *raw.SubscriberQueueSize
	}
	return nil
}

// Load reads a YAML config file, applies defaults for absent fields, and
// validates the result. A missing file returns the defaults.
func Load(path string) (CoreConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return CoreConfig{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CoreConfig{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return CoreConfig{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the core cannot run with.
func (c CoreConfig) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database_path is required", ErrInvalidConfig)
	}
	if c.HumanResponseTimeout <= 0 {
		return fmt.Errorf("%w: human_response_timeout must be positive", ErrInvalidConfig)
	}
	if c.ReplayBatchSize <= 0 {
		return fmt.Errorf("%w: replay_batch_size must be positive", ErrInvalidConfig)
	}
	if c.PlanMaxSteps <= 0 {
		return fmt.Errorf("%w: plan_max_steps must be positive", ErrInvalidConfig)
	}
	if c.BusQueueSize <= 0 {
		return fmt.Errorf("%w: bus_queue_size must be positive", ErrInvalidConfig)
	}
	if c.SubscriberQueueSize <= 0 {
		return fmt.Errorf("%w: subscriber_queue_size must be positive", ErrInvalidConfig)
	}
	return nil
}
