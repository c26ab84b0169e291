// Package config loads and validates warren.yml.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warrenhq/warren/pkg/fleet"
)

// DefaultFileName is the config file warren looks for in the working
// directory.
const DefaultFileName = "warren.yml"

// WarrenConfig represents the top-level warren.yml configuration.
type WarrenConfig struct {
	Version  string         `yaml:"version"`
	Instance InstanceConfig `yaml:"instance"`
	Redis    RedisConfig    `yaml:"redis,omitempty"`
	Storage  StorageConfig  `yaml:"storage,omitempty"`
	Broker   BrokerConfig   `yaml:"broker,omitempty"`
	Watch    WatchConfig    `yaml:"watch,omitempty"`
	Defaults DefaultsConfig `yaml:"defaults,omitempty"`
	Agents   AgentsConfig   `yaml:"agents,omitempty"`
}

// InstanceConfig names this warren instance. The name namespaces Redis keys
// and container labels, so two instances can share a host.
type InstanceConfig struct {
	Name string `yaml:"name"`
}

// RedisConfig locates the message history store.
type RedisConfig struct {
	URL string `yaml:"url,omitempty"` // Default: redis://localhost:6379
}

// StorageConfig locates the on-disk state.
type StorageConfig struct {
	DataDir   string `yaml:"data_dir,omitempty"`   // Registry git repo, default .warren
	BoardsDir string `yaml:"boards_dir,omitempty"` // Task board files, default {data_dir}/boards
}

// BrokerConfig tunes the message broker.
type BrokerConfig struct {
	MaxQueueSize       int    `yaml:"max_queue_size,omitempty"`
	MaxHistoryPerAgent int    `yaml:"max_history_per_agent,omitempty"`
	TickInterval       string `yaml:"tick_interval,omitempty"` // Go duration, default 100ms

	tickInterval time.Duration
}

// Tick returns the parsed delivery tick. Valid only after Validate.
func (b *BrokerConfig) Tick() time.Duration {
	return b.tickInterval
}

// WatchConfig tunes the board file watcher.
type WatchConfig struct {
	Interval string `yaml:"interval,omitempty"` // Go duration, default 200ms

	interval time.Duration
}

// PollInterval returns the parsed polling interval. Valid only after
// Validate.
func (w *WatchConfig) PollInterval() time.Duration {
	return w.interval
}

// DefaultsConfig holds per-agent defaults applied at creation.
type DefaultsConfig struct {
	Resources fleet.ResourceLimits `yaml:"resources,omitempty"`
}

// AgentsConfig specifies how agent containers run.
type AgentsConfig struct {
	Image   string `yaml:"image,omitempty"`   // Docker image for agent containers
	Network string `yaml:"network,omitempty"` // Docker network name, default warren
}

// Validate performs strict validation and fills defaults.
func (c *WarrenConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}
	if c.Instance.Name == "" {
		return fmt.Errorf("instance.name is required")
	}
	if !fleet.ValidAgentID(c.Instance.Name) {
		return fmt.Errorf("instance.name %q must match [A-Za-z0-9_-]{1,50}", c.Instance.Name)
	}

	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = ".warren"
	}
	if c.Storage.BoardsDir == "" {
		c.Storage.BoardsDir = c.Storage.DataDir + "/boards"
	}

	if c.Broker.MaxQueueSize == 0 {
		c.Broker.MaxQueueSize = 1000
	}
	if c.Broker.MaxQueueSize < 0 {
		return fmt.Errorf("broker.max_queue_size must be positive, got %d", c.Broker.MaxQueueSize)
	}
	if c.Broker.MaxHistoryPerAgent == 0 {
		c.Broker.MaxHistoryPerAgent = 100
	}
	if c.Broker.MaxHistoryPerAgent < 0 {
		return fmt.Errorf("broker.max_history_per_agent must be positive, got %d", c.Broker.MaxHistoryPerAgent)
	}

	var err error
	if c.Broker.tickInterval, err = parseInterval("broker.tick_interval", c.Broker.TickInterval, 100*time.Millisecond); err != nil {
		return err
	}
	if c.Watch.interval, err = parseInterval("watch.interval", c.Watch.Interval, 200*time.Millisecond); err != nil {
		return err
	}

	if c.Defaults.Resources.CPUs == "" {
		c.Defaults.Resources.CPUs = "1"
	}
	if c.Defaults.Resources.Memory == "" {
		c.Defaults.Resources.Memory = "512m"
	}
	if c.Defaults.Resources.MaxTasks == 0 {
		c.Defaults.Resources.MaxTasks = 5
	}

	if c.Agents.Network == "" {
		c.Agents.Network = "warren"
	}

	return nil
}

func parseInterval(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", name, value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return d, nil
}

// Load reads, parses, and validates a warren.yml file.
func Load(path string) (*WarrenConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config WarrenConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
