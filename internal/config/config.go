// Package config loads and validates the demo daemon's YAML configuration:
// instance identity, pipeline sizing, and the MQTT control plane.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for cmd/playerengined.
type Config struct {
	InstanceID string         `yaml:"instance_id"`
	Source     SourceConfig   `yaml:"source"`
	Pipeline   PipelineConfig `yaml:"pipeline"`
	MQTT       MQTTConfig     `yaml:"mqtt"`
	HealthPort string         `yaml:"health_port"`
}

// SourceConfig names the URL loaded at startup, if any. Left empty, the
// daemon starts with no media and waits for a set_source control command.
type SourceConfig struct {
	URL      string `yaml:"url"`
	Autoplay bool   `yaml:"autoplay"`
}

// PipelineConfig sizes the player core: how many OS threads Go may spread
// its goroutines across, and the backpressure thresholds the demuxer
// worker enforces against the packet queues.
type PipelineConfig struct {
	ThreadPoolSize      int `yaml:"thread_pool_size"`
	MaxQueueBytes       int `yaml:"max_queue_bytes"`
	BackpressureSleepMS int `yaml:"backpressure_sleep_ms"`
}

// MQTTConfig configures the control plane's broker connection.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics names the control and status topics. Left empty, Validate
// derives them from InstanceID.
type MQTTTopics struct {
	Control string `yaml:"control"`
	Status  string `yaml:"status"`
}

// Load reads, parses, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
