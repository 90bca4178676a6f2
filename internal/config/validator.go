package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

const (
	defaultThreadPoolSize      = 4
	defaultBackpressureSleepMS = 10
	defaultHealthPort          = "8080"
)

// Validate checks a loaded Config for correctness and fills in defaults
// (thread pool size, backpressure sleep, MQTT topics/QoS, health port)
// the way the teacher's config.Validate does — fail fast on anything a
// human must fix, default anything the daemon can reasonably assume.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Pipeline.ThreadPoolSize <= 0 {
		cfg.Pipeline.ThreadPoolSize = defaultThreadPoolSize
	}
	if cfg.Pipeline.BackpressureSleepMS <= 0 {
		cfg.Pipeline.BackpressureSleepMS = defaultBackpressureSleepMS
	}
	// MaxQueueBytes <= 0 is left as-is; player.New substitutes its own
	// default (15MiB) rather than duplicating that constant here.

	if cfg.Source.Autoplay && cfg.Source.URL == "" {
		return fmt.Errorf("source.autoplay requires source.url")
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("playerengine/control/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Status == "" {
			cfg.MQTT.Topics.Status = fmt.Sprintf("playerengine/status/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{"control": 1, "status": 0}
		}
	}

	if cfg.HealthPort == "" {
		cfg.HealthPort = defaultHealthPort
	}

	return nil
}
