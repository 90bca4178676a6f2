package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "playerengine.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, `
instance_id: cam-01
source:
  url: file:///tmp/clip.mp4
  autoplay: true
pipeline:
  thread_pool_size: 4
  max_queue_bytes: 1048576
  backpressure_sleep_ms: 10
mqtt:
  broker: tcp://localhost:1883
health_port: "9090"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.InstanceID != "cam-01" {
		t.Errorf("InstanceID = %q", cfg.InstanceID)
	}
	if cfg.Source.URL != "file:///tmp/clip.mp4" || !cfg.Source.Autoplay {
		t.Errorf("unexpected Source: %+v", cfg.Source)
	}
	if cfg.MQTT.Topics.Control != "playerengine/control/cam-01" {
		t.Errorf("expected derived control topic, got %q", cfg.MQTT.Topics.Control)
	}
	if cfg.HealthPort != "9090" {
		t.Errorf("HealthPort = %q, want 9090", cfg.HealthPort)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "instance_id: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoadFailsValidation(t *testing.T) {
	path := writeTempConfig(t, "instance_id: \"\"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty instance_id")
	}
}
