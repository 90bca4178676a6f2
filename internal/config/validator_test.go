package config

import "testing"

func TestValidateRequiresInstanceID(t *testing.T) {
	cfg := &Config{}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing instance_id")
	}
}

func TestValidateRejectsBadInstanceID(t *testing.T) {
	tests := []struct {
		name       string
		instanceID string
		wantErr    bool
	}{
		{"lowercase alnum", "cam-01", false},
		{"digits only", "42", false},
		{"uppercase rejected", "Cam-01", true},
		{"spaces rejected", "cam 01", true},
		{"empty rejected", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{InstanceID: tt.instanceID}
			err := Validate(cfg)
			if tt.wantErr && err == nil {
				t.Errorf("expected error for instance_id %q, got nil", tt.instanceID)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for instance_id %q: %v", tt.instanceID, err)
			}
		})
	}
}

func TestValidateFillsPipelineDefaults(t *testing.T) {
	cfg := &Config{InstanceID: "cam-01"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.ThreadPoolSize != defaultThreadPoolSize {
		t.Errorf("ThreadPoolSize = %d, want %d", cfg.Pipeline.ThreadPoolSize, defaultThreadPoolSize)
	}
	if cfg.Pipeline.BackpressureSleepMS != defaultBackpressureSleepMS {
		t.Errorf("BackpressureSleepMS = %d, want %d", cfg.Pipeline.BackpressureSleepMS, defaultBackpressureSleepMS)
	}
}

func TestValidateLeavesExplicitPipelineValues(t *testing.T) {
	cfg := &Config{InstanceID: "cam-01", Pipeline: PipelineConfig{ThreadPoolSize: 8, BackpressureSleepMS: 25}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.ThreadPoolSize != 8 {
		t.Errorf("ThreadPoolSize was overwritten: got %d", cfg.Pipeline.ThreadPoolSize)
	}
	if cfg.Pipeline.BackpressureSleepMS != 25 {
		t.Errorf("BackpressureSleepMS was overwritten: got %d", cfg.Pipeline.BackpressureSleepMS)
	}
}

func TestValidateAutoplayRequiresURL(t *testing.T) {
	cfg := &Config{InstanceID: "cam-01", Source: SourceConfig{Autoplay: true}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for autoplay without url")
	}

	cfg = &Config{InstanceID: "cam-01", Source: SourceConfig{Autoplay: true, URL: "file:///tmp/x.mp4"}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateDerivesMQTTTopicsFromInstanceID(t *testing.T) {
	cfg := &Config{InstanceID: "cam-01", MQTT: MQTTConfig{Broker: "tcp://localhost:1883"}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MQTT.Topics.Control != "playerengine/control/cam-01" {
		t.Errorf("Topics.Control = %q", cfg.MQTT.Topics.Control)
	}
	if cfg.MQTT.Topics.Status != "playerengine/status/cam-01" {
		t.Errorf("Topics.Status = %q", cfg.MQTT.Topics.Status)
	}
	if cfg.MQTT.QoS["control"] != 1 || cfg.MQTT.QoS["status"] != 0 {
		t.Errorf("unexpected default QoS map: %+v", cfg.MQTT.QoS)
	}
}

func TestValidateLeavesExplicitMQTTTopics(t *testing.T) {
	cfg := &Config{
		InstanceID: "cam-01",
		MQTT: MQTTConfig{
			Broker: "tcp://localhost:1883",
			Topics: MQTTTopics{Control: "custom/control", Status: "custom/status"},
		},
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MQTT.Topics.Control != "custom/control" {
		t.Errorf("Topics.Control was overwritten: got %q", cfg.MQTT.Topics.Control)
	}
	if cfg.MQTT.Topics.Status != "custom/status" {
		t.Errorf("Topics.Status was overwritten: got %q", cfg.MQTT.Topics.Status)
	}
}

func TestValidateSkipsMQTTDefaultsWithoutBroker(t *testing.T) {
	cfg := &Config{InstanceID: "cam-01"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MQTT.Topics.Control != "" || cfg.MQTT.Topics.Status != "" {
		t.Errorf("expected empty topics without a broker, got %+v", cfg.MQTT.Topics)
	}
}

func TestValidateFillsHealthPort(t *testing.T) {
	cfg := &Config{InstanceID: "cam-01"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HealthPort != defaultHealthPort {
		t.Errorf("HealthPort = %q, want %q", cfg.HealthPort, defaultHealthPort)
	}
}
