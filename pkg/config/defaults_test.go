package config

import (
	"testing"
	"time"

	"github.com/oladejiayo/localzure/internal/bytesize"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format text, got %q", cfg.Logging.Format)
	}
	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("Expected default telemetry endpoint, got %q", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("Expected default sample rate 1.0, got %v", cfg.Telemetry.SampleRate)
	}
	if cfg.Server.Port != 5672 {
		t.Errorf("Expected default port 5672, got %d", cfg.Server.Port)
	}
	if cfg.Broker.DefaultMessageTTL != 14*24*time.Hour {
		t.Errorf("Expected default TTL 14 days, got %v", cfg.Broker.DefaultMessageTTL)
	}
	if cfg.Broker.DuplicateDetectionWindow != 10*time.Minute {
		t.Errorf("Expected default dup window 10m, got %v", cfg.Broker.DuplicateDetectionWindow)
	}
	if cfg.Broker.MaxMessageSize != 256*bytesize.KB {
		t.Errorf("Expected default max message size 256KB, got %d", cfg.Broker.MaxMessageSize)
	}
	if cfg.Broker.MaxEntitySize != bytesize.GiB {
		t.Errorf("Expected default max entity size 1Gi, got %d", cfg.Broker.MaxEntitySize)
	}
	if cfg.RateLimit.Queue != 100 || cfg.RateLimit.Topic != 1000 || cfg.RateLimit.Subscription != 100 {
		t.Errorf("Unexpected default rates: %+v", cfg.RateLimit)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "warn"
	cfg.Broker.MaxDeliveryCount = 3
	cfg.Server.Port = 8888
	ApplyDefaults(cfg)

	// Level is normalized to uppercase
	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level WARN, got %q", cfg.Logging.Level)
	}
	if cfg.Broker.MaxDeliveryCount != 3 {
		t.Errorf("Expected max delivery count 3, got %d", cfg.Broker.MaxDeliveryCount)
	}
	if cfg.Server.Port != 8888 {
		t.Errorf("Expected port 8888, got %d", cfg.Server.Port)
	}
}

func TestApplyDefaults_MetricsPortOnlyWhenEnabled(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 0 {
		t.Errorf("Expected no metrics port while disabled, got %d", cfg.Metrics.Port)
	}

	cfg = &Config{}
	cfg.Metrics.Enabled = true
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected metrics port 9090 when enabled, got %d", cfg.Metrics.Port)
	}
}

func TestGetDefaultConfig_Validates(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config must validate, got: %v", err)
	}
}
