package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "TRACE"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_ServerPortOutOfRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_LockDurationBounds(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Broker.LockDuration = 500 * time.Millisecond

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for lock duration below 1s")
	}

	cfg.Broker.LockDuration = 10 * time.Minute
	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for lock duration above 5m")
	}

	cfg.Broker.LockDuration = 2 * time.Minute
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected 2m lock duration to validate, got: %v", err)
	}
}

func TestValidate_NegativeRateOverride(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.RateLimit.Overrides = map[string]float64{"queue:orders": -5}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative rate override")
	}
}

func TestValidate_ZeroShutdownTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.ShutdownTimeout = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for zero shutdown timeout")
	}
}
