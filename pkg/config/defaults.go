package config

import (
	"strings"
	"time"

	"github.com/oladejiayo/localzure/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyProfilingDefaults(&cfg.Profiling)
	applyMetricsDefaults(&cfg.Metrics)
	applyServerDefaults(&cfg.Server)
	applyBrokerDefaults(&cfg.Broker)
	applyRateLimitDefaults(&cfg.RateLimit)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

// applyProfilingDefaults sets Pyroscope defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Enabled defaults to false; the rest matters only when enabled
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false; the port matters only when enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyServerDefaults sets HTTP listener defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 5672
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Above the 60s receive deadline so long polls can drain
		cfg.WriteTimeout = 120 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

// applyBrokerDefaults sets messaging defaults.
func applyBrokerDefaults(cfg *BrokerConfig) {
	if cfg.Namespace == "" {
		cfg.Namespace = "sbemulator"
	}
	if cfg.LockDuration == 0 {
		cfg.LockDuration = 60 * time.Second
	}
	if cfg.MaxDeliveryCount == 0 {
		cfg.MaxDeliveryCount = 10
	}
	if cfg.DefaultMessageTTL == 0 {
		cfg.DefaultMessageTTL = 14 * 24 * time.Hour
	}
	if cfg.DuplicateDetectionWindow == 0 {
		cfg.DuplicateDetectionWindow = 10 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 250 * time.Millisecond
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 256 * bytesize.KB
	}
	if cfg.MaxEntitySize == 0 {
		cfg.MaxEntitySize = bytesize.GiB
	}
}

// applyRateLimitDefaults sets token bucket defaults.
func applyRateLimitDefaults(cfg *RateLimitConfig) {
	if cfg.Queue == 0 {
		cfg.Queue = 100
	}
	if cfg.Topic == 0 {
		cfg.Topic = 1000
	}
	if cfg.Subscription == 0 {
		cfg.Subscription = 100
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Running with no config file at all
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
