// Package config loads, validates, and defaults the emulator
// configuration from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/oladejiayo/localzure/internal/bytesize"
)

// Config is the root configuration for the emulator.
//
// Configuration precedence (highest to lowest):
//  1. CLI flags (highest priority)
//  2. Environment variables (SBEMU_*)
//  3. Configuration file (YAML)
//  4. Default values
type Config struct {
	// Logging contains logging configuration
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry contains OpenTelemetry tracing configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Server contains the HTTP listener configuration
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Broker contains messaging defaults and quotas
	Broker BrokerConfig `mapstructure:"broker" yaml:"broker"`

	// RateLimit contains per-entity-kind token bucket rates
	RateLimit RateLimitConfig `mapstructure:"ratelimit" yaml:"ratelimit"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig specifies logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR
	// Default: INFO
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the log output format: text or json
	// Default: text
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is the log destination: stdout, stderr, or a file path
	// Default: stdout
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig contains OpenTelemetry distributed tracing configuration.
type TelemetryConfig struct {
	// Enabled controls whether trace export is active
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint
	// Default: localhost:4317
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// ProfilingConfig contains Pyroscope continuous profiling configuration.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is active
	// Default: false (opt-in)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: http://localhost:4040
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes selects which profiles to collect
	// Default: cpu, alloc_space, inuse_space, goroutines
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types,omitempty"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the /metrics
	// endpoint are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ServerConfig configures the emulator HTTP listener that serves both
// the admin (Atom/XML) and messaging (JSON) surfaces.
type ServerConfig struct {
	// Host is the listen address
	// Default: 127.0.0.1
	Host string `mapstructure:"host" validate:"required" yaml:"host"`

	// Port is the listen port
	// Default: 5672
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// ReadTimeout bounds request header and body reads
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout bounds response writes. Receive long-polling needs
	// headroom above the receive deadline.
	// Default: 120s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive connections
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// BrokerConfig carries the namespace identity plus the entity-level
// defaults applied when a queue or subscription does not set its own.
type BrokerConfig struct {
	// Namespace is the emulated namespace name, echoed in entity URLs
	// Default: sbemulator
	Namespace string `mapstructure:"namespace" validate:"required" yaml:"namespace"`

	// LockDuration is the default PeekLock lock duration
	// Clamped to [1s, 5m] at acquisition
	// Default: 60s
	LockDuration time.Duration `mapstructure:"lock_duration" yaml:"lock_duration"`

	// MaxDeliveryCount is the default delivery attempt ceiling before a
	// message is dead-lettered
	// Default: 10
	MaxDeliveryCount int `mapstructure:"max_delivery_count" validate:"omitempty,gt=0" yaml:"max_delivery_count"`

	// DefaultMessageTTL applies to messages that carry no TTL of their own
	// Default: 336h (14 days)
	DefaultMessageTTL time.Duration `mapstructure:"default_message_ttl" yaml:"default_message_ttl"`

	// DuplicateDetectionWindow is the default dedup history window for
	// entities with duplicate detection enabled
	// Default: 10m
	DuplicateDetectionWindow time.Duration `mapstructure:"duplicate_detection_window" yaml:"duplicate_detection_window"`

	// SweepInterval is the background lifecycle sweep cadence
	// Default: 250ms
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// MaxMessageSize is the largest accepted message payload
	// Supports human-readable formats: "256KB", "1Mi"
	// Default: 256KB
	MaxMessageSize bytesize.ByteSize `mapstructure:"max_message_size" yaml:"max_message_size,omitempty"`

	// MaxEntitySize is the default per-entity storage quota
	// Default: 1Gi
	MaxEntitySize bytesize.ByteSize `mapstructure:"max_entity_size" yaml:"max_entity_size,omitempty"`
}

// RateLimitConfig sets the token bucket refill rates, in operations per
// second, for each entity kind. Burst capacity is twice the rate.
type RateLimitConfig struct {
	// Queue is the per-queue operation rate
	// Default: 100
	Queue float64 `mapstructure:"queue" validate:"omitempty,gt=0" yaml:"queue"`

	// Topic is the per-topic operation rate
	// Default: 1000
	Topic float64 `mapstructure:"topic" validate:"omitempty,gt=0" yaml:"topic"`

	// Subscription is the per-subscription operation rate
	// Default: 100
	Subscription float64 `mapstructure:"subscription" validate:"omitempty,gt=0" yaml:"subscription"`

	// Overrides maps entity keys ("queue:orders") to custom rates
	Overrides map[string]float64 `mapstructure:"overrides" yaml:"overrides,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML
// format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the SBEMU_ prefix and underscores
	// Example: SBEMU_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("SBEMU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize
// so config files can use human-readable sizes like "256KB" or "1Gi".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration so config files
// can use human-readable durations like "30s" or "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to
// the current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "sbemu")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "sbemu")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
