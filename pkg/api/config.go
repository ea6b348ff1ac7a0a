package api

import "time"

// APIConfig configures the emulator HTTP server.
//
// One listener serves both surfaces: admin entity CRUD over Atom/XML
// and message operations over JSON.
type APIConfig struct {
	// Host is the listen address.
	// Default: 127.0.0.1
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP port for both surfaces.
	// Default: 5672
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// Namespace is the emulated namespace name; all routes are rooted
	// at /{namespace}.
	// Default: sbemulator
	Namespace string `mapstructure:"namespace" yaml:"namespace"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response. Must exceed the receive long-poll deadline.
	// Default: 120s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *APIConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port <= 0 {
		c.Port = 5672
	}
	if c.Namespace == "" {
		c.Namespace = "sbemulator"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 120 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}
