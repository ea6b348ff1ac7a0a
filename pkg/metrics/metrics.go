// Package metrics holds the process-wide Prometheus registry gate.
// Collectors are created only after InitRegistry; before that every
// constructor returns nil and instrumented code runs with zero overhead.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection. Safe to call once at startup;
// later calls keep the existing registry.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return registry != nil
}

// GetRegistry returns the process registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

// ResetForTest discards the registry so tests can re-init cleanly.
func ResetForTest() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
}
