package metrics

import "github.com/oladejiayo/localzure/pkg/broker"

// NewBrokerMetrics creates the Prometheus-backed broker metrics sink.
//
// Returns nil if metrics are not enabled (InitRegistry not called); the
// broker treats a nil sink as a no-op.
func NewBrokerMetrics() broker.Metrics {
	if !IsEnabled() || newPrometheusBrokerMetrics == nil {
		return nil
	}
	return newPrometheusBrokerMetrics()
}

// newPrometheusBrokerMetrics is registered by pkg/metrics/prometheus at
// package initialization; the indirection keeps this package free of
// collector imports.
var newPrometheusBrokerMetrics func() broker.Metrics

// RegisterBrokerMetricsConstructor is called by pkg/metrics/prometheus
// during init.
func RegisterBrokerMetricsConstructor(constructor func() broker.Metrics) {
	newPrometheusBrokerMetrics = constructor
}
