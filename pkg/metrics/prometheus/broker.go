// Package prometheus provides the Prometheus-backed implementations of
// the broker metrics interfaces. Importing it (blank import is enough)
// registers the constructors with pkg/metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/oladejiayo/localzure/pkg/broker"
	"github.com/oladejiayo/localzure/pkg/metrics"
)

func init() {
	metrics.RegisterBrokerMetricsConstructor(newBrokerMetrics)
}

// brokerMetrics is the Prometheus implementation of broker.Metrics.
type brokerMetrics struct {
	sends        *prometheus.CounterVec
	sendBytes    *prometheus.CounterVec
	receives     *prometheus.CounterVec
	settlements  *prometheus.CounterVec
	deadLetters  *prometheus.CounterVec
	fanouts      *prometheus.CounterVec
	fanoutTime   *prometheus.HistogramVec
	rateLimited  *prometheus.CounterVec
	locksExpired *prometheus.CounterVec
}

func newBrokerMetrics() broker.Metrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}

	return &brokerMetrics{
		sends: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "localzure_messages_sent_total",
				Help: "Total messages accepted by send or publish, by entity",
			},
			[]string{"entity"},
		),
		sendBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "localzure_message_bytes_sent_total",
				Help: "Total payload bytes accepted, by entity",
			},
			[]string{"entity"},
		),
		receives: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "localzure_messages_received_total",
				Help: "Total messages handed to consumers, by entity and receive mode",
			},
			[]string{"entity", "mode"},
		),
		settlements: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "localzure_settlements_total",
				Help: "Lock settlements by entity and outcome (complete, abandon, deadletter, renew)",
			},
			[]string{"entity", "outcome"},
		),
		deadLetters: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "localzure_dead_lettered_total",
				Help: "Messages moved to a dead-letter sub-queue, by entity and reason",
			},
			[]string{"entity", "reason"},
		),
		fanouts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "localzure_fanout_matches_total",
				Help: "Subscription copies created by topic publications",
			},
			[]string{"topic"},
		),
		fanoutTime: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "localzure_fanout_duration_seconds",
				Help:    "Wall time of a topic fan-out including rule evaluation",
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
			},
			[]string{"topic"},
		),
		rateLimited: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "localzure_rate_limited_total",
				Help: "Operations rejected by the per-entity token bucket",
			},
			[]string{"entity"},
		),
		locksExpired: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "localzure_locks_expired_total",
				Help: "Message locks that lapsed before settlement",
			},
			[]string{"entity"},
		),
	}
}

func (m *brokerMetrics) RecordSend(entity string, bytes int64) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(entity).Inc()
	m.sendBytes.WithLabelValues(entity).Add(float64(bytes))
}

func (m *brokerMetrics) RecordReceive(entity, mode string, count int) {
	if m == nil {
		return
	}
	m.receives.WithLabelValues(entity, mode).Add(float64(count))
}

func (m *brokerMetrics) RecordSettlement(entity, outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(entity, outcome).Inc()
}

func (m *brokerMetrics) RecordDeadLetter(entity, reason string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(entity, reason).Inc()
}

func (m *brokerMetrics) RecordFanout(topic string, matched int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fanouts.WithLabelValues(topic).Add(float64(matched))
	m.fanoutTime.WithLabelValues(topic).Observe(elapsed.Seconds())
}

func (m *brokerMetrics) RecordRateLimited(entity string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(entity).Inc()
}

func (m *brokerMetrics) RecordLockExpired(entity string) {
	if m == nil {
		return
	}
	m.locksExpired.WithLabelValues(entity).Inc()
}
