package broker

import "time"

// Metrics receives broker-side measurements. A nil Metrics is valid and
// records nothing; implementations live outside this package so the
// engine stays free of collector dependencies.
type Metrics interface {
	RecordSend(entity string, bytes int64)
	RecordReceive(entity, mode string, count int)
	RecordSettlement(entity, outcome string)
	RecordDeadLetter(entity, reason string)
	RecordFanout(topic string, matched int, elapsed time.Duration)
	RecordRateLimited(entity string)
	RecordLockExpired(entity string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSend(string, int64)                {}
func (noopMetrics) RecordReceive(string, string, int)       {}
func (noopMetrics) RecordSettlement(string, string)         {}
func (noopMetrics) RecordDeadLetter(string, string)         {}
func (noopMetrics) RecordFanout(string, int, time.Duration) {}
func (noopMetrics) RecordRateLimited(string)                {}
func (noopMetrics) RecordLockExpired(string)                {}
