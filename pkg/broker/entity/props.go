package entity

import "time"

// Property defaults applied when a create request leaves a field unset.
const (
	DefaultLockDuration     = 60 * time.Second
	DefaultMaxDeliveryCount = 10
	DefaultMessageTTL       = 14 * 24 * time.Hour
	DefaultDuplicateWindow  = 10 * time.Minute
	DefaultMaxSizeBytes     = 1 << 30
)

// QueueProperties are the client-settable attributes of a queue.
type QueueProperties struct {
	MaxSizeBytes               int64
	DefaultMessageTTL          time.Duration
	LockDuration               time.Duration
	RequiresSession            bool
	RequiresDuplicateDetection bool
	DuplicateDetectionWindow   time.Duration
	DeadLetterOnExpire         bool
	MaxDeliveryCount           int
	EnableBatching             bool
}

// ApplyDefaults fills zero-valued fields with the namespace defaults.
func (p *QueueProperties) ApplyDefaults() {
	if p.MaxSizeBytes == 0 {
		p.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if p.DefaultMessageTTL == 0 {
		p.DefaultMessageTTL = DefaultMessageTTL
	}
	if p.LockDuration == 0 {
		p.LockDuration = DefaultLockDuration
	}
	if p.MaxDeliveryCount == 0 {
		p.MaxDeliveryCount = DefaultMaxDeliveryCount
	}
	if p.DuplicateDetectionWindow == 0 {
		p.DuplicateDetectionWindow = DefaultDuplicateWindow
	}
}

// TopicProperties mirror queue properties without lock and delivery
// attributes; topics hold messages only for the duration of fan-out.
type TopicProperties struct {
	MaxSizeBytes               int64
	DefaultMessageTTL          time.Duration
	RequiresDuplicateDetection bool
	DuplicateDetectionWindow   time.Duration
	EnableBatching             bool
}

func (p *TopicProperties) ApplyDefaults() {
	if p.MaxSizeBytes == 0 {
		p.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if p.DefaultMessageTTL == 0 {
		p.DefaultMessageTTL = DefaultMessageTTL
	}
	if p.DuplicateDetectionWindow == 0 {
		p.DuplicateDetectionWindow = DefaultDuplicateWindow
	}
}

// SubscriptionProperties carry the queue-style lock and delivery
// attributes plus filter-error dead-lettering.
type SubscriptionProperties struct {
	DefaultMessageTTL       time.Duration
	LockDuration            time.Duration
	RequiresSession         bool
	DeadLetterOnExpire      bool
	DeadLetterOnFilterError bool
	MaxDeliveryCount        int
}

func (p *SubscriptionProperties) ApplyDefaults() {
	if p.DefaultMessageTTL == 0 {
		p.DefaultMessageTTL = DefaultMessageTTL
	}
	if p.LockDuration == 0 {
		p.LockDuration = DefaultLockDuration
	}
	if p.MaxDeliveryCount == 0 {
		p.MaxDeliveryCount = DefaultMaxDeliveryCount
	}
}

// RuntimeCounters are the live counters reported on entity descriptions.
type RuntimeCounters struct {
	ActiveMessageCount     int
	ScheduledMessageCount  int
	DeadLetterMessageCount int
	SizeInBytes            int64
}
