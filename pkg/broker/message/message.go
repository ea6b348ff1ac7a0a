// Package message defines the broker message model shared by queues,
// topics, and subscriptions.
package message

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a message. A message is in exactly one
// state; removal (complete, TTL without dead-lettering) is modeled by the
// message leaving its container entirely.
type State int

const (
	StateScheduled State = iota
	StateActive
	StateLocked
	StateDeadLettered
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateActive:
		return "active"
	case StateLocked:
		return "locked"
	case StateDeadLettered:
		return "dead-lettered"
	default:
		return "unknown"
	}
}

// Dead-letter reasons applied by the lifecycle engine and the dispatcher.
const (
	ReasonMaxDeliveryCountExceeded = "MaxDeliveryCountExceeded"
	ReasonTTLExpired               = "TTLExpired"
	ReasonFilterEvaluationError    = "FilterEvaluationError"
	ReasonProcessingError          = "ProcessingError"
)

// Message is a single broker message. System properties are set by the
// producer (or defaulted at ingestion), lifecycle fields are owned by the
// store and lock manager of the entity currently holding the message.
type Message struct {
	ID   string
	Body []byte

	// System properties.
	Label                string
	CorrelationID        string
	ContentType          string
	To                   string
	ReplyTo              string
	SessionID            string
	PartitionKey         string
	TTL                  time.Duration
	ScheduledEnqueueTime time.Time
	SequenceNumber       int64
	EnqueuedTime         time.Time

	UserProperties map[string]any

	// Lifecycle fields.
	State                 State
	DeliveryCount         int
	LockToken             string
	LockedUntil           time.Time
	LockedBy              string
	DeadLetterReason      string
	DeadLetterDescription string
	DeadLetteredAt        time.Time
}

// New builds a message with a generated id when the caller supplied none.
// Sequence number and enqueued time are assigned by the store at ingestion.
func New(body []byte) *Message {
	return &Message{
		ID:    uuid.NewString(),
		Body:  body,
		State: StateActive,
	}
}

// Clone returns an independent copy for topic fan-out. Body bytes and the
// user property map are copied; lifecycle fields reset so each subscription
// copy runs its own delivery bookkeeping. The sequence number is inherited.
func (m *Message) Clone() *Message {
	c := &Message{
		ID:                   m.ID,
		Body:                 append([]byte(nil), m.Body...),
		Label:                m.Label,
		CorrelationID:        m.CorrelationID,
		ContentType:          m.ContentType,
		To:                   m.To,
		ReplyTo:              m.ReplyTo,
		SessionID:            m.SessionID,
		PartitionKey:         m.PartitionKey,
		TTL:                  m.TTL,
		ScheduledEnqueueTime: m.ScheduledEnqueueTime,
		SequenceNumber:       m.SequenceNumber,
		EnqueuedTime:         m.EnqueuedTime,
		State:                StateActive,
	}
	if m.UserProperties != nil {
		c.UserProperties = make(map[string]any, len(m.UserProperties))
		for k, v := range m.UserProperties {
			c.UserProperties[k] = v
		}
	}
	return c
}

// Expired reports whether the message's time-to-live has elapsed. A zero
// TTL means the entity default applies and is resolved by the caller.
func (m *Message) Expired(now time.Time) bool {
	if m.TTL <= 0 || m.EnqueuedTime.IsZero() {
		return false
	}
	return !now.Before(m.EnqueuedTime.Add(m.TTL))
}

// Size returns the byte size counted against the entity quota: body plus
// an estimate of the property payload.
func (m *Message) Size() int64 {
	size := int64(len(m.Body))
	size += int64(len(m.Label) + len(m.CorrelationID) + len(m.ContentType) +
		len(m.To) + len(m.ReplyTo) + len(m.SessionID) + len(m.PartitionKey))
	for k, v := range m.UserProperties {
		size += int64(len(k))
		if s, ok := v.(string); ok {
			size += int64(len(s))
		} else {
			size += 8
		}
	}
	return size
}

// SystemProperties returns the receive-wire view of the system properties,
// used by correlation filters.
func (m *Message) SystemProperties() map[string]any {
	return map[string]any{
		"MessageId":      m.ID,
		"CorrelationId":  m.CorrelationID,
		"Label":          m.Label,
		"ContentType":    m.ContentType,
		"To":             m.To,
		"ReplyTo":        m.ReplyTo,
		"SessionId":      m.SessionID,
		"PartitionKey":   m.PartitionKey,
		"SequenceNumber": m.SequenceNumber,
	}
}

// FilterProperties returns the property map SQL rule filters evaluate
// against: user properties overlaid on the system ones, user keys winning
// on collision.
func (m *Message) FilterProperties() map[string]any {
	props := m.SystemProperties()
	if !m.EnqueuedTime.IsZero() {
		props["EnqueuedTimeUtc"] = m.EnqueuedTime
	}
	for k, v := range m.UserProperties {
		props[k] = v
	}
	return props
}
