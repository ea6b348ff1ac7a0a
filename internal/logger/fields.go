package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that logs can be
// aggregated and queried across the broker, dispatcher, and HTTP boundary.
const (
	// Request correlation
	KeyCorrelationID = "correlation_id" // Client-supplied correlation ID
	KeyRequestID     = "request_id"     // HTTP middleware request ID
	KeyClientAddr    = "client_addr"    // Remote address of the client

	// Broker operations
	KeyOperation  = "operation"   // Broker operation: Send, Receive, Complete, ...
	KeyEntity     = "entity"      // Queue, topic, or topic/subscription path
	KeyEntityType = "entity_type" // queue, topic, subscription, rule

	// Messages
	KeyMessageID   = "message_id"
	KeySequence    = "sequence_number"
	KeyLockToken   = "lock_token"
	KeySessionID   = "session_id"
	KeyDeliveryCnt = "delivery_count"
	KeyReason      = "reason" // dead-letter reason

	// Outcome
	KeyStatus   = "status"
	KeyError    = "error"
	KeyDuration = "duration_ms"
)
