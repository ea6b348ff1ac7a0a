package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for broker operations.
// These follow OpenTelemetry messaging semantic conventions where
// applicable; emulator-specific keys use the "sb." prefix.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Messaging attributes
	// ========================================================================
	AttrMessagingSystem = "messaging.system"
	AttrDestination     = "messaging.destination.name"
	AttrDestinationKind = "messaging.destination.kind" // queue, subscription
	AttrOperation       = "messaging.operation"
	AttrMessageID       = "messaging.message.id"
	AttrBatchCount      = "messaging.batch.message_count"

	// ========================================================================
	// Emulator-specific attributes
	// ========================================================================
	AttrSessionID     = "sb.session_id"
	AttrReceiveMode   = "sb.receive_mode"
	AttrDeliveryCount = "sb.delivery_count"
	AttrDLQReason     = "sb.dead_letter_reason"
	AttrRuleName      = "sb.rule_name"
	AttrFilterExpr    = "sb.filter_expression"
	AttrEntityType    = "sb.entity_type" // queue, topic, subscription, rule
	AttrErrorCode     = "sb.error_code"

	// ========================================================================
	// HTTP attributes
	// ========================================================================
	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.response.status_code"
)

// messagingSystem identifies the broker in every messaging span.
const messagingSystem = "sbemu"

// Span names for operations.
// Format: <component>.<operation>
const (
	SpanHTTPRequest = "http.request"

	SpanSend        = "broker.send"
	SpanPublish     = "broker.publish"
	SpanReceive     = "broker.receive"
	SpanPeek        = "broker.peek"
	SpanComplete    = "broker.complete"
	SpanAbandon     = "broker.abandon"
	SpanDeadLetter  = "broker.dead_letter"
	SpanRenewLock   = "broker.renew_lock"
	SpanAcceptSess  = "broker.accept_session"
	SpanReceiveSess = "broker.receive_session"

	SpanAdminPut    = "admin.put"
	SpanAdminGet    = "admin.get"
	SpanAdminDelete = "admin.delete"
	SpanAdminList   = "admin.list"

	SpanFilterEval = "filter.evaluate"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Destination returns an attribute for the target entity path
func Destination(path string) attribute.KeyValue {
	return attribute.String(AttrDestination, path)
}

// DestinationKind returns an attribute for the entity kind
func DestinationKind(kind string) attribute.KeyValue {
	return attribute.String(AttrDestinationKind, kind)
}

// Operation returns an attribute for the broker operation name
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// MessageID returns an attribute for the message identifier
func MessageID(id string) attribute.KeyValue {
	return attribute.String(AttrMessageID, id)
}

// BatchCount returns an attribute for the number of messages moved
func BatchCount(n int) attribute.KeyValue {
	return attribute.Int(AttrBatchCount, n)
}

// SessionID returns an attribute for the message session
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// ReceiveMode returns an attribute for the receive mode
func ReceiveMode(mode string) attribute.KeyValue {
	return attribute.String(AttrReceiveMode, mode)
}

// DeliveryCount returns an attribute for the message delivery count
func DeliveryCount(n int) attribute.KeyValue {
	return attribute.Int(AttrDeliveryCount, n)
}

// DLQReason returns an attribute for the dead-letter reason
func DLQReason(reason string) attribute.KeyValue {
	return attribute.String(AttrDLQReason, reason)
}

// RuleName returns an attribute for a subscription rule name
func RuleName(name string) attribute.KeyValue {
	return attribute.String(AttrRuleName, name)
}

// FilterExpr returns an attribute for a filter expression
func FilterExpr(expr string) attribute.KeyValue {
	return attribute.String(AttrFilterExpr, expr)
}

// EntityType returns an attribute for the admin entity kind
func EntityType(kind string) attribute.KeyValue {
	return attribute.String(AttrEntityType, kind)
}

// ErrorCode returns an attribute for the taxonomy error code
func ErrorCode(code string) attribute.KeyValue {
	return attribute.String(AttrErrorCode, code)
}

// HTTPMethod returns an attribute for the request method
func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

// HTTPRoute returns an attribute for the matched route
func HTTPRoute(route string) attribute.KeyValue {
	return attribute.String(AttrHTTPRoute, route)
}

// HTTPStatus returns an attribute for the response status code
func HTTPStatus(status int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, status)
}

// StartBrokerSpan starts a span for a broker operation against one
// entity. This is a convenience function that sets common attributes.
func StartBrokerSpan(ctx context.Context, span, operation, destination string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		attribute.String(AttrMessagingSystem, messagingSystem),
		Operation(operation),
	}
	if destination != "" {
		allAttrs = append(allAttrs, Destination(destination))
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, span, trace.WithAttributes(allAttrs...))
}

// StartAdminSpan starts a span for an admin entity operation.
func StartAdminSpan(ctx context.Context, span, entityType, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		EntityType(entityType),
		Destination(name),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, span, trace.WithAttributes(allAttrs...))
}

// StartFilterSpan starts a span for a rule filter evaluation.
func StartFilterSpan(ctx context.Context, ruleName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		RuleName(ruleName),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanFilterEval, trace.WithAttributes(allAttrs...))
}
