// Package handlers implements the HTTP handlers of both emulator
// surfaces: message operations over JSON and admin entity CRUD over
// Atom/XML.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oladejiayo/localzure/pkg/broker"
	"github.com/oladejiayo/localzure/pkg/broker/message"
	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// SendRequest is the JSON body of send and publish operations.
type SendRequest struct {
	Body                    string         `json:"body"`
	MessageID               string         `json:"message_id,omitempty"`
	SessionID               string         `json:"session_id,omitempty"`
	CorrelationID           string         `json:"correlation_id,omitempty"`
	ContentType             string         `json:"content_type,omitempty"`
	Label                   string         `json:"label,omitempty"`
	To                      string         `json:"to,omitempty"`
	ReplyTo                 string         `json:"reply_to,omitempty"`
	PartitionKey            string         `json:"partition_key,omitempty"`
	TimeToLive              float64        `json:"time_to_live,omitempty"`
	ScheduledEnqueueTimeUTC string         `json:"scheduled_enqueue_time_utc,omitempty"`
	UserProperties          map[string]any `json:"user_properties,omitempty"`
}

// Message builds the broker message described by the request.
func (req *SendRequest) Message() (*message.Message, error) {
	m := message.New([]byte(req.Body))
	if req.MessageID != "" {
		m.ID = req.MessageID
	}
	m.SessionID = req.SessionID
	m.CorrelationID = req.CorrelationID
	m.ContentType = req.ContentType
	m.Label = req.Label
	m.To = req.To
	m.ReplyTo = req.ReplyTo
	m.PartitionKey = req.PartitionKey
	m.UserProperties = req.UserProperties

	if req.TimeToLive > 0 {
		m.TTL = time.Duration(req.TimeToLive * float64(time.Second))
	}
	if req.ScheduledEnqueueTimeUTC != "" {
		at, err := time.Parse(time.RFC3339, req.ScheduledEnqueueTimeUTC)
		if err != nil {
			return nil, sberr.NewInvalidOperation("send",
				"scheduled_enqueue_time_utc must be RFC 3339")
		}
		m.ScheduledEnqueueTime = at.UTC()
	}
	return m, nil
}

// ReceivedMessage is the JSON form of a delivered message. Lock fields
// are null in ReceiveAndDelete mode.
type ReceivedMessage struct {
	MessageID      string         `json:"MessageId"`
	Body           string         `json:"Body"`
	Label          string         `json:"Label,omitempty"`
	CorrelationID  string         `json:"CorrelationId,omitempty"`
	ContentType    string         `json:"ContentType,omitempty"`
	To             string         `json:"To,omitempty"`
	ReplyTo        string         `json:"ReplyTo,omitempty"`
	SessionID      string         `json:"SessionId,omitempty"`
	PartitionKey   string         `json:"PartitionKey,omitempty"`
	SequenceNumber int64          `json:"SequenceNumber"`
	EnqueuedTime   time.Time      `json:"EnqueuedTimeUtc"`
	DeliveryCount  int            `json:"DeliveryCount"`
	LockToken      *string        `json:"LockToken"`
	LockedUntil    *time.Time     `json:"LockedUntilUtc,omitempty"`
	DeadLetterInfo *DeadLetter    `json:"DeadLetterInfo,omitempty"`
	UserProperties map[string]any `json:"UserProperties,omitempty"`
}

// DeadLetter describes why a message sits in a dead-letter sub-queue.
type DeadLetter struct {
	Reason      string `json:"Reason"`
	Description string `json:"Description,omitempty"`
}

// toWire converts a delivered message to its JSON form.
func toWire(m *message.Message) ReceivedMessage {
	out := ReceivedMessage{
		MessageID:      m.ID,
		Body:           string(m.Body),
		Label:          m.Label,
		CorrelationID:  m.CorrelationID,
		ContentType:    m.ContentType,
		To:             m.To,
		ReplyTo:        m.ReplyTo,
		SessionID:      m.SessionID,
		PartitionKey:   m.PartitionKey,
		SequenceNumber: m.SequenceNumber,
		EnqueuedTime:   m.EnqueuedTime.UTC(),
		DeliveryCount:  m.DeliveryCount,
		UserProperties: m.UserProperties,
	}
	if m.LockToken != "" {
		token := m.LockToken
		until := m.LockedUntil.UTC()
		out.LockToken = &token
		out.LockedUntil = &until
	}
	if m.DeadLetterReason != "" {
		out.DeadLetterInfo = &DeadLetter{
			Reason:      m.DeadLetterReason,
			Description: m.DeadLetterDescription,
		}
	}
	return out
}

func toWireBatch(msgs []*message.Message) []ReceivedMessage {
	out := make([]ReceivedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = toWire(m)
	}
	return out
}

// decodeJSONBody decodes a JSON request body into the provided pointer.
func decodeJSONBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return sberr.NewInvalidOperation("decode request", "invalid JSON body")
	}
	return nil
}

// queueRef resolves the {queue} path parameter, honoring the
// $DeadLetterQueue suffix routes.
func queueRef(r *http.Request, dlq bool) broker.Ref {
	ref := broker.QueueRef(chi.URLParam(r, "queue"))
	if dlq {
		ref = ref.AsDLQ()
	}
	return ref
}

// subscriptionRef resolves the {topic}/{sub} path parameters.
func subscriptionRef(r *http.Request, dlq bool) broker.Ref {
	ref := broker.SubscriptionRef(chi.URLParam(r, "topic"), chi.URLParam(r, "sub"))
	if dlq {
		ref = ref.AsDLQ()
	}
	return ref
}

// receiveMode parses the mode query parameter; PeekLock is the default.
func receiveMode(r *http.Request) (broker.ReceiveMode, error) {
	switch r.URL.Query().Get("mode") {
	case "", "PeekLock":
		return broker.PeekLock, nil
	case "ReceiveAndDelete":
		return broker.ReceiveAndDelete, nil
	default:
		return broker.PeekLock, sberr.NewInvalidOperation("receive",
			"mode must be PeekLock or ReceiveAndDelete")
	}
}

// intQuery parses an optional integer query parameter.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, sberr.NewInvalidOperation("parse query",
			name+" must be an integer")
	}
	return n, nil
}

// int64Query parses an optional int64 query parameter.
func int64Query(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, sberr.NewInvalidOperation("parse query",
			name+" must be an integer")
	}
	return n, nil
}

// listRange parses and validates the $skip/$top list parameters.
func listRange(r *http.Request) (skip, top int, err error) {
	if skip, err = intQuery(r, "$skip", 0); err != nil {
		return 0, 0, err
	}
	if top, err = intQuery(r, "$top", 100); err != nil {
		return 0, 0, err
	}
	if err = broker.ValidateListRange(skip, top); err != nil {
		return 0, 0, err
	}
	return skip, top, nil
}
