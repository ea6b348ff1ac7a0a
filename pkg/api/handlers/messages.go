package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oladejiayo/localzure/pkg/broker"
	"github.com/oladejiayo/localzure/pkg/broker/message"
)

// MessageHandler serves the JSON message operations of queues,
// subscriptions, and their dead-letter sub-queues.
type MessageHandler struct {
	broker *broker.Broker
}

// NewMessageHandler creates a message operations handler.
func NewMessageHandler(b *broker.Broker) *MessageHandler {
	return &MessageHandler{broker: b}
}

// Send handles POST /{queue}/messages.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := req.Message()
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.broker.Send(r.Context(), chi.URLParam(r, "queue"), m); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("BrokerProperties", brokerProperties(m))
	w.WriteHeader(http.StatusCreated)
}

// Publish handles POST /topics/{topic}/messages.
func (h *MessageHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := req.Message()
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.broker.Publish(r.Context(), chi.URLParam(r, "topic"), m); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("BrokerProperties", brokerProperties(m))
	w.WriteHeader(http.StatusCreated)
}

// Receive handles POST .../messages/head on queues, subscriptions, and
// their $DeadLetterQueue sub-queues. One message by default; batches
// via numofmessages. An empty result is 200 with a null body.
func (h *MessageHandler) Receive(queue, dlq bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.receive(w, r, entityRef(r, queue, dlq))
	}
}

func (h *MessageHandler) receive(w http.ResponseWriter, r *http.Request, ref broker.Ref) {
	mode, err := receiveMode(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := intQuery(r, "numofmessages", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	if secs, err := intQuery(r, "timeout", 0); err == nil && secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	msgs, err := h.broker.Receive(ctx, ref, mode, n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(msgs) == 0 {
		writeJSON(w, http.StatusOK, json.RawMessage("null"))
		return
	}

	// Single-message requests keep the flat object shape.
	if n <= 1 {
		writeJSON(w, http.StatusOK, toWire(msgs[0]))
		return
	}
	writeJSON(w, http.StatusOK, toWireBatch(msgs))
}

// Complete handles DELETE /{queue}/messages/{messageID}/{lockToken}.
func (h *MessageHandler) Complete(queue, dlq bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := entityRef(r, queue, dlq)
		err := h.broker.Complete(r.Context(), ref,
			chi.URLParam(r, "messageID"), chi.URLParam(r, "lockToken"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Abandon handles PUT /{queue}/messages/{messageID}/{lockToken}/abandon.
func (h *MessageHandler) Abandon(queue, dlq bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := entityRef(r, queue, dlq)
		err := h.broker.Abandon(r.Context(), ref,
			chi.URLParam(r, "messageID"), chi.URLParam(r, "lockToken"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// DeadLetter handles
// PUT /{queue}/messages/{messageID}/{lockToken}/deadletter.
func (h *MessageHandler) DeadLetter(queue bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := entityRef(r, queue, false)
		q := r.URL.Query()
		err := h.broker.DeadLetter(r.Context(), ref,
			chi.URLParam(r, "messageID"), chi.URLParam(r, "lockToken"),
			q.Get("reason"), q.Get("description"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// RenewLock handles
// POST /{queue}/messages/{messageID}/{lockToken}/renewlock.
func (h *MessageHandler) RenewLock(queue, dlq bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := entityRef(r, queue, dlq)
		until, err := h.broker.RenewLock(r.Context(), ref,
			chi.URLParam(r, "messageID"), chi.URLParam(r, "lockToken"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"LockedUntilUtc": until.UTC(),
		})
	}
}

// Peek handles GET /{queue}/messages/head. Non-destructive: no lock, no
// delivery count change.
func (h *MessageHandler) Peek(queue, dlq bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := entityRef(r, queue, dlq)
		from, err := int64Query(r, "fromSequenceNumber", 0)
		if err != nil {
			writeError(w, r, err)
			return
		}
		n, err := intQuery(r, "count", 1)
		if err != nil {
			writeError(w, r, err)
			return
		}

		msgs, err := h.broker.Peek(r.Context(), ref, from, n)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(msgs) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, toWireBatch(msgs))
	}
}

func entityRef(r *http.Request, queue, dlq bool) broker.Ref {
	if queue {
		return queueRef(r, dlq)
	}
	return subscriptionRef(r, dlq)
}

// brokerProperties renders the BrokerProperties response header.
func brokerProperties(m *message.Message) string {
	props := map[string]any{
		"MessageId":      m.ID,
		"SequenceNumber": m.SequenceNumber,
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "{}"
	}
	return string(data)
}
