package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oladejiayo/localzure/pkg/broker"
	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// SessionLockTokenHeader carries the session lock token on
// session-scoped requests.
const SessionLockTokenHeader = "SessionLockToken"

// SessionHandler serves session accept, receive, renew, release, and
// state operations for queues and subscriptions.
type SessionHandler struct {
	broker *broker.Broker
}

// NewSessionHandler creates a session operations handler.
func NewSessionHandler(b *broker.Broker) *SessionHandler {
	return &SessionHandler{broker: b}
}

// AcceptedSession is the JSON response of a successful accept.
type AcceptedSession struct {
	SessionID        string    `json:"SessionId"`
	SessionLockToken string    `json:"SessionLockToken"`
	LockedUntil      time.Time `json:"LockedUntilUtc"`
}

// SessionStateBody wraps the opaque session state blob. A null state
// clears it.
type SessionStateBody struct {
	SessionState *string `json:"SessionState"`
}

func acceptedSession(s *broker.Session) AcceptedSession {
	return AcceptedSession{
		SessionID:        s.ID,
		SessionLockToken: s.LockToken,
		LockedUntil:      s.LockedUntil.UTC(),
	}
}

// session rebuilds the session handle presented by the request.
func session(r *http.Request, ref broker.Ref) (*broker.Session, error) {
	token := r.Header.Get(SessionLockTokenHeader)
	if token == "" {
		return nil, sberr.NewInvalidOperation("session",
			"missing "+SessionLockTokenHeader+" header")
	}
	return &broker.Session{
		Entity:    ref,
		ID:        chi.URLParam(r, "sessionID"),
		LockToken: token,
	}, nil
}

// AcceptNext handles POST .../sessions/head: lock the session with the
// oldest pending message.
func (h *SessionHandler) AcceptNext(queue bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := entityRef(r, queue, false)
		s, err := h.broker.AcceptNextSession(r.Context(), ref, r.RemoteAddr)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, acceptedSession(s))
	}
}

// Accept handles POST .../sessions/{sessionID}: lock one named session.
func (h *SessionHandler) Accept(queue bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := entityRef(r, queue, false)
		s, err := h.broker.AcceptSession(r.Context(), ref,
			chi.URLParam(r, "sessionID"), r.RemoteAddr)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, acceptedSession(s))
	}
}

// Release handles DELETE .../sessions/{sessionID}.
func (h *SessionHandler) Release(queue bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := session(r, entityRef(r, queue, false))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := h.broker.ReleaseSession(r.Context(), s); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Receive handles POST .../sessions/{sessionID}/messages/head: a FIFO
// batch from the locked session.
func (h *SessionHandler) Receive(queue bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := session(r, entityRef(r, queue, false))
		if err != nil {
			writeError(w, r, err)
			return
		}
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

		msgs, err := h.broker.ReceiveSession(r.Context(), s, mode, n)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(msgs) == 0 {
			writeJSON(w, http.StatusOK, json.RawMessage("null"))
			return
		}
		if n <= 1 {
			writeJSON(w, http.StatusOK, toWire(msgs[0]))
			return
		}
		writeJSON(w, http.StatusOK, toWireBatch(msgs))
	}
}

// RenewLock handles POST .../sessions/{sessionID}/renewlock.
func (h *SessionHandler) RenewLock(queue bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := session(r, entityRef(r, queue, false))
		if err != nil {
			writeError(w, r, err)
			return
		}
		until, err := h.broker.RenewSessionLock(r.Context(), s)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"LockedUntilUtc": until.UTC(),
		})
	}
}

// GetState handles GET .../sessions/{sessionID}/state.
func (h *SessionHandler) GetState(queue bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := session(r, entityRef(r, queue, false))
		if err != nil {
			writeError(w, r, err)
			return
		}
		state, err := h.broker.SessionState(r.Context(), s)
		if err != nil {
			writeError(w, r, err)
			return
		}

		var body SessionStateBody
		if state != nil {
			str := string(state)
			body.SessionState = &str
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// SetState handles PUT .../sessions/{sessionID}/state. A null
// SessionState clears the stored blob.
func (h *SessionHandler) SetState(queue bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := session(r, entityRef(r, queue, false))
		if err != nil {
			writeError(w, r, err)
			return
		}
		var body SessionStateBody
		if err := decodeJSONBody(r, &body); err != nil {
			writeError(w, r, err)
			return
		}

		var state []byte
		if body.SessionState != nil {
			state = []byte(*body.SessionState)
		}
		if err := h.broker.SetSessionState(r.Context(), s, state); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
