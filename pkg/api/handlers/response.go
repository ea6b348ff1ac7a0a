package handlers

import (
	"encoding/json"
	"encoding/xml"
	"net/http"

	"github.com/oladejiayo/localzure/internal/logger"
	"github.com/oladejiayo/localzure/pkg/api/atom"
	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// ErrorEnvelope is the JSON error body shared by both surfaces.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the machine code, human message, and recovery
// context of a failed operation.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// writeAtom writes an Atom/XML response with the given status code.
func writeAtom(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", atom.ContentType)
	w.WriteHeader(status)

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	if err := xml.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode atom response", "error", err)
	}
}

// writeError maps a broker error onto the HTTP status table and writes
// the JSON error envelope. A correlation id in the request context is
// echoed in details.correlation_id.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := sberr.HTTPStatus(err)

	body := ErrorBody{
		Code:    sberr.CodeOf(err).String(),
		Message: err.Error(),
	}
	if e, ok := sberr.AsError(err); ok {
		body.Message = e.Message
		if len(e.Details) > 0 {
			body.Details = make(map[string]any, len(e.Details)+1)
			for k, v := range e.Details {
				body.Details[k] = v
			}
		}
	}

	if lc := logger.FromContext(r.Context()); lc != nil && lc.CorrelationID != "" {
		if body.Details == nil {
			body.Details = make(map[string]any, 1)
		}
		body.Details["correlation_id"] = lc.CorrelationID
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorCtx(r.Context(), "request failed",
			"status", status, "code", body.Code, "error", err)
	} else {
		logger.DebugCtx(r.Context(), "request rejected",
			"status", status, "code", body.Code)
	}

	writeJSON(w, status, ErrorEnvelope{Error: body})
}
