package filter

import "strings"

// CorrelationFilter matches messages by equality on a fixed set of system
// properties plus arbitrary user properties. An unset field does not
// constrain the match. It is equivalent to a conjunction of eq checks and
// follows the same null, case, and type rules as the SQL evaluator.
type CorrelationFilter struct {
	CorrelationID string
	Label         string
	MessageID     string
	To            string
	ReplyTo       string
	SessionID     string
	Properties    map[string]any
}

// IsEmpty reports whether the filter constrains nothing. An empty
// correlation filter matches no message; at least one field must be set.
func (f *CorrelationFilter) IsEmpty() bool {
	return f.CorrelationID == "" && f.Label == "" && f.MessageID == "" &&
		f.To == "" && f.ReplyTo == "" && f.SessionID == "" && len(f.Properties) == 0
}

// Matches evaluates the filter against a message's system and user
// property maps. System property keys are the receive-wire names
// (CorrelationId, Label, MessageId, To, ReplyTo, SessionId).
func (f *CorrelationFilter) Matches(system, user map[string]any) bool {
	check := func(field, key string) bool {
		if field == "" {
			return true
		}
		return valuesEqual(normalize(system[key]), field)
	}

	if !check(f.CorrelationID, "CorrelationId") ||
		!check(f.Label, "Label") ||
		!check(f.MessageID, "MessageId") ||
		!check(f.To, "To") ||
		!check(f.ReplyTo, "ReplyTo") ||
		!check(f.SessionID, "SessionId") {
		return false
	}

	for key, want := range f.Properties {
		got, ok := lookupFold(user, key)
		if !ok {
			return false
		}
		if !valuesEqual(normalize(got), normalize(want)) {
			return false
		}
	}
	return true
}

func lookupFold(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
