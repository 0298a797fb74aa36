package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Turn is one completed exchange: the user message and the decision
// the engine produced for it.
type Turn struct {
	Message    string    `json:"message"`
	IntentID   string    `json:"intent_id"`
	Confidence float64   `json:"confidence"`
	Response   string    `json:"response"`
	Timestamp  time.Time `json:"timestamp"`
}

// Session is per-conversation state: append-only turn history plus
// arbitrary context variables with last-write-wins per key.
type Session struct {
	ID               string         `json:"session_id"`
	UserID           string         `json:"user_id,omitempty"`
	ContextVariables map[string]any `json:"context_variables"`
	History          []Turn         `json:"conversation_history"`
	CreatedAt        time.Time      `json:"created_at"`
	LastActivity     time.Time      `json:"last_activity"`
}

// Clone returns a deep copy so callers can never alias store-owned state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.ContextVariables = make(map[string]any, len(s.ContextVariables))
	for k, v := range s.ContextVariables {
		out.ContextVariables[k] = v
	}
	out.History = append([]Turn(nil), s.History...)
	return &out
}
