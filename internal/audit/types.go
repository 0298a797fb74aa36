package audit

import "time"

// Entry is one recorded resolution outcome. Written after the engine
// reaches its terminal state; failures to record never fail the request.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	Message    string    `json:"message"`
	IntentID   string    `json:"intent_id"`
	Confidence float64   `json:"confidence"`
	Fallback   bool      `json:"fallback"`
	Response   string    `json:"response"`
	Ephemeral  bool      `json:"ephemeral"`
}

// Stats aggregates the decision log.
type Stats struct {
	Total     int            `json:"total"`
	Fallbacks int            `json:"fallbacks"`
	ByIntent  map[string]int `json:"by_intent"`
}
