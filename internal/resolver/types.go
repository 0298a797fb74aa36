package resolver

// FallbackIntentID is the sentinel intent id of a fallback decision.
const FallbackIntentID = "fallback"

// Blend weights are fixed system constants, not configuration, so that
// ranking is reproducible across deployments.
const (
	similarityWeight = 0.7
	contextWeight    = 0.3
)

// Candidate is one intent that survived stage-1 retrieval, scored for
// ranking. Transient per resolution.
type Candidate struct {
	IntentID        string  `json:"intent_id"`
	SimilarityScore float64 `json:"similarity_score"`
	ContextScore    float64 `json:"context_score"`
	FinalScore      float64 `json:"final_score"`
	MatchedPattern  string  `json:"matched_pattern"`
}

// MatchDecision is the accepted outcome of a resolution: either a
// confident intent match or the fallback. MatchedQuery is the pattern
// that produced the winning similarity, nil for fallback. Ephemeral
// marks a session id that was never persisted (degraded store path).
type MatchDecision struct {
	SessionID    string  `json:"session_id"`
	IntentID     string  `json:"intent_id"`
	Confidence   float64 `json:"confidence"`
	Response     string  `json:"response"`
	MatchedQuery *string `json:"matched_query"`
	Ephemeral    bool    `json:"ephemeral,omitempty"`
}

// IsFallback reports whether the decision is the fallback path.
func (d *MatchDecision) IsFallback() bool { return d.IntentID == FallbackIntentID }
