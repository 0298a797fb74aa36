package resolver

import (
	"github.com/alfredlabs/alfred/internal/knowledge"
	"github.com/alfredlabs/alfred/internal/session"
)

// Fallback builds the non-match decision. It never fails: the fallback
// response set is validated non-empty at knowledge base load time.
// Selection rotates deterministically on the session turn count so a
// returning user does not see the same sentence twice in a row; with no
// session the first entry is used.
func Fallback(snap *knowledge.Snapshot, sess *session.Session) *MatchDecision {
	responses := snap.FallbackResponses()
	return &MatchDecision{
		IntentID:     FallbackIntentID,
		Confidence:   0.0,
		Response:     responses[turnCount(sess)%len(responses)],
		MatchedQuery: nil,
	}
}
