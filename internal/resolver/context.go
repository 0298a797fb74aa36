package resolver

import (
	"github.com/alfredlabs/alfred/internal/knowledge"
	"github.com/alfredlabs/alfred/internal/session"
)

const (
	// recentTurns is how far back continuity and topic signals reach.
	recentTurns = 5

	// Each boost is individually capped so the blended context score
	// stays in [0,1] and neither signal can drown out the other.
	continuityCap = 0.5
	tagOverlapCap = 0.5

	// continuityDecay shrinks the contribution of each turn further in
	// the past; the most recent repeat contributes continuityCap.
	continuityDecay = 0.5

	// categoryFactor discounts a category-only repeat relative to an
	// exact intent repeat.
	categoryFactor = 0.5
)

// contextScore measures contextual relevance of an intent in [0,1]:
// a continuity boost for recent repeats of the intent or its category,
// and a tag-overlap boost against the session's active topic set.
// Cold start (no session or empty history) is pure-similarity: zero.
// The function is deterministic and monotonic: more recent repeats and
// larger tag overlap never lower the score.
func contextScore(snap *knowledge.Snapshot, intent knowledge.Intent, sess *session.Session) float64 {
	if sess == nil || len(sess.History) == 0 {
		return 0
	}

	recent := sess.History
	if len(recent) > recentTurns {
		recent = recent[len(recent)-recentTurns:]
	}

	score := continuityBoost(snap, intent, recent) + tagOverlapBoost(snap, intent, sess, recent)
	if score > 1 {
		score = 1
	}
	return score
}

// continuityBoost sums a decayed contribution per recent turn that
// repeated this intent (full weight) or its category (discounted),
// capped at continuityCap.
func continuityBoost(snap *knowledge.Snapshot, intent knowledge.Intent, recent []session.Turn) float64 {
	var boost float64
	weight := continuityCap

	for i := len(recent) - 1; i >= 0; i-- {
		turn := recent[i]
		switch {
		case turn.IntentID == intent.ID:
			boost += weight
		case sameCategory(snap, turn.IntentID, intent):
			boost += weight * categoryFactor
		}
		weight *= continuityDecay
	}

	if boost > continuityCap {
		boost = continuityCap
	}
	return boost
}

func sameCategory(snap *knowledge.Snapshot, intentID string, intent knowledge.Intent) bool {
	past := snap.IntentByID(intentID)
	return past != nil && past.Metadata.Category == intent.Metadata.Category
}

// tagOverlapBoost scores the fraction of the intent's tags present in
// the session's active topic set, scaled to tagOverlapCap. The active
// set is the union of tags from recently matched intents and any
// "active_topics" context variable.
func tagOverlapBoost(snap *knowledge.Snapshot, intent knowledge.Intent, sess *session.Session, recent []session.Turn) float64 {
	if len(intent.Metadata.Tags) == 0 {
		return 0
	}

	active := make(map[string]bool)
	for _, turn := range recent {
		if past := snap.IntentByID(turn.IntentID); past != nil {
			for _, tag := range past.Metadata.Tags {
				active[tag] = true
			}
		}
	}
	for _, tag := range topicsFromContext(sess.ContextVariables["active_topics"]) {
		active[tag] = true
	}
	if len(active) == 0 {
		return 0
	}

	overlap := 0
	for _, tag := range intent.Metadata.Tags {
		if active[tag] {
			overlap++
		}
	}
	return tagOverlapCap * float64(overlap) / float64(len(intent.Metadata.Tags))
}

// topicsFromContext tolerates the shapes a JSON round-trip can give the
// active_topics variable: []string, []any of strings, or a single string.
func topicsFromContext(v any) []string {
	switch topics := v.(type) {
	case []string:
		return topics
	case []any:
		out := make([]string, 0, len(topics))
		for _, t := range topics {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{topics}
	default:
		return nil
	}
}
