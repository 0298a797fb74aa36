package resolver

import (
	"context"
	"sort"
	"strings"

	"github.com/alfredlabs/alfred/internal/embeddings"
	"github.com/alfredlabs/alfred/internal/knowledge"
	"github.com/alfredlabs/alfred/internal/session"
)

// Resolver is the matching engine: similarity retrieval against the
// knowledge base snapshot, context-score blending, deterministic
// ranking, and the two-stage confidence gate.
type Resolver struct {
	embedder embeddings.Embedder
}

// New creates a resolver using the given embedder for query vectors.
func New(embedder embeddings.Embedder) *Resolver {
	return &Resolver{embedder: embedder}
}

// Resolve matches the canonical (trimmed, lowercased) message against
// the snapshot, blending in context from sess (which may be nil for
// cold starts and degraded paths). It returns the accepted decision and
// the full ranked candidate list. The only error cause is the embedding
// provider; every other condition resolves to a decision.
func (r *Resolver) Resolve(ctx context.Context, snap *knowledge.Snapshot, message string, sess *session.Session) (*MatchDecision, []Candidate, error) {
	canonical := strings.ToLower(strings.TrimSpace(message))

	vectors, err := r.embedder.Embed(ctx, []string{canonical})
	if err != nil {
		return nil, nil, err
	}
	queryVec := vectors[0]

	hits, err := snap.Search(ctx, queryVec)
	if err != nil {
		return nil, nil, err
	}

	// Stage 1: the retrieval filter bounds the candidate set cheaply
	// before any contextual weighting.
	retrievalThreshold := snap.DefaultThreshold()
	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		if hit.Similarity < retrievalThreshold {
			continue
		}
		intent := snap.IntentByID(hit.IntentID)
		if intent == nil {
			continue
		}

		ctxScore := contextScore(snap, *intent, sess)
		candidates = append(candidates, Candidate{
			IntentID:        hit.IntentID,
			SimilarityScore: hit.Similarity,
			ContextScore:    ctxScore,
			FinalScore:      similarityWeight*hit.Similarity + contextWeight*ctxScore,
			MatchedPattern:  hit.Pattern,
		})
	}

	rank(snap, candidates)

	// Stage 2: the acceptance gate. Only the top candidate is eligible,
	// and only if it clears the intent's own threshold.
	if len(candidates) > 0 {
		top := candidates[0]
		intent := snap.IntentByID(top.IntentID)
		if top.FinalScore >= intent.Threshold(snap.DefaultThreshold()) {
			matched := top.MatchedPattern
			return &MatchDecision{
				IntentID:     top.IntentID,
				Confidence:   top.FinalScore,
				Response:     rotate(intent.Responses, turnCount(sess)),
				MatchedQuery: &matched,
			}, candidates, nil
		}
	}

	return Fallback(snap, sess), candidates, nil
}

// rank orders candidates by final score descending, then priority
// ascending, then intent id lexicographically. Any input and snapshot
// therefore yields exactly one winner.
func rank(snap *knowledge.Snapshot, candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		pa := snap.IntentByID(a.IntentID).Metadata.Priority
		pb := snap.IntentByID(b.IntentID).Metadata.Priority
		if pa != pb {
			return pa < pb
		}
		return a.IntentID < b.IntentID
	})
}

// rotate picks a response by deterministic rotation on the session turn
// count, so repeated hits on one intent vary without randomness.
func rotate(responses []string, turns int) string {
	return responses[turns%len(responses)]
}

func turnCount(sess *session.Session) int {
	if sess == nil {
		return 0
	}
	return len(sess.History)
}
