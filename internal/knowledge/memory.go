package knowledge

import (
	"context"
	"math"
)

// MemoryBackend is a brute-force in-memory cosine scan over all
// pattern vectors. It is the default backend: knowledge bases are
// small enough that an exact scan beats an approximate index.
type MemoryBackend struct {
	entries []PatternEntry
}

// NewMemoryBackend returns a BackendFactory producing brute-force scans.
func NewMemoryBackend() BackendFactory {
	return func() (PatternIndex, error) {
		return &MemoryBackend{}, nil
	}
}

func (b *MemoryBackend) Add(_ context.Context, entries []PatternEntry) error {
	b.entries = append(b.entries, entries...)
	return nil
}

func (b *MemoryBackend) Search(_ context.Context, query []float32) ([]PatternHit, error) {
	best := make(map[string]PatternHit)
	var order []string

	for _, e := range b.entries {
		sim := cosineSimilarity(query, e.Vector)
		hit, ok := best[e.IntentID]
		if !ok {
			order = append(order, e.IntentID)
		}
		if !ok || sim > hit.Similarity {
			best[e.IntentID] = PatternHit{IntentID: e.IntentID, Pattern: e.Pattern, Similarity: sim}
		}
	}

	hits := make([]PatternHit, 0, len(order))
	for _, id := range order {
		hits = append(hits, best[id])
	}
	return hits, nil
}

// cosineSimilarity returns the cosine of the angle between a and b,
// clamped to [0,1].
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return clampUnit(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// clampUnit bounds a similarity to [0,1]. Float rounding can push a
// cosine an epsilon past 1; negative similarity carries no useful
// signal for intent retrieval.
func clampUnit(sim float64) float64 {
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
