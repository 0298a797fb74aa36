package knowledge

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"

	"github.com/alfredlabs/alfred/internal/embeddings"
)

const patternCollection = "patterns"

// ChromemBackend indexes pattern vectors in a chromem-go collection.
// Interchangeable with MemoryBackend behind the PatternIndex contract.
type ChromemBackend struct {
	collection *chromem.Collection
	count      int
}

// NewChromemBackend returns a BackendFactory producing chromem-backed
// indexes. The embedder is only consulted by chromem for text queries,
// which this backend never issues; vectors are always supplied directly.
func NewChromemBackend(embedder embeddings.Embedder) BackendFactory {
	return func() (PatternIndex, error) {
		db := chromem.NewDB()
		col, err := db.GetOrCreateCollection(patternCollection, nil, embeddings.ToChromemFunc(embedder))
		if err != nil {
			return nil, fmt.Errorf("create chromem collection: %w", err)
		}
		return &ChromemBackend{collection: col}, nil
	}
}

func (b *ChromemBackend) Add(ctx context.Context, entries []PatternEntry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        fmt.Sprintf("%s#%d", e.IntentID, i),
			Content:   e.Pattern,
			Embedding: e.Vector,
			Metadata:  map[string]string{"intent_id": e.IntentID},
		}
	}

	if err := b.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("chromem add documents: %w", err)
	}
	b.count += len(docs)
	return nil
}

func (b *ChromemBackend) Search(ctx context.Context, query []float32) ([]PatternHit, error) {
	if b.count == 0 {
		return nil, nil
	}

	// Ask for every pattern so the per-intent maximum is exact.
	results, err := b.collection.QueryEmbedding(ctx, query, b.count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	best := make(map[string]PatternHit)
	var order []string
	for _, r := range results {
		intentID := r.Metadata["intent_id"]
		sim := clampUnit(float64(r.Similarity))
		hit, ok := best[intentID]
		if !ok {
			order = append(order, intentID)
		}
		if !ok || sim > hit.Similarity {
			best[intentID] = PatternHit{IntentID: intentID, Pattern: r.Content, Similarity: sim}
		}
	}

	hits := make([]PatternHit, 0, len(order))
	for _, id := range order {
		hits = append(hits, best[id])
	}
	return hits, nil
}
