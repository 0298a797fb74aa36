package knowledge

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alfredlabs/alfred/internal/embeddings"
)

// PatternEntry is one pre-embedded pattern belonging to an intent.
type PatternEntry struct {
	IntentID string
	Pattern  string
	Vector   []float32
}

// PatternHit is the best-matching pattern of a single intent for a
// query, with its cosine similarity clamped to [0,1].
type PatternHit struct {
	IntentID   string
	Pattern    string
	Similarity float64
}

// PatternIndex is the swappable vector-search backend contract. An
// implementation is populated once at snapshot build time and then only
// read. Search returns at most one hit per intent: the pattern with the
// highest similarity to the query vector.
type PatternIndex interface {
	Add(ctx context.Context, entries []PatternEntry) error
	Search(ctx context.Context, query []float32) ([]PatternHit, error)
}

// BackendFactory constructs a fresh, empty PatternIndex. Reload uses it
// to build the replacement index off the hot path.
type BackendFactory func() (PatternIndex, error)

// Snapshot is one immutable, fully built view of the knowledge base.
// It is shared read-only across concurrent resolutions and replaced
// wholesale on reload, never mutated.
type Snapshot struct {
	version           string
	defaultThreshold  float64
	fallbackResponses []string
	intents           []Intent
	byID              map[string]*Intent
	patterns          PatternIndex
	loadedAt          time.Time
}

func (s *Snapshot) Version() string             { return s.version }
func (s *Snapshot) DefaultThreshold() float64   { return s.defaultThreshold }
func (s *Snapshot) FallbackResponses() []string { return s.fallbackResponses }
func (s *Snapshot) Intents() []Intent           { return s.intents }
func (s *Snapshot) LoadedAt() time.Time         { return s.loadedAt }

// IntentByID returns the intent with the given id, or nil.
func (s *Snapshot) IntentByID(id string) *Intent { return s.byID[id] }

// Search returns the best-matching pattern per intent for the query
// vector, unfiltered. Thresholding is the resolver's concern.
func (s *Snapshot) Search(ctx context.Context, query []float32) ([]PatternHit, error) {
	return s.patterns.Search(ctx, query)
}

// Index owns the process-wide knowledge base lifecycle: load once at
// startup, atomic snapshot swap on reload. In-flight resolutions keep
// whatever snapshot they grabbed; no torn reads are possible.
type Index struct {
	path     string
	embedder embeddings.Embedder
	backend  BackendFactory
	snap     atomic.Pointer[Snapshot]
}

// Load reads, validates, and pre-embeds the knowledge base at path.
// Any failure here is fatal at startup: the process must not serve
// without a good index.
func Load(ctx context.Context, path string, embedder embeddings.Embedder, backend BackendFactory) (*Index, error) {
	ix := &Index{path: path, embedder: embedder, backend: backend}
	snap, err := ix.build(ctx)
	if err != nil {
		return nil, err
	}
	ix.snap.Store(snap)
	return ix, nil
}

// Snapshot returns the current immutable view.
func (ix *Index) Snapshot() *Snapshot { return ix.snap.Load() }

// Reload rebuilds a complete new snapshot and swaps it in atomically.
// On failure the previous good snapshot keeps serving.
func (ix *Index) Reload(ctx context.Context) error {
	snap, err := ix.build(ctx)
	if err != nil {
		return err
	}
	ix.snap.Store(snap)
	return nil
}

func (ix *Index) build(ctx context.Context) (*Snapshot, error) {
	doc, err := ReadDocument(ix.path)
	if err != nil {
		return nil, err
	}

	patterns, err := ix.backend()
	if err != nil {
		return nil, &LoadError{Path: ix.path, Reason: "creating pattern index", Err: err}
	}

	// Embed every pattern in one batch. Matching is case-insensitive, so
	// the lowercased pattern is the canonical embedded form.
	var texts []string
	var entries []PatternEntry
	for _, in := range doc.Intents {
		for _, p := range in.Patterns {
			texts = append(texts, strings.ToLower(p))
			entries = append(entries, PatternEntry{IntentID: in.ID, Pattern: p})
		}
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, &LoadError{Path: ix.path, Reason: "embedding patterns", Err: err}
	}
	if len(vectors) != len(texts) {
		return nil, &LoadError{Path: ix.path, Reason: "embedder returned wrong vector count"}
	}
	for i := range entries {
		entries[i].Vector = vectors[i]
	}

	if err := patterns.Add(ctx, entries); err != nil {
		return nil, &LoadError{Path: ix.path, Reason: "populating pattern index", Err: err}
	}

	byID := make(map[string]*Intent, len(doc.Intents))
	for i := range doc.Intents {
		byID[doc.Intents[i].ID] = &doc.Intents[i]
	}

	return &Snapshot{
		version:           doc.Version,
		defaultThreshold:  doc.Metadata.SearchConfig.DefaultConfidenceThreshold,
		fallbackResponses: doc.Metadata.FallbackResponses,
		intents:           doc.Intents,
		byID:              byID,
		patterns:          patterns,
		loadedAt:          time.Now().UTC(),
	}, nil
}
