package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alfredlabs/alfred/internal/knowledge"
	"github.com/alfredlabs/alfred/internal/session"
)

// stubEmbedder maps known texts to fixed vectors so similarities in
// tests are exact. Unknown texts land on a reserved axis orthogonal to
// every known vector.
type stubEmbedder struct {
	vectors map[string][]float32
}

const stubDims = 8

func axis(i int) []float32 {
	v := make([]float32, stubDims)
	v[i] = 1
	return v
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{vectors: map[string][]float32{
		"hello":            axis(0),
		"hi":               axis(1),
		"bye":              axis(2),
		"billing question": axis(3),
		// Equidistant from "hello" and "bye".
		"blend": {0.7071068, 0, 0.7071068, 0, 0, 0, 0, 0},
	}}
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := s.vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = axis(stubDims - 1)
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return stubDims }
func (s *stubEmbedder) Name() string    { return "stub" }

const testKB = `{
	"version": "1.0.0",
	"metadata": {
		"search_config": {"default_confidence_threshold": 0.25},
		"fallback_responses": ["Sorry, what?", "Try again please."]
	},
	"intents": [
		{
			"id": "greeting",
			"patterns": ["hello", "hi"],
			"responses": ["Hi there!", "Hello again!"],
			"metadata": {"category": "smalltalk", "priority": 2, "tags": ["social"]}
		},
		{
			"id": "farewell",
			"patterns": ["bye"],
			"responses": ["Bye!"],
			"metadata": {"category": "smalltalk", "priority": 1, "tags": ["social"]}
		},
		{
			"id": "billing",
			"patterns": ["billing question"],
			"responses": ["Billing help."],
			"metadata": {"category": "support", "confidence_threshold": 0.9, "priority": 1, "tags": ["billing"]}
		}
	]
}`

func buildSnapshot(t *testing.T, kb string) *knowledge.Snapshot {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb.json")
	if err := os.WriteFile(path, []byte(kb), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	index, err := knowledge.Load(context.Background(), path, newStubEmbedder(), knowledge.NewMemoryBackend())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return index.Snapshot()
}

func TestResolve_ExactMatch(t *testing.T) {
	snap := buildSnapshot(t, testKB)
	res := New(newStubEmbedder())
	ctx := context.Background()

	// Canonicalization: leading space and upper case must not matter.
	decision, candidates, err := res.Resolve(ctx, snap, "  Hello", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if decision.IntentID != "greeting" {
		t.Fatalf("IntentID = %q, want greeting", decision.IntentID)
	}
	if decision.IsFallback() {
		t.Error("exact match flagged as fallback")
	}
	// Cold start has zero context score: confidence is the weighted
	// similarity alone.
	if diff := decision.Confidence - 0.7; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("Confidence = %v, want 0.7", decision.Confidence)
	}
	if decision.MatchedQuery == nil || *decision.MatchedQuery != "hello" {
		t.Errorf("MatchedQuery = %v, want hello", decision.MatchedQuery)
	}
	if decision.Response != "Hi there!" {
		t.Errorf("Response = %q, want first response on cold start", decision.Response)
	}

	if len(candidates) != 1 {
		t.Fatalf("candidate count = %d, want 1 (others below retrieval threshold)", len(candidates))
	}
	if candidates[0].SimilarityScore < 0.999 {
		t.Errorf("SimilarityScore = %v, want ~1", candidates[0].SimilarityScore)
	}
}

func TestResolve_FallbackOnNoCandidates(t *testing.T) {
	snap := buildSnapshot(t, testKB)
	res := New(newStubEmbedder())

	decision, candidates, err := res.Resolve(context.Background(), snap, "xyzzy", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if !decision.IsFallback() {
		t.Fatalf("IntentID = %q, want fallback", decision.IntentID)
	}
	if decision.Confidence != 0 {
		t.Errorf("fallback Confidence = %v, want 0", decision.Confidence)
	}
	if decision.MatchedQuery != nil {
		t.Errorf("fallback MatchedQuery = %v, want nil", *decision.MatchedQuery)
	}
	if len(candidates) != 0 {
		t.Errorf("candidate count = %d, want 0", len(candidates))
	}
}

// A candidate can win retrieval and ranking yet still miss its own
// acceptance threshold. The decision must be fallback, not a weak match.
func TestResolve_AcceptanceGate(t *testing.T) {
	snap := buildSnapshot(t, testKB)
	res := New(newStubEmbedder())

	decision, candidates, err := res.Resolve(context.Background(), snap, "billing question", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if !decision.IsFallback() {
		t.Fatalf("IntentID = %q, want fallback (0.7 < intent threshold 0.9)", decision.IntentID)
	}
	if len(candidates) != 1 || candidates[0].IntentID != "billing" {
		t.Fatalf("expected billing as sole candidate, got %+v", candidates)
	}
}

func TestResolve_TieBreakPriority(t *testing.T) {
	snap := buildSnapshot(t, testKB)
	res := New(newStubEmbedder())

	// "blend" is equidistant from greeting and farewell; farewell has the
	// numerically lower priority and must win.
	decision, candidates, err := res.Resolve(context.Background(), snap, "blend", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if decision.IntentID != "farewell" {
		t.Errorf("IntentID = %q, want farewell", decision.IntentID)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidate count = %d, want 2", len(candidates))
	}
	if candidates[0].FinalScore != candidates[1].FinalScore {
		t.Fatalf("expected a genuine tie, got %v vs %v", candidates[0].FinalScore, candidates[1].FinalScore)
	}
}

func TestResolve_TieBreakLexicographic(t *testing.T) {
	kb := `{
		"metadata": {
			"search_config": {"default_confidence_threshold": 0.25},
			"fallback_responses": ["hm"]
		},
		"intents": [
			{"id": "beta", "patterns": ["hello"], "responses": ["b"], "metadata": {"priority": 1}},
			{"id": "alpha", "patterns": ["hi"], "responses": ["a"], "metadata": {"priority": 1}}
		]
	}`
	snap := buildSnapshot(t, kb)

	// Query a vector equidistant from both patterns so score and
	// priority tie, leaving only the id to decide.
	emb := newStubEmbedder()
	emb.vectors["blend"] = []float32{0.7071068, 0.7071068, 0, 0, 0, 0, 0, 0}
	res := New(emb)

	decision, _, err := res.Resolve(context.Background(), snap, "blend", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if decision.IntentID != "alpha" {
		t.Errorf("IntentID = %q, want alpha (lexicographic tie break)", decision.IntentID)
	}
}

func TestResolve_ContextBoostsRecentIntent(t *testing.T) {
	snap := buildSnapshot(t, testKB)
	res := New(newStubEmbedder())
	ctx := context.Background()

	cold, _, err := res.Resolve(ctx, snap, "blend", nil)
	if err != nil {
		t.Fatalf("Resolve cold: %v", err)
	}

	sess := &session.Session{
		ID:      "s-1",
		History: []session.Turn{{Message: "bye", IntentID: "farewell"}},
	}
	warm, _, err := res.Resolve(ctx, snap, "blend", sess)
	if err != nil {
		t.Fatalf("Resolve warm: %v", err)
	}

	if warm.IntentID != "farewell" {
		t.Fatalf("IntentID = %q, want farewell", warm.IntentID)
	}
	if warm.Confidence <= cold.Confidence {
		t.Errorf("context did not raise confidence: warm %v <= cold %v", warm.Confidence, cold.Confidence)
	}
	if warm.Confidence > 1 {
		t.Errorf("Confidence = %v, exceeds 1", warm.Confidence)
	}
}

func TestResolve_ResponseRotation(t *testing.T) {
	snap := buildSnapshot(t, testKB)
	res := New(newStubEmbedder())
	ctx := context.Background()

	turns := func(n int) *session.Session {
		sess := &session.Session{ID: "s-1"}
		for i := 0; i < n; i++ {
			sess.History = append(sess.History, session.Turn{IntentID: "greeting"})
		}
		return sess
	}

	for _, tc := range []struct {
		turns int
		want  string
	}{
		{0, "Hi there!"},
		{1, "Hello again!"},
		{2, "Hi there!"},
		{3, "Hello again!"},
	} {
		decision, _, err := res.Resolve(ctx, snap, "hello", turns(tc.turns))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if decision.Response != tc.want {
			t.Errorf("turns=%d: Response = %q, want %q", tc.turns, decision.Response, tc.want)
		}
	}
}

func TestResolve_Deterministic(t *testing.T) {
	snap := buildSnapshot(t, testKB)
	res := New(newStubEmbedder())
	ctx := context.Background()

	sess := &session.Session{
		ID:      "s-1",
		History: []session.Turn{{IntentID: "greeting"}, {IntentID: "farewell"}},
	}

	first, _, err := res.Resolve(ctx, snap, "blend", sess)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _, err := res.Resolve(ctx, snap, "blend", sess)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if again.IntentID != first.IntentID || again.Confidence != first.Confidence {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestResolve_ScoresStayInRange(t *testing.T) {
	snap := buildSnapshot(t, testKB)
	res := New(newStubEmbedder())
	ctx := context.Background()

	sess := &session.Session{
		ID:               "s-1",
		ContextVariables: map[string]any{"active_topics": []any{"social", "billing"}},
	}
	for i := 0; i < 10; i++ {
		sess.History = append(sess.History, session.Turn{IntentID: "greeting"})
	}

	for _, msg := range []string{"hello", "hi", "bye", "blend", "billing question", "xyzzy"} {
		_, candidates, err := res.Resolve(ctx, snap, msg, sess)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", msg, err)
		}
		for _, c := range candidates {
			if c.SimilarityScore < 0 || c.SimilarityScore > 1 {
				t.Errorf("%q: SimilarityScore %v out of range", msg, c.SimilarityScore)
			}
			if c.ContextScore < 0 || c.ContextScore > 1 {
				t.Errorf("%q: ContextScore %v out of range", msg, c.ContextScore)
			}
			if c.FinalScore < 0 || c.FinalScore > 1 {
				t.Errorf("%q: FinalScore %v out of range", msg, c.FinalScore)
			}
		}
	}
}
