package embeddings

import (
	"context"
	"errors"
	"testing"
)

// flakyEmbedder fails the first failures calls, then succeeds.
type flakyEmbedder struct {
	failures int
	calls    int
}

var errTransient = errors.New("transient provider error")

func (f *flakyEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errTransient
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *flakyEmbedder) Dimensions() int { return 2 }
func (f *flakyEmbedder) Name() string    { return "flaky" }

func TestWithRetry_RecoversFromTransientFailure(t *testing.T) {
	inner := &flakyEmbedder{failures: 2}
	embedder := WithRetry(inner, 3)

	vectors, err := embedder.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
}

func TestWithRetry_ExhaustionYieldsProviderError(t *testing.T) {
	inner := &flakyEmbedder{failures: 100}
	embedder := WithRetry(inner, 1)

	_, err := embedder.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("got %T, want *ProviderError", err)
	}
	if provErr.Provider != "flaky" {
		t.Errorf("Provider = %q, want flaky", provErr.Provider)
	}
	if provErr.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", provErr.Attempts)
	}
	if !errors.Is(err, errTransient) {
		t.Error("ProviderError should wrap the underlying cause")
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
}

func TestWithRetry_Passthrough(t *testing.T) {
	embedder := WithRetry(&flakyEmbedder{}, 0)

	if embedder.Name() != "flaky" {
		t.Errorf("Name = %q, want flaky", embedder.Name())
	}
	if embedder.Dimensions() != 2 {
		t.Errorf("Dimensions = %d, want 2", embedder.Dimensions())
	}
}
