package embeddings

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultMaxAttempts = 3

// RetryingEmbedder wraps an Embedder with bounded exponential-backoff
// retries. When the attempt budget is exhausted the last error is
// surfaced as a *ProviderError.
type RetryingEmbedder struct {
	inner       Embedder
	maxAttempts int
}

// WithRetry decorates the given embedder. maxAttempts <= 0 selects the
// default of 3.
func WithRetry(inner Embedder, maxAttempts int) *RetryingEmbedder {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &RetryingEmbedder{inner: inner, maxAttempts: maxAttempts}
}

func (r *RetryingEmbedder) Name() string    { return r.inner.Name() }
func (r *RetryingEmbedder) Dimensions() int { return r.inner.Dimensions() }

func (r *RetryingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var results [][]float32

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	op := func() error {
		var err error
		results, err = r.inner.Embed(ctx, texts)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.maxAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, &ProviderError{Provider: r.inner.Name(), Attempts: r.maxAttempts, Err: err}
	}
	return results, nil
}
