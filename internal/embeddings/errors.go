package embeddings

import "fmt"

// ProviderError reports a failure of the embedding provider after all
// retry attempts were exhausted. It is one of the two caller-visible
// failure kinds of the engine.
type ProviderError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s failed after %d attempts: %v", e.Provider, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
