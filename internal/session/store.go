package session

import "context"

// Store is the per-session state contract. Mutations on the same
// session id are serialized by the implementation; mutations on
// different ids never block each other. Every mutation refreshes the
// session's TTL.
type Store interface {
	// Create generates a fresh session with a unique id. initialContext
	// may be nil.
	Create(ctx context.Context, userID string, initialContext map[string]any) (*Session, error)

	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// AppendTurn atomically appends a turn to the session history.
	AppendTurn(ctx context.Context, id string, turn Turn) (*Session, error)

	// MergeContext shallow-merges patch into the session's context
	// variables: each patch key overwrites, unmentioned keys survive.
	MergeContext(ctx context.Context, id string, patch map[string]any) (*Session, error)

	// Delete removes the session. Deleting an absent session is not an
	// error.
	Delete(ctx context.Context, id string) error
}
