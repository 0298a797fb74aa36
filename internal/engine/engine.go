package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alfredlabs/alfred/internal/audit"
	"github.com/alfredlabs/alfred/internal/knowledge"
	"github.com/alfredlabs/alfred/internal/resolver"
	"github.com/alfredlabs/alfred/internal/session"
)

// ErrInvalidInput rejects empty or whitespace-only messages before any
// side effect occurs.
var ErrInvalidInput = errors.New("message must not be empty")

// storeTimeout bounds every session store call so a slow store degrades
// instead of stalling the request.
const storeTimeout = 2 * time.Second

// Engine is the conversation orchestrator. It composes the knowledge
// index, session store, and resolver per request and owns the single
// place session mutation happens.
type Engine struct {
	index     *knowledge.Index
	sessions  session.Store
	resolver  *resolver.Resolver
	decisions *audit.Store // optional decision log
}

// New wires an engine. decisions may be nil to disable the decision log.
func New(index *knowledge.Index, sessions session.Store, res *resolver.Resolver, decisions *audit.Store) *Engine {
	return &Engine{index: index, sessions: sessions, resolver: res, decisions: decisions}
}

// Resolve runs one request through the full lifecycle:
// validate, load context, resolve, update session, respond.
//
// Only two failures are caller-visible: ErrInvalidInput and an
// exhausted embedding provider. A missing or unreachable session store
// degrades to context-less matching on an ephemeral session.
func (e *Engine) Resolve(ctx context.Context, message, sessionID string) (*resolver.MatchDecision, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil, ErrInvalidInput
	}

	sess, degraded := e.loadContext(ctx, sessionID)

	snap := e.index.Snapshot()
	decision, _, err := e.resolver.Resolve(ctx, snap, trimmed, sess)
	if err != nil {
		return nil, err
	}

	if sess != nil && !degraded {
		decision.SessionID = sess.ID
		e.commitTurn(ctx, snap, sess.ID, trimmed, decision)
	} else {
		// Degraded path: the caller still gets a session id, but it was
		// never persisted and no retroactive creation happens.
		decision.SessionID = uuid.New().String()
		decision.Ephemeral = true
	}

	e.logDecision(ctx, trimmed, decision)
	return decision, nil
}

// loadContext fetches or creates the session, best-effort. It returns
// degraded=true when the store is unreachable; resolution then proceeds
// without context rather than failing the request.
func (e *Engine) loadContext(ctx context.Context, sessionID string) (*session.Session, bool) {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if sessionID != "" {
		sess, err := e.sessions.Get(sctx, sessionID)
		switch {
		case err == nil:
			return sess, false
		case errors.Is(err, session.ErrNotFound):
			// Unseen or expired id: fall through and start fresh.
		default:
			log.Printf("warn: session store unavailable, resolving without context: %v", err)
			return nil, true
		}
	}

	sess, err := e.sessions.Create(sctx, "", nil)
	if err != nil {
		log.Printf("warn: session store unavailable, resolving without context: %v", err)
		return nil, true
	}
	return sess, false
}

// commitTurn is the single session mutation point: append the turn and
// fold the outcome into the context variables that feed the next turn's
// continuity boost. The store may have expired the session between read
// and write; that downgrades the decision to ephemeral.
func (e *Engine) commitTurn(ctx context.Context, snap *knowledge.Snapshot, sessionID, message string, decision *resolver.MatchDecision) {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	turn := session.Turn{
		Message:    message,
		IntentID:   decision.IntentID,
		Confidence: decision.Confidence,
		Response:   decision.Response,
		Timestamp:  time.Now().UTC(),
	}

	if _, err := e.sessions.AppendTurn(sctx, sessionID, turn); err != nil {
		log.Printf("warn: could not record turn for session %s: %v", sessionID, err)
		decision.Ephemeral = true
		return
	}

	category := "fallback"
	if intent := snap.IntentByID(decision.IntentID); intent != nil {
		category = intent.Metadata.Category
	}
	patch := map[string]any{
		"last_intent":   decision.IntentID,
		"last_category": category,
	}
	if _, err := e.sessions.MergeContext(sctx, sessionID, patch); err != nil {
		log.Printf("warn: could not update context for session %s: %v", sessionID, err)
	}
}

func (e *Engine) logDecision(ctx context.Context, message string, decision *resolver.MatchDecision) {
	if e.decisions == nil {
		return
	}
	err := e.decisions.Log(ctx, audit.Entry{
		SessionID:  decision.SessionID,
		Message:    message,
		IntentID:   decision.IntentID,
		Confidence: decision.Confidence,
		Fallback:   decision.IsFallback(),
		Response:   decision.Response,
		Ephemeral:  decision.Ephemeral,
	})
	if err != nil {
		log.Printf("warn: decision log write failed: %v", err)
	}
}

// CreateSession explicitly creates a session. Unlike the resolve path,
// a store failure here is surfaced to the caller.
func (e *Engine) CreateSession(ctx context.Context, userID string, initialContext map[string]any) (*session.Session, error) {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return e.sessions.Create(sctx, userID, initialContext)
}

// GetSession returns the session or session.ErrNotFound.
func (e *Engine) GetSession(ctx context.Context, id string) (*session.Session, error) {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return e.sessions.Get(sctx, id)
}

// MergeSessionContext shallow-merges patch into the session's context
// variables, last write wins per key.
func (e *Engine) MergeSessionContext(ctx context.Context, id string, patch map[string]any) (*session.Session, error) {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return e.sessions.MergeContext(sctx, id, patch)
}

// DeleteSession removes a session; deleting an absent one is not an error.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return e.sessions.Delete(sctx, id)
}

// ReloadKnowledge rebuilds the index off the hot path and swaps it in.
// On failure the previous good snapshot keeps serving.
func (e *Engine) ReloadKnowledge(ctx context.Context) error {
	return e.index.Reload(ctx)
}

// Stats describes the serving index.
type Stats struct {
	DefaultConfidenceThreshold float64   `json:"default_confidence_threshold"`
	TotalIntents               int       `json:"total_intents"`
	IndexLastLoadedAt          time.Time `json:"index_last_loaded_at"`
	KnowledgeBaseVersion       string    `json:"knowledge_base_version"`
}

// Stats reports engine-level statistics from the current snapshot.
func (e *Engine) Stats() Stats {
	snap := e.index.Snapshot()
	return Stats{
		DefaultConfidenceThreshold: snap.DefaultThreshold(),
		TotalIntents:               len(snap.Intents()),
		IndexLastLoadedAt:          snap.LoadedAt(),
		KnowledgeBaseVersion:       snap.Version(),
	}
}
