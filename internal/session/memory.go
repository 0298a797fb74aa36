package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const janitorInterval = time.Minute

// MemoryStore keeps sessions in process memory with TTL-based expiry.
// Each session carries its own mutex, so concurrent mutations on the
// same id serialize while different ids proceed fully in parallel.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*memEntry
	ttl        time.Duration
	maxHistory int
	stop       chan struct{}
	stopOnce   sync.Once
}

type memEntry struct {
	mu        sync.Mutex
	sess      Session
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store. maxHistory bounds the
// retained turn count per session (oldest trimmed first); zero means
// unbounded.
func NewMemoryStore(ttl time.Duration, maxHistory int) *MemoryStore {
	return newMemoryStore(ttl, maxHistory, janitorInterval)
}

func newMemoryStore(ttl time.Duration, maxHistory int, sweepEvery time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions:   make(map[string]*memEntry),
		ttl:        ttl,
		maxHistory: maxHistory,
		stop:       make(chan struct{}),
	}
	go s.janitor(sweepEvery)
	return s
}

// Close stops the expiry janitor.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) Create(_ context.Context, userID string, initialContext map[string]any) (*Session, error) {
	now := time.Now().UTC()
	sess := Session{
		ID:               uuid.New().String(),
		UserID:           userID,
		ContextVariables: make(map[string]any, len(initialContext)),
		CreatedAt:        now,
		LastActivity:     now,
	}
	for k, v := range initialContext {
		sess.ContextVariables[k] = v
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &memEntry{sess: sess, expiresAt: now.Add(s.ttl)}
	s.mu.Unlock()

	return sess.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if time.Now().After(e.expiresAt) {
		s.evict(id)
		return nil, ErrNotFound
	}
	return e.sess.Clone(), nil
}

func (s *MemoryStore) AppendTurn(_ context.Context, id string, turn Turn) (*Session, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if time.Now().After(e.expiresAt) {
		s.evict(id)
		return nil, ErrNotFound
	}

	e.sess.History = append(e.sess.History, turn)
	if s.maxHistory > 0 && len(e.sess.History) > s.maxHistory {
		e.sess.History = e.sess.History[len(e.sess.History)-s.maxHistory:]
	}
	s.touch(e)
	return e.sess.Clone(), nil
}

func (s *MemoryStore) MergeContext(_ context.Context, id string, patch map[string]any) (*Session, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if time.Now().After(e.expiresAt) {
		s.evict(id)
		return nil, ErrNotFound
	}

	if e.sess.ContextVariables == nil {
		e.sess.ContextVariables = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		e.sess.ContextVariables[k] = v
	}
	s.touch(e)
	return e.sess.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Count returns the number of live sessions.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) entry(id string) (*memEntry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) evict(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// touch refreshes activity and extends the TTL; callers hold e.mu.
func (s *MemoryStore) touch(e *memEntry) {
	now := time.Now().UTC()
	e.sess.LastActivity = now
	e.expiresAt = now.Add(s.ttl)
}

// janitor sweeps expired sessions. expiresAt is guarded by e.mu, so the
// sweep snapshots the entry set first and then checks each entry under
// its own lock. Lock order is e.mu before s.mu, same as the mutators,
// which also means an entry mid-mutation is never evicted underneath
// the mutator.
func (s *MemoryStore) janitor(sweepEvery time.Duration) {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.RLock()
			entries := make(map[string]*memEntry, len(s.sessions))
			for id, e := range s.sessions {
				entries[id] = e
			}
			s.mu.RUnlock()

			for id, e := range entries {
				e.mu.Lock()
				if now.After(e.expiresAt) {
					s.evict(id)
				}
				e.mu.Unlock()
			}
		}
	}
}
