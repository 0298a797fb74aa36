package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "alfred:session:"
	maxTxRetries = 5
)

// RedisStore persists sessions as JSON values with a server-side TTL.
// Same-session mutations use optimistic WATCH transactions with bounded
// retries, so two concurrent turns for one session never interleave
// while different sessions stay fully independent.
type RedisStore struct {
	client     *redis.Client
	ttl        time.Duration
	maxHistory int
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, ttl time.Duration, maxHistory int) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, maxHistory: maxHistory}
}

func sessionKey(id string) string { return keyPrefix + id }

func (s *RedisStore) Create(ctx context.Context, userID string, initialContext map[string]any) (*Session, error) {
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

	if err := s.save(ctx, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *RedisStore) AppendTurn(ctx context.Context, id string, turn Turn) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) {
		sess.History = append(sess.History, turn)
		if s.maxHistory > 0 && len(sess.History) > s.maxHistory {
			sess.History = sess.History[len(sess.History)-s.maxHistory:]
		}
	})
}

func (s *RedisStore) MergeContext(ctx context.Context, id string, patch map[string]any) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) {
		if sess.ContextVariables == nil {
			sess.ContextVariables = make(map[string]any, len(patch))
		}
		for k, v := range patch {
			sess.ContextVariables[k] = v
		}
	})
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// mutate applies fn inside a WATCH transaction. A concurrent writer
// aborts the transaction and the read-modify-write is retried.
func (s *RedisStore) mutate(ctx context.Context, id string, fn func(*Session)) (*Session, error) {
	key := sessionKey(id)
	var result *Session

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("redis get session: %w", err)
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("unmarshal session %s: %w", id, err)
		}

		fn(&sess)
		sess.LastActivity = time.Now().UTC()

		payload, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("marshal session %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		result = &sess
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("session %s: too many concurrent updates", id)
}

func (s *RedisStore) save(ctx context.Context, sess *Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}
