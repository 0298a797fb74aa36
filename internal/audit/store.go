package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alfredlabs/alfred/internal/db"
)

// Store provides persistence for decision log entries.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Log inserts a new decision entry. If entry.ID is empty a UUID is generated.
func (s *Store) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (
			id, timestamp, session_id, message, intent_id,
			confidence, fallback, response, ephemeral
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.UTC().Format(time.DateTime),
		entry.SessionID,
		entry.Message,
		entry.IntentID,
		entry.Confidence,
		boolToInt(entry.Fallback),
		entry.Response,
		boolToInt(entry.Ephemeral),
	)
	if err != nil {
		return fmt.Errorf("inserting decision entry: %w", err)
	}
	return nil
}

// QueryFilter controls which decision entries are returned by Query.
type QueryFilter struct {
	SessionID    string
	IntentID     string
	FallbackOnly bool
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}

// Query returns decision entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.IntentID != "" {
		clauses = append(clauses, "intent_id = ?")
		args = append(args, filter.IntentID)
	}
	if filter.FallbackOnly {
		clauses = append(clauses, "fallback = 1")
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(time.DateTime))
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.Until.UTC().Format(time.DateTime))
	}

	query := "SELECT id, timestamp, session_id, message, intent_id, confidence, fallback, response, ephemeral FROM decisions"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying decision entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                   Entry
			ts                  string
			fallback, ephemeral int
		)
		if err := rows.Scan(&e.ID, &ts, &e.SessionID, &e.Message, &e.IntentID, &e.Confidence, &fallback, &e.Response, &ephemeral); err != nil {
			return nil, fmt.Errorf("scanning decision entry: %w", err)
		}
		e.Fallback = fallback != 0
		e.Ephemeral = ephemeral != 0
		e.Timestamp = parseTimestamp(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetStats aggregates the decision log.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByIntent: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT intent_id, COUNT(*) FROM decisions GROUP BY intent_id`)
	if err != nil {
		return nil, fmt.Errorf("aggregating decisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var intentID string
		var count int
		if err := rows.Scan(&intentID, &count); err != nil {
			return nil, fmt.Errorf("scanning decision stats: %w", err)
		}
		stats.ByIntent[intentID] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions WHERE fallback = 1`).Scan(&stats.Fallbacks)
	if err != nil {
		return nil, fmt.Errorf("counting fallbacks: %w", err)
	}
	return stats, nil
}

// DeleteBefore removes all decision entries older than the given time.
// Returns the number of deleted rows.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM decisions WHERE timestamp < ?",
		before.UTC().Format(time.DateTime),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old decision entries: %w", err)
	}
	return res.RowsAffected()
}

func parseTimestamp(ts string) time.Time {
	if t, err := time.Parse(time.DateTime, ts); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
