package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ahalansari/deep-search/internal/agent/core"
	_ "github.com/lib/pq"
)

// Migrations holds the SQL migrations for the session archive.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Store archives finished search sessions in Postgres.
type Store struct {
	DB *sql.DB
}

// SessionSummary is the list view of an archived session.
type SessionSummary struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	MaxDepth     int       `json:"maxDepth"`
	SearchRounds int       `json:"searchRounds"`
	TotalResults int       `json:"totalResults"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// SaveSession inserts or replaces an archived session.
func (s *Store) SaveSession(ctx context.Context, sess core.Session) error {
	breakdown, err := json.Marshal(sess.SearchSummary.SourceBreakdown)
	if err != nil {
		return fmt.Errorf("marshal source breakdown: %w", err)
	}
	results := sess.Results
	if results == nil {
		results = []core.SearchResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	_, err = s.DB.ExecContext(ctx, `
INSERT INTO search_sessions (id, query, max_depth, search_rounds, total_results, source_breakdown, results, answer, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  query = EXCLUDED.query,
  max_depth = EXCLUDED.max_depth,
  search_rounds = EXCLUDED.search_rounds,
  total_results = EXCLUDED.total_results,
  source_breakdown = EXCLUDED.source_breakdown,
  results = EXCLUDED.results,
  answer = EXCLUDED.answer,
  started_at = EXCLUDED.started_at,
  finished_at = EXCLUDED.finished_at;
`, sess.ID, sess.Query, sess.MaxDepth, sess.SearchSummary.SearchRounds, sess.SearchSummary.TotalResults,
		breakdown, resultsJSON, sess.ComprehensiveAnswer, sess.StartedAt, sess.FinishedAt)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession loads one archived session.
func (s *Store) GetSession(ctx context.Context, id string) (core.Session, error) {
	var (
		sess      core.Session
		breakdown []byte
		results   []byte
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT id, query, max_depth, search_rounds, total_results, source_breakdown, results, answer, started_at, finished_at
FROM search_sessions WHERE id = $1`, id).Scan(
		&sess.ID, &sess.Query, &sess.MaxDepth, &sess.SearchSummary.SearchRounds, &sess.SearchSummary.TotalResults,
		&breakdown, &results, &sess.ComprehensiveAnswer, &sess.StartedAt, &sess.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, ErrNotFound
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	if err := json.Unmarshal(breakdown, &sess.SearchSummary.SourceBreakdown); err != nil {
		return core.Session{}, fmt.Errorf("decode source breakdown: %w", err)
	}
	if err := json.Unmarshal(results, &sess.Results); err != nil {
		return core.Session{}, fmt.Errorf("decode results: %w", err)
	}
	return sess, nil
}

// ListSessions returns the most recent sessions first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, query, max_depth, search_rounds, total_results, started_at, finished_at
FROM search_sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []SessionSummary{}
	for rows.Next() {
		var ss SessionSummary
		if err := rows.Scan(&ss.ID, &ss.Query, &ss.MaxDepth, &ss.SearchRounds, &ss.TotalResults, &ss.StartedAt, &ss.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}
