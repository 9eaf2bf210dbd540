package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	stateQueries = map[string]string{
		"event":        "SELECT COUNT(*) FROM event",
		"contributor":  "SELECT COUNT(DISTINCT actor) FROM event",
		"repository":   "SELECT COUNT(DISTINCT repository) FROM event",
		"daily_score":  "SELECT COUNT(*) FROM daily_score",
		"period_score": "SELECT COUNT(*) FROM period_score",
		"badge":        "SELECT COUNT(*) FROM badge",
		"run":          "SELECT COUNT(*) FROM run",
	}
)

const (
	upsertImportStateSQL = `INSERT INTO import_state (repository, kind, since) VALUES (?, ?, ?)
		ON CONFLICT (repository, kind) DO UPDATE SET since = excluded.since
	`

	selectImportStateSQL = `SELECT since FROM import_state WHERE repository = ? AND kind = ?`
)

// GetImportSince returns the time of the last import of kind for repo, or
// horizon when nothing was imported yet or the stored time is older than horizon.
func (s *Store) GetImportSince(ctx context.Context, repo, kind string, horizon time.Time) (time.Time, error) {
	if s == nil || s.db == nil {
		return time.Time{}, errDBNotInitialized
	}

	var since string
	if err := s.queryRow(ctx, selectImportStateSQL, repo, kind).Scan(&since); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return horizon, nil
		}
		return time.Time{}, fmt.Errorf("failed to get import state %s/%s: %w", repo, kind, err)
	}

	t := parseTime(since)
	if t.Before(horizon) {
		return horizon, nil
	}
	return t, nil
}

// SaveImportSince records the time up to which kind was imported for repo.
func (s *Store) SaveImportSince(ctx context.Context, repo, kind string, since time.Time) error {
	if repo == "" || kind == "" || since.IsZero() {
		return fmt.Errorf("repo: %q, kind: %q, since: %v are all required", repo, kind, since)
	}
	if _, err := s.exec(ctx, upsertImportStateSQL, repo, kind, formatTime(since)); err != nil {
		return fmt.Errorf("failed to save import state %s/%s: %w", repo, kind, err)
	}
	return nil
}

// GetDataState returns row counts of the main tables.
func (s *Store) GetDataState(ctx context.Context) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	state := make(map[string]int64)
	for k, q := range stateQueries {
		var n int64
		if err := s.queryRow(ctx, q).Scan(&n); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("error getting %s count: %w", k, err)
		}
		state[k] = n
	}

	return state, nil
}
