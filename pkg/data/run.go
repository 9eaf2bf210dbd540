package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mchmarny/devrank/pkg/interval"
)

const (
	insertRunSQL = `INSERT INTO run (
			id, started_at, finished_at, range_from, range_to, passes,
			overwrite, partial, computed, skipped, failed
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectRunsSQL = `SELECT id, started_at, finished_at, range_from, range_to, passes,
			overwrite, partial, computed, skipped, failed
		FROM run
		ORDER BY started_at DESC
		LIMIT ?
	`
)

// Run is the persisted summary of one orchestrator run.
type Run struct {
	ID         string             `json:"id" yaml:"id"`
	StartedAt  time.Time          `json:"started_at" yaml:"startedAt"`
	FinishedAt time.Time          `json:"finished_at" yaml:"finishedAt"`
	Range      interval.DateRange `json:"range" yaml:"range"`
	Passes     []interval.Type    `json:"passes" yaml:"passes"`
	Overwrite  bool               `json:"overwrite" yaml:"overwrite"`
	Partial    bool               `json:"partial" yaml:"partial"`
	Computed   int                `json:"computed" yaml:"computed"`
	Skipped    int                `json:"skipped" yaml:"skipped"`
	Failed     int                `json:"failed" yaml:"failed"`
}

// SaveRun records a finished run.
func (s *Store) SaveRun(ctx context.Context, r *Run) error {
	if r == nil || r.ID == "" {
		return errors.New("run with id required")
	}

	passes := make([]string, 0, len(r.Passes))
	for _, p := range r.Passes {
		passes = append(passes, string(p))
	}

	if _, err := s.exec(ctx, insertRunSQL, r.ID, formatTime(r.StartedAt), formatTime(r.FinishedAt),
		r.Range.Start.Format(interval.DateLayout), r.Range.End.Format(interval.DateLayout),
		strings.Join(passes, ","), boolToInt(r.Overwrite), boolToInt(r.Partial),
		r.Computed, r.Skipped, r.Failed); err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit < 1 {
		limit = leaderboardLimitDefault
	}

	rows, err := s.query(ctx, selectRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		var (
			r                   Run
			startedAt, finished string
			from, to, passes    string
			overwrite, partial  int
		)
		if err := rows.Scan(&r.ID, &startedAt, &finished, &from, &to, &passes,
			&overwrite, &partial, &r.Computed, &r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = parseTime(finished)
		r.Range.Start, _ = interval.ParseDate(from)
		r.Range.End, _ = interval.ParseDate(to)
		r.Overwrite = overwrite == 1
		r.Partial = partial == 1
		r.Passes = make([]interval.Type, 0)
		for p := range strings.SplitSeq(passes, ",") {
			if p != "" {
				r.Passes = append(r.Passes, interval.Type(p))
			}
		}
		list = append(list, &r)
	}

	return list, rows.Err()
}
