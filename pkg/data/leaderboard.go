package data

import (
	"context"
	"fmt"
	"time"

	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/mchmarny/devrank/pkg/score"
)

const (
	leaderboardLimitDefault = 10

	selectDayLeaderboardSQL = `SELECT contributor, pr_score, issue_score, review_score,
			comment_score, reaction_score, total, 1
		FROM daily_score
		WHERE date = ? AND total > 0
		ORDER BY total DESC, contributor
		LIMIT ?
	`

	selectPeriodLeaderboardSQL = `SELECT contributor, pr_score, issue_score, review_score,
			comment_score, reaction_score, total, active_days
		FROM period_score
		WHERE interval_type = ? AND start_date = ? AND total > 0
		ORDER BY total DESC, contributor
		LIMIT ?
	`

	selectLifetimeLeaderboardSQL = `SELECT l.contributor, l.pr_score, l.issue_score, l.review_score,
			l.comment_score, l.reaction_score, l.total, l.active_days
		FROM lifetime_score l
		WHERE l.as_of = (
			SELECT MAX(x.as_of) FROM lifetime_score x
			WHERE x.contributor = l.contributor AND x.as_of <= ?
		)
		AND l.total > 0
		ORDER BY l.total DESC, l.contributor
		LIMIT ?
	`
)

// LeaderboardEntry is one ranked contributor.
type LeaderboardEntry struct {
	Rank        int              `json:"rank" yaml:"rank"`
	Contributor string           `json:"contributor" yaml:"contributor"`
	Total       float64          `json:"total" yaml:"total"`
	Scores      score.Categories `json:"scores" yaml:"scores"`
	ActiveDays  int              `json:"active_days" yaml:"activeDays"`
}

// Leaderboard ranks contributors by total for the bucket of type t containing date.
// Lifetime uses the latest lifetime record of each contributor up to date.
func (s *Store) Leaderboard(ctx context.Context, t interval.Type, date time.Time, limit int) ([]*LeaderboardEntry, error) {
	if limit < 1 {
		limit = leaderboardLimitDefault
	}

	var (
		q    string
		args []any
	)
	switch t {
	case interval.Day:
		q, args = selectDayLeaderboardSQL, []any{dateKey(date), limit}
	case interval.Week, interval.Month:
		iv, err := interval.ForDate(t, date)
		if err != nil {
			return nil, err
		}
		q, args = selectPeriodLeaderboardSQL, []any{string(t), iv.Key(), limit}
	case interval.Lifetime:
		q, args = selectLifetimeLeaderboardSQL, []any{dateKey(date), limit}
	default:
		return nil, fmt.Errorf("%w: %q", interval.ErrInvalidType, t)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s leaderboard: %w", t, err)
	}
	defer rows.Close()

	list := make([]*LeaderboardEntry, 0)
	for rows.Next() {
		e := &LeaderboardEntry{Rank: len(list) + 1}
		if err := rows.Scan(&e.Contributor, &e.Scores.PullRequest, &e.Scores.Issue,
			&e.Scores.Review, &e.Scores.Comment, &e.Scores.Reaction, &e.Total,
			&e.ActiveDays); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		list = append(list, e)
	}

	return list, rows.Err()
}
