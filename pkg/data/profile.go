package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mchmarny/devrank/pkg/badge"
	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/mchmarny/devrank/pkg/level"
)

const (
	upsertTagScoreSQL = `INSERT INTO tag_score (
			contributor, tag, score, level, progress, points_to_next, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contributor, tag) DO UPDATE SET
			score = excluded.score,
			level = excluded.level,
			progress = excluded.progress,
			points_to_next = excluded.points_to_next,
			updated_at = excluded.updated_at
	`

	selectTagScoresSQL = `SELECT contributor, tag, score, level, progress, points_to_next, updated_at
		FROM tag_score
		WHERE contributor = ?
		ORDER BY tag
	`

	// tier only moves up, earned_at is never rewritten
	upsertBadgeSQL = `INSERT INTO badge (contributor, badge_type, tier, earned_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (contributor, badge_type) DO UPDATE SET
			tier = excluded.tier,
			updated_at = excluded.updated_at
		WHERE badge.tier < excluded.tier
	`

	selectBadgesSQL = `SELECT contributor, badge_type, tier, earned_at, updated_at
		FROM badge
		WHERE contributor = ?
		ORDER BY badge_type
	`

	upsertSummarySQL = `INSERT INTO summary (repository, interval_type, start_date, summary, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (repository, interval_type, start_date) DO UPDATE SET
			summary = excluded.summary,
			updated_at = excluded.updated_at
	`

	selectSummarySQL = `SELECT summary FROM summary
		WHERE repository = ? AND interval_type = ? AND start_date = ?
	`

	selectSummaryExistsSQL = `SELECT COUNT(*) FROM summary
		WHERE repository = ? AND interval_type = ? AND start_date = ?
	`
)

// SaveTagScores replaces the stored levels of each contributor tag.
func (s *Store) SaveTagScores(ctx context.Context, list []*level.TagScore) error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}
	if len(list) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for i, t := range list {
		if _, err := tx.ExecContext(ctx, s.rebind(upsertTagScoreSQL), t.Contributor, t.Tag,
			t.Score, t.Level, t.Progress, t.PointsToNext, formatTime(t.UpdatedAt)); err != nil {
			rollbackTransaction(tx)
			return fmt.Errorf("error saving tag score[%d] %s/%s: %w", i, t.Contributor, t.Tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tag scores: %w", err)
	}
	return nil
}

// ListTagScores returns the contributor's tag levels ordered by tag.
func (s *Store) ListTagScores(ctx context.Context, contributor string) ([]*level.TagScore, error) {
	rows, err := s.query(ctx, selectTagScoresSQL, contributor)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag scores for %s: %w", contributor, err)
	}
	defer rows.Close()

	list := make([]*level.TagScore, 0)
	for rows.Next() {
		var (
			t         level.TagScore
			updatedAt string
		)
		if err := rows.Scan(&t.Contributor, &t.Tag, &t.Score, &t.Level, &t.Progress,
			&t.PointsToNext, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag score: %w", err)
		}
		t.UpdatedAt = parseTime(updatedAt)
		list = append(list, &t)
	}

	return list, rows.Err()
}

// SaveBadges creates new badges and raises the tier of existing ones.
// A stored tier is never lowered.
func (s *Store) SaveBadges(ctx context.Context, list []badge.Badge) error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}
	if len(list) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for i, b := range list {
		updated := b.UpdatedAt
		if updated.IsZero() {
			updated = b.EarnedAt
		}
		if _, err := tx.ExecContext(ctx, s.rebind(upsertBadgeSQL), b.Contributor, b.Type,
			int(b.Tier), formatTime(b.EarnedAt), formatTime(updated)); err != nil {
			rollbackTransaction(tx)
			return fmt.Errorf("error saving badge[%d] %s/%s: %w", i, b.Contributor, b.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit badges: %w", err)
	}
	return nil
}

// ListBadges returns the contributor's badges ordered by type.
func (s *Store) ListBadges(ctx context.Context, contributor string) ([]badge.Badge, error) {
	rows, err := s.query(ctx, selectBadgesSQL, contributor)
	if err != nil {
		return nil, fmt.Errorf("failed to query badges for %s: %w", contributor, err)
	}
	defer rows.Close()

	list := make([]badge.Badge, 0)
	for rows.Next() {
		var (
			b                   badge.Badge
			tier                int
			earnedAt, updatedAt string
		)
		if err := rows.Scan(&b.Contributor, &b.Type, &tier, &earnedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		b.Tier = badge.Tier(tier)
		b.EarnedAt = parseTime(earnedAt)
		b.UpdatedAt = parseTime(updatedAt)
		list = append(list, b)
	}

	return list, rows.Err()
}

// SaveSummary stores the narrative of a repository for iv.
func (s *Store) SaveSummary(ctx context.Context, repo string, iv interval.Interval, text string) error {
	if _, err := s.exec(ctx, upsertSummarySQL, repo, string(iv.Type), iv.Key(), text, now()); err != nil {
		return fmt.Errorf("failed to save summary %s/%s: %w", repo, iv, err)
	}
	return nil
}

// SummaryExists reports whether repo has a narrative for iv.
func (s *Store) SummaryExists(ctx context.Context, repo string, iv interval.Interval) (bool, error) {
	ok, err := s.exists(ctx, selectSummaryExistsSQL, repo, string(iv.Type), iv.Key())
	if err != nil {
		return false, fmt.Errorf("failed to check summary %s/%s: %w", repo, iv, err)
	}
	return ok, nil
}

// GetSummary returns the stored narrative or an empty string.
func (s *Store) GetSummary(ctx context.Context, repo string, iv interval.Interval) (string, error) {
	if s == nil || s.db == nil {
		return "", errDBNotInitialized
	}
	var text string
	if err := s.queryRow(ctx, selectSummarySQL, repo, string(iv.Type), iv.Key()).Scan(&text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get summary %s/%s: %w", repo, iv, err)
	}
	return text, nil
}
