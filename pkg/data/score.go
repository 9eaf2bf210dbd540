package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/mchmarny/devrank/pkg/score"
)

const (
	selectDailyScoreExistsSQL = `SELECT COUNT(*) FROM daily_score WHERE contributor = ? AND date = ?`

	insertDailyScoreSQL = `INSERT INTO daily_score (
			contributor, date, pr_score, issue_score, review_score, comment_score,
			reaction_score, total, activity, tags, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contributor, date) DO NOTHING
	`

	upsertDailyScoreSQL = `INSERT INTO daily_score (
			contributor, date, pr_score, issue_score, review_score, comment_score,
			reaction_score, total, activity, tags, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contributor, date) DO UPDATE SET
			pr_score = excluded.pr_score,
			issue_score = excluded.issue_score,
			review_score = excluded.review_score,
			comment_score = excluded.comment_score,
			reaction_score = excluded.reaction_score,
			total = excluded.total,
			activity = excluded.activity,
			tags = excluded.tags,
			updated_at = excluded.updated_at
	`

	selectDailyScoresSQL = `SELECT
			contributor, date, pr_score, issue_score, review_score, comment_score,
			reaction_score, total, activity, tags
		FROM daily_score
		WHERE contributor = ? AND date >= ? AND date < ?
		ORDER BY date
	`

	selectDailyContributorsSQL = `SELECT DISTINCT contributor
		FROM daily_score
		WHERE date >= ? AND date < ?
		ORDER BY contributor
	`

	selectPeriodFreshnessSQL = `SELECT p.updated_at,
			COALESCE((SELECT MAX(d.updated_at) FROM daily_score d
				WHERE d.contributor = p.contributor
				AND d.date >= p.start_date AND d.date < p.end_date), '')
		FROM period_score p
		WHERE p.contributor = ? AND p.interval_type = ? AND p.start_date = ?
	`

	insertPeriodScoreSQL = `INSERT INTO period_score (
			contributor, interval_type, start_date, end_date, pr_score, issue_score,
			review_score, comment_score, reaction_score, total, active_days,
			activity, tags, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contributor, interval_type, start_date) DO NOTHING
	`

	upsertPeriodScoreSQL = `INSERT INTO period_score (
			contributor, interval_type, start_date, end_date, pr_score, issue_score,
			review_score, comment_score, reaction_score, total, active_days,
			activity, tags, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contributor, interval_type, start_date) DO UPDATE SET
			end_date = excluded.end_date,
			pr_score = excluded.pr_score,
			issue_score = excluded.issue_score,
			review_score = excluded.review_score,
			comment_score = excluded.comment_score,
			reaction_score = excluded.reaction_score,
			total = excluded.total,
			active_days = excluded.active_days,
			activity = excluded.activity,
			tags = excluded.tags,
			updated_at = excluded.updated_at
	`

	selectPeriodScoreSQL = `SELECT
			contributor, interval_type, start_date, end_date, pr_score, issue_score,
			review_score, comment_score, reaction_score, total, active_days,
			activity, tags
		FROM period_score
		WHERE contributor = ? AND interval_type = ? AND start_date = ?
	`

	selectLifetimeFreshnessSQL = `SELECT l.updated_at,
			COALESCE((SELECT MAX(d.updated_at) FROM daily_score d
				WHERE d.contributor = l.contributor AND d.date <= l.as_of), '')
		FROM lifetime_score l
		WHERE l.contributor = ? AND l.as_of = ?
	`

	insertLifetimeSQL = `INSERT INTO lifetime_score (
			contributor, as_of, pr_score, issue_score, review_score, comment_score,
			reaction_score, total, active_days, reputation, activity, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contributor, as_of) DO NOTHING
	`

	upsertLifetimeSQL = `INSERT INTO lifetime_score (
			contributor, as_of, pr_score, issue_score, review_score, comment_score,
			reaction_score, total, active_days, reputation, activity, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contributor, as_of) DO UPDATE SET
			pr_score = excluded.pr_score,
			issue_score = excluded.issue_score,
			review_score = excluded.review_score,
			comment_score = excluded.comment_score,
			reaction_score = excluded.reaction_score,
			total = excluded.total,
			active_days = excluded.active_days,
			reputation = excluded.reputation,
			activity = excluded.activity,
			updated_at = excluded.updated_at
	`

	selectLatestLifetimeSQL = `SELECT
			contributor, as_of, pr_score, issue_score, review_score, comment_score,
			reaction_score, total, active_days, reputation, activity, updated_at
		FROM lifetime_score
		WHERE contributor = ?
		ORDER BY as_of DESC
		LIMIT 1
	`
)

// DailyScoreExists reports whether a daily score is stored for the contributor on date.
func (s *Store) DailyScoreExists(ctx context.Context, contributor string, date time.Time) (bool, error) {
	ok, err := s.exists(ctx, selectDailyScoreExistsSQL, contributor, dateKey(date))
	if err != nil {
		return false, fmt.Errorf("failed to check daily score %s/%s: %w", contributor, dateKey(date), err)
	}
	return ok, nil
}

// SaveDailyScore persists ds. Without overwrite an existing row is left
// untouched and ErrDuplicateKey is returned.
func (s *Store) SaveDailyScore(ctx context.Context, ds *score.DailyScore, overwrite bool) error {
	if ds == nil {
		return errors.New("daily score required")
	}

	activity, tags, err := encodeActivity(ds.Activity, ds.Tags)
	if err != nil {
		return err
	}

	q := insertDailyScoreSQL
	if overwrite {
		q = upsertDailyScoreSQL
	}

	res, err := s.exec(ctx, q, ds.Contributor, dateKey(ds.Date),
		ds.Scores.PullRequest, ds.Scores.Issue, ds.Scores.Review, ds.Scores.Comment,
		ds.Scores.Reaction, ds.Total, activity, tags, now())
	if err != nil {
		return fmt.Errorf("failed to save daily score %s/%s: %w", ds.Contributor, dateKey(ds.Date), err)
	}

	return checkInserted(res, overwrite, "daily_score", ds.Contributor, dateKey(ds.Date))
}

// ListDailyScores returns the contributor's daily scores inside iv ordered by date.
func (s *Store) ListDailyScores(ctx context.Context, contributor string, iv interval.Interval) ([]*score.DailyScore, error) {
	from, to := bucketBounds(iv)
	rows, err := s.query(ctx, selectDailyScoresSQL, contributor, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily scores for %s: %w", contributor, err)
	}
	defer rows.Close()

	list := make([]*score.DailyScore, 0)
	for rows.Next() {
		var (
			ds             score.DailyScore
			date           string
			activity, tags string
		)
		if err := rows.Scan(&ds.Contributor, &date, &ds.Scores.PullRequest, &ds.Scores.Issue,
			&ds.Scores.Review, &ds.Scores.Comment, &ds.Scores.Reaction, &ds.Total,
			&activity, &tags); err != nil {
			return nil, fmt.Errorf("failed to scan daily score: %w", err)
		}
		if ds.Date, err = interval.ParseDate(date); err != nil {
			return nil, err
		}
		if err := decodeActivity(activity, tags, &ds.Activity, &ds.Tags); err != nil {
			return nil, err
		}
		list = append(list, &ds)
	}

	return list, rows.Err()
}

// ContributorsWithDailyScores lists contributors with a daily score inside iv.
func (s *Store) ContributorsWithDailyScores(ctx context.Context, iv interval.Interval) ([]string, error) {
	from, to := bucketBounds(iv)
	list, err := s.queryStrings(ctx, selectDailyContributorsSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query scored contributors: %w", err)
	}
	return list, nil
}

// Freshness describes a stored rollup relative to the daily scores it sums.
type Freshness int

const (
	// Missing means no rollup is stored.
	Missing Freshness = iota
	// Stale means a daily score was written after the rollup.
	Stale
	// Current means the rollup reflects every daily score it covers.
	Current
)

func (f Freshness) String() string {
	switch f {
	case Stale:
		return "stale"
	case Current:
		return "current"
	default:
		return "missing"
	}
}

// freshness compares the rollup updated_at with the newest daily score it covers.
func (s *Store) freshness(ctx context.Context, q string, args ...any) (Freshness, error) {
	if s == nil || s.db == nil {
		return Missing, errDBNotInitialized
	}
	var rollup, daily string
	if err := s.queryRow(ctx, q, args...).Scan(&rollup, &daily); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Missing, nil
		}
		return Missing, err
	}
	if daily > rollup {
		return Stale, nil
	}
	return Current, nil
}

// PeriodScoreFreshness reports whether the contributor's aggregate for iv
// is missing, older than one of its daily scores, or current.
func (s *Store) PeriodScoreFreshness(ctx context.Context, contributor string, iv interval.Interval) (Freshness, error) {
	f, err := s.freshness(ctx, selectPeriodFreshnessSQL, contributor, string(iv.Type), iv.Key())
	if err != nil {
		return Missing, fmt.Errorf("failed to check period score %s/%s: %w", contributor, iv, err)
	}
	return f, nil
}

// SavePeriodScore persists a week or month aggregate.
func (s *Store) SavePeriodScore(ctx context.Context, ps *score.PeriodScore, overwrite bool) error {
	if ps == nil {
		return errors.New("period score required")
	}

	activity, tags, err := encodeActivity(ps.Activity, ps.Tags)
	if err != nil {
		return err
	}

	q := insertPeriodScoreSQL
	if overwrite {
		q = upsertPeriodScoreSQL
	}

	iv := ps.Interval
	res, err := s.exec(ctx, q, ps.Contributor, string(iv.Type), iv.Key(),
		iv.End.Format(interval.DateLayout),
		ps.Scores.PullRequest, ps.Scores.Issue, ps.Scores.Review, ps.Scores.Comment,
		ps.Scores.Reaction, ps.Total, ps.ActiveDays, activity, tags, now())
	if err != nil {
		return fmt.Errorf("failed to save period score %s/%s: %w", ps.Contributor, iv, err)
	}

	return checkInserted(res, overwrite, "period_score", ps.Contributor, iv.String())
}

// GetPeriodScore returns the stored aggregate or nil when there is none.
func (s *Store) GetPeriodScore(ctx context.Context, contributor string, iv interval.Interval) (*score.PeriodScore, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	var (
		ps                 score.PeriodScore
		ivType, start, end string
		activity, tags     string
	)
	err := s.queryRow(ctx, selectPeriodScoreSQL, contributor, string(iv.Type), iv.Key()).Scan(
		&ps.Contributor, &ivType, &start, &end, &ps.Scores.PullRequest, &ps.Scores.Issue,
		&ps.Scores.Review, &ps.Scores.Comment, &ps.Scores.Reaction, &ps.Total,
		&ps.ActiveDays, &activity, &tags)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get period score %s/%s: %w", contributor, iv, err)
	}

	ps.Interval = iv
	if err := decodeActivity(activity, tags, &ps.Activity, &ps.Tags); err != nil {
		return nil, err
	}
	return &ps, nil
}

// LifetimeFreshness reports whether the lifetime record as of asOf is
// missing, older than a daily score up to asOf, or current.
func (s *Store) LifetimeFreshness(ctx context.Context, contributor string, asOf time.Time) (Freshness, error) {
	f, err := s.freshness(ctx, selectLifetimeFreshnessSQL, contributor, dateKey(asOf))
	if err != nil {
		return Missing, fmt.Errorf("failed to check lifetime score %s/%s: %w", contributor, dateKey(asOf), err)
	}
	return f, nil
}

// SaveLifetime persists the lifetime totals of one contributor.
func (s *Store) SaveLifetime(ctx context.Context, ls *score.LifetimeScore, overwrite bool) error {
	if ls == nil {
		return errors.New("lifetime score required")
	}

	activity, err := json.Marshal(ls.Activity)
	if err != nil {
		return fmt.Errorf("error encoding activity: %w", err)
	}

	q := insertLifetimeSQL
	if overwrite {
		q = upsertLifetimeSQL
	}

	res, err := s.exec(ctx, q, ls.Contributor, dateKey(ls.AsOf),
		ls.Scores.PullRequest, ls.Scores.Issue, ls.Scores.Review, ls.Scores.Comment,
		ls.Scores.Reaction, ls.Total, ls.ActiveDays, ls.Reputation, string(activity), now())
	if err != nil {
		return fmt.Errorf("failed to save lifetime score %s: %w", ls.Contributor, err)
	}

	return checkInserted(res, overwrite, "lifetime_score", ls.Contributor, dateKey(ls.AsOf))
}

// GetLifetime returns the most recent lifetime record or nil when there is none.
func (s *Store) GetLifetime(ctx context.Context, contributor string) (*score.LifetimeScore, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	var (
		ls                        score.LifetimeScore
		asOf, activity, updatedAt string
	)
	err := s.queryRow(ctx, selectLatestLifetimeSQL, contributor).Scan(
		&ls.Contributor, &asOf, &ls.Scores.PullRequest, &ls.Scores.Issue, &ls.Scores.Review,
		&ls.Scores.Comment, &ls.Scores.Reaction, &ls.Total, &ls.ActiveDays, &ls.Reputation,
		&activity, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lifetime score %s: %w", contributor, err)
	}

	if ls.AsOf, err = interval.ParseDate(asOf); err != nil {
		return nil, err
	}
	ls.UpdatedAt = parseTime(updatedAt)
	if err := json.Unmarshal([]byte(activity), &ls.Activity); err != nil {
		return nil, fmt.Errorf("error decoding activity: %w", err)
	}
	return &ls, nil
}

func checkInserted(res sql.Result, overwrite bool, table, contributor, key string) error {
	if overwrite {
		return nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s/%s", ErrDuplicateKey, table, contributor, key)
	}
	return nil
}

func encodeActivity(a score.Activity, tags map[string]float64) (string, string, error) {
	ab, err := json.Marshal(a)
	if err != nil {
		return "", "", fmt.Errorf("error encoding activity: %w", err)
	}
	if tags == nil {
		tags = map[string]float64{}
	}
	tb, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("error encoding tags: %w", err)
	}
	return string(ab), string(tb), nil
}

func decodeActivity(activity, tags string, a *score.Activity, t *map[string]float64) error {
	if err := json.Unmarshal([]byte(activity), a); err != nil {
		return fmt.Errorf("error decoding activity: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), t); err != nil {
		return fmt.Errorf("error decoding tags: %w", err)
	}
	if *t == nil {
		*t = map[string]float64{}
	}
	return nil
}
