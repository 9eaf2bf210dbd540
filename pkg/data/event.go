package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/mchmarny/devrank/pkg/narrative"
	"github.com/mchmarny/devrank/pkg/score"
)

const (
	botSuffix = "%[bot]"

	insertEventSQL = `INSERT INTO event (
			id, kind, actor, repository, number, ts, date,
			additions, deletions, changed_files, body_length, labels, paths,
			review_count, approval_count, comment_count, linked_issues,
			review_state, opened_at, thread, reaction, received
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`

	selectEventsSQL = `SELECT
			id, kind, actor, repository, number, ts,
			additions, deletions, changed_files, body_length, labels, paths,
			review_count, approval_count, comment_count, linked_issues,
			review_state, opened_at, thread, reaction, received
		FROM event
		WHERE actor = ? AND date >= ? AND date < ?
		ORDER BY ts, id
	`

	selectActiveContributorsSQL = `SELECT DISTINCT actor
		FROM event
		WHERE date >= ? AND date < ?
		  AND actor NOT LIKE ?
		ORDER BY actor
	`

	selectActiveRepositoriesSQL = `SELECT DISTINCT repository
		FROM event
		WHERE date >= ? AND date < ?
		ORDER BY repository
	`

	selectRepositoryActivitySQL = `SELECT actor, kind, COUNT(*)
		FROM event
		WHERE repository = ? AND date >= ? AND date < ?
		  AND actor NOT LIKE ?
		GROUP BY actor, kind
		ORDER BY actor, kind
	`

	selectEventCountSQL = `SELECT COUNT(*) FROM event`

	snapshotTopSize = 5
)

// bucketBounds returns the [from, to) date keys of iv for date column filters.
func bucketBounds(iv interval.Interval) (string, string) {
	from := "0001-01-01"
	if !iv.Start.IsZero() {
		from = iv.Start.Format(interval.DateLayout)
	}
	return from, iv.End.Format(interval.DateLayout)
}

// SaveEvents inserts events, ignoring ids already stored. It returns the
// number of new rows.
func (s *Store) SaveEvents(ctx context.Context, events []*score.Event) (int, error) {
	if s == nil || s.db == nil {
		return 0, errDBNotInitialized
	}
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(insertEventSQL))
	if err != nil {
		rollbackTransaction(tx)
		return 0, fmt.Errorf("failed to prepare event insert statement: %w", err)
	}
	defer stmt.Close()

	added := 0
	for i, e := range events {
		if e == nil {
			continue
		}
		labels, err := json.Marshal(nonNil(e.Labels))
		if err != nil {
			rollbackTransaction(tx)
			return 0, fmt.Errorf("error encoding labels of event[%d]: %w", i, err)
		}
		paths, err := json.Marshal(nonNil(e.Paths))
		if err != nil {
			rollbackTransaction(tx)
			return 0, fmt.Errorf("error encoding paths of event[%d]: %w", i, err)
		}

		res, err := stmt.ExecContext(ctx,
			e.ID, string(e.Kind), e.Actor, e.Repository, e.Number,
			formatTime(e.Timestamp), e.Timestamp.UTC().Format(interval.DateLayout),
			e.Additions, e.Deletions, e.ChangedFiles, e.BodyLength, string(labels), string(paths),
			e.ReviewCount, e.ApprovalCount, e.CommentCount, e.LinkedIssues,
			e.ReviewState, formatTime(e.OpenedAt), e.Thread, e.Reaction, boolToInt(e.Received))
		if err != nil {
			rollbackTransaction(tx)
			return 0, fmt.Errorf("error inserting event[%d] %s: %w", i, e.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}

	return added, nil
}

// ListEvents returns the contributor's events inside iv ordered by time.
func (s *Store) ListEvents(ctx context.Context, contributor string, iv interval.Interval) ([]*score.Event, error) {
	from, to := bucketBounds(iv)
	rows, err := s.query(ctx, selectEventsSQL, contributor, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for %s: %w", contributor, err)
	}
	defer rows.Close()

	list := make([]*score.Event, 0)
	for rows.Next() {
		var (
			e                  score.Event
			kind, ts, openedAt string
			labels, paths      string
			received           int
		)
		if err := rows.Scan(&e.ID, &kind, &e.Actor, &e.Repository, &e.Number, &ts,
			&e.Additions, &e.Deletions, &e.ChangedFiles, &e.BodyLength, &labels, &paths,
			&e.ReviewCount, &e.ApprovalCount, &e.CommentCount, &e.LinkedIssues,
			&e.ReviewState, &openedAt, &e.Thread, &e.Reaction, &received); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Kind = score.Kind(kind)
		e.Timestamp = parseTime(ts)
		e.OpenedAt = parseTime(openedAt)
		e.Received = received == 1
		if err := json.Unmarshal([]byte(labels), &e.Labels); err != nil {
			slog.Debug("invalid labels", "event", e.ID, "error", err)
		}
		if err := json.Unmarshal([]byte(paths), &e.Paths); err != nil {
			slog.Debug("invalid paths", "event", e.ID, "error", err)
		}
		list = append(list, &e)
	}

	return list, rows.Err()
}

// ActiveContributors lists non-bot actors with any event inside iv.
func (s *Store) ActiveContributors(ctx context.Context, iv interval.Interval) ([]string, error) {
	from, to := bucketBounds(iv)
	list, err := s.queryStrings(ctx, selectActiveContributorsSQL, from, to, botSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to query active contributors: %w", err)
	}
	return list, nil
}

// ActiveRepositories lists repositories with any event inside iv.
func (s *Store) ActiveRepositories(ctx context.Context, iv interval.Interval) ([]string, error) {
	from, to := bucketBounds(iv)
	list, err := s.queryStrings(ctx, selectActiveRepositoriesSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query active repositories: %w", err)
	}
	return list, nil
}

// RepositorySnapshot summarizes a repository's activity inside iv.
func (s *Store) RepositorySnapshot(ctx context.Context, repo string, iv interval.Interval) (*narrative.Snapshot, error) {
	from, to := bucketBounds(iv)
	rows, err := s.query(ctx, selectRepositoryActivitySQL, repo, from, to, botSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity for %s: %w", repo, err)
	}
	defer rows.Close()

	snap := narrative.NewSnapshot(repo, iv)
	perActor := make(map[string]int)
	order := make([]string, 0)
	for rows.Next() {
		var actor, kind string
		var n int
		if err := rows.Scan(&actor, &kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if _, ok := perActor[actor]; !ok {
			order = append(order, actor)
		}
		perActor[actor] += n
		addActivity(&snap.Activity, score.Kind(kind), n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snap.Contributors = len(perActor)
	snap.Top = topContributors(order, perActor, snapshotTopSize)
	return snap, nil
}

// EventCount returns the number of stored events.
func (s *Store) EventCount(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errDBNotInitialized
	}
	var n int
	if err := s.queryRow(ctx, selectEventCountSQL).Scan(&n); err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func addActivity(a *score.Activity, k score.Kind, n int) {
	switch k {
	case score.KindCommit:
		a.Commits += n
	case score.KindPROpen:
		a.PullRequestsOpened += n
	case score.KindPRMerge:
		a.PullRequestsMerged += n
	case score.KindIssueOpen:
		a.IssuesOpened += n
	case score.KindIssueClose:
		a.IssuesClosed += n
	case score.KindPRReview:
		a.Reviews += n
	case score.KindPRComment, score.KindIssueComment:
		a.Comments += n
	case score.KindReaction:
		a.Reactions += n
	}
}

func topContributors(order []string, counts map[string]int, n int) []narrative.Contributor {
	list := make([]narrative.Contributor, 0, len(order))
	for _, a := range order {
		list = append(list, narrative.Contributor{Username: a, Total: float64(counts[a])})
	}
	// stable on the alphabetical input order
	for i := 1; i < len(list); i++ {
		for j := i; j > 0 && list[j].Total > list[j-1].Total; j-- {
			list[j], list[j-1] = list[j-1], list[j]
		}
	}
	if len(list) > n {
		list = list[:n]
	}
	return list
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func dateKey(t time.Time) string {
	return interval.Truncate(t).Format(interval.DateLayout)
}
