package data

import (
	"context"
	"testing"
	"time"

	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/mchmarny/devrank/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDaily(contributor string, date time.Time, total float64) *score.DailyScore {
	return &score.DailyScore{
		Contributor: contributor,
		Date:        date,
		Scores:      score.Categories{PullRequest: total},
		Total:       total,
		Activity:    score.Activity{PullRequestsOpened: 1},
		Tags:        map[string]float64{"go": total},
	}
}

func TestSaveDailyScore_InsertOnly(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

	ok, err := s.DailyScoreExists(ctx, "alice", day)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveDailyScore(ctx, testDaily("alice", day, 25), false))

	ok, err = s.DailyScoreExists(ctx, "alice", day)
	require.NoError(t, err)
	assert.True(t, ok)

	err = s.SaveDailyScore(ctx, testDaily("alice", day, 30), false)
	require.ErrorIs(t, err, ErrDuplicateKey)

	iv, err := interval.ForDate(interval.Day, day)
	require.NoError(t, err)
	list, err := s.ListDailyScores(ctx, "alice", iv)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 25.0, list[0].Total)
}

func TestSaveDailyScore_Overwrite(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveDailyScore(ctx, testDaily("alice", day, 25), false))
	require.NoError(t, s.SaveDailyScore(ctx, testDaily("alice", day, 30), true))

	list, err := s.ListDailyScores(ctx, "alice", interval.LifetimeAsOf(day))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 30.0, list[0].Total)
	assert.Equal(t, 30.0, list[0].Scores.PullRequest)
	assert.Equal(t, 1, list[0].Activity.PullRequestsOpened)
	assert.Equal(t, map[string]float64{"go": 30}, list[0].Tags)
	assert.True(t, day.Equal(list[0].Date))
}

func TestSaveDailyScore_Nil(t *testing.T) {
	s := setupTestStore(t)
	assert.Error(t, s.SaveDailyScore(context.Background(), nil, false))
}

func TestContributorsWithDailyScores(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	d1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveDailyScore(ctx, testDaily("bob", d1, 1), false))
	require.NoError(t, s.SaveDailyScore(ctx, testDaily("alice", d1, 1), false))
	require.NoError(t, s.SaveDailyScore(ctx, testDaily("carol", d2, 1), false))

	week, err := interval.ForDate(interval.Week, d1)
	require.NoError(t, err)
	list, err := s.ContributorsWithDailyScores(ctx, week)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, list)
}

func TestPeriodScore_SaveGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	week, err := interval.ForDate(interval.Week, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	got, err := s.GetPeriodScore(ctx, "alice", week)
	require.NoError(t, err)
	assert.Nil(t, got)

	ps := &score.PeriodScore{
		Contributor: "alice",
		Interval:    week,
		Scores:      score.Categories{PullRequest: 20, Review: 5},
		Total:       25,
		ActiveDays:  2,
		Tags:        map[string]float64{"go": 20},
	}
	require.NoError(t, s.SavePeriodScore(ctx, ps, false))
	require.ErrorIs(t, s.SavePeriodScore(ctx, ps, false), ErrDuplicateKey)

	f, err := s.PeriodScoreFreshness(ctx, "alice", week)
	require.NoError(t, err)
	assert.Equal(t, Current, f)

	got, err = s.GetPeriodScore(ctx, "alice", week)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 25.0, got.Total)
	assert.Equal(t, 2, got.ActiveDays)
	assert.Equal(t, 5.0, got.Scores.Review)
	assert.Equal(t, week, got.Interval)

	ps.Total = 40
	require.NoError(t, s.SavePeriodScore(ctx, ps, true))
	got, err = s.GetPeriodScore(ctx, "alice", week)
	require.NoError(t, err)
	assert.Equal(t, 40.0, got.Total)
}

func TestLifetime_SaveGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	asOf := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	got, err := s.GetLifetime(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	ls := &score.LifetimeScore{
		Contributor: "alice",
		AsOf:        asOf,
		Scores:      score.Categories{Issue: 4},
		Total:       4,
		ActiveDays:  1,
		Reputation:  0.42,
		Activity:    score.Activity{IssuesOpened: 2},
	}
	require.NoError(t, s.SaveLifetime(ctx, ls, false))
	require.ErrorIs(t, s.SaveLifetime(ctx, ls, false), ErrDuplicateKey)

	f, err := s.LifetimeFreshness(ctx, "alice", asOf)
	require.NoError(t, err)
	assert.Equal(t, Current, f)

	later := *ls
	later.AsOf = asOf.AddDate(0, 0, 7)
	later.Total = 10
	require.NoError(t, s.SaveLifetime(ctx, &later, false))

	got, err = s.GetLifetime(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 10.0, got.Total)
	assert.Equal(t, 0.42, got.Reputation)
	assert.Equal(t, 2, got.Activity.IssuesOpened)
	assert.True(t, later.AsOf.Equal(got.AsOf))
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestRollupFreshness(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	fri := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	sat := fri.AddDate(0, 0, 1)

	week, err := interval.ForDate(interval.Week, fri)
	require.NoError(t, err)

	f, err := s.PeriodScoreFreshness(ctx, "alice", week)
	require.NoError(t, err)
	assert.Equal(t, Missing, f)
	f, err = s.LifetimeFreshness(ctx, "alice", sat)
	require.NoError(t, err)
	assert.Equal(t, Missing, f)

	require.NoError(t, s.SaveDailyScore(ctx, testDaily("alice", fri, 10), false))
	require.NoError(t, s.SavePeriodScore(ctx, &score.PeriodScore{Contributor: "alice", Interval: week, Total: 10}, false))
	require.NoError(t, s.SaveLifetime(ctx, &score.LifetimeScore{Contributor: "alice", AsOf: sat, Total: 10}, false))

	f, err = s.PeriodScoreFreshness(ctx, "alice", week)
	require.NoError(t, err)
	assert.Equal(t, Current, f)

	// a later day inside the bucket makes both rollups stale
	require.NoError(t, s.SaveDailyScore(ctx, testDaily("alice", sat, 5), false))

	f, err = s.PeriodScoreFreshness(ctx, "alice", week)
	require.NoError(t, err)
	assert.Equal(t, Stale, f)
	f, err = s.LifetimeFreshness(ctx, "alice", sat)
	require.NoError(t, err)
	assert.Equal(t, Stale, f)

	// a lifetime record as of an earlier day does not cover it
	require.NoError(t, s.SaveLifetime(ctx, &score.LifetimeScore{Contributor: "alice", AsOf: fri, Total: 10}, false))
	f, err = s.LifetimeFreshness(ctx, "alice", fri)
	require.NoError(t, err)
	assert.Equal(t, Current, f)

	require.NoError(t, s.SavePeriodScore(ctx, &score.PeriodScore{Contributor: "alice", Interval: week, Total: 15}, true))
	f, err = s.PeriodScoreFreshness(ctx, "alice", week)
	require.NoError(t, err)
	assert.Equal(t, Current, f)

	// other contributors and buckets are unaffected
	next, err := interval.ForDate(interval.Week, fri.AddDate(0, 0, 7))
	require.NoError(t, err)
	f, err = s.PeriodScoreFreshness(ctx, "alice", next)
	require.NoError(t, err)
	assert.Equal(t, Missing, f)
	f, err = s.PeriodScoreFreshness(ctx, "bob", week)
	require.NoError(t, err)
	assert.Equal(t, Missing, f)
}

func TestFreshness_String(t *testing.T) {
	assert.Equal(t, "missing", Missing.String())
	assert.Equal(t, "stale", Stale.String())
	assert.Equal(t, "current", Current.String())
}
