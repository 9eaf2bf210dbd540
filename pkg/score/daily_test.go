package score

import (
	"testing"
	"time"

	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, s string, total float64) *DailyScore {
	t.Helper()
	d, err := interval.ParseDate(s)
	require.NoError(t, err)
	return &DailyScore{
		Contributor: "alice",
		Date:        d,
		Scores:      Categories{PullRequest: total},
		Total:       total,
		Activity:    Activity{PullRequestsOpened: 1},
		Tags:        map[string]float64{CategoryPullRequest: total, "go": 1},
	}
}

func TestAggregate_WeekSumsDaysInBucket(t *testing.T) {
	week, err := interval.ForDate(interval.Week, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	daily := []*DailyScore{
		day(t, "2024-02-24", 100), // Saturday before
		day(t, "2024-02-25", 1),
		day(t, "2024-02-28", 2.5),
		day(t, "2024-03-02", 4),
		day(t, "2024-03-03", 100), // next Sunday
	}
	bob := day(t, "2024-02-27", 50)
	bob.Contributor = "bob"
	daily = append(daily, bob, nil)

	ps := Aggregate("alice", week, daily)
	assert.Equal(t, "alice", ps.Contributor)
	assert.Equal(t, week, ps.Interval)
	assert.InDelta(t, 7.5, ps.Total, 1e-9)
	assert.InDelta(t, 7.5, ps.Scores.PullRequest, 1e-9)
	assert.Equal(t, 3, ps.Activity.PullRequestsOpened)
	assert.Equal(t, 3, ps.ActiveDays)
	assert.InDelta(t, 3.0, ps.Tags["go"], 1e-9)
	assert.InDelta(t, 7.5, ps.Tags[CategoryPullRequest], 1e-9)
}

func TestAggregate_Lifetime(t *testing.T) {
	lt := interval.LifetimeAsOf(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))
	daily := []*DailyScore{
		day(t, "2019-01-01", 1),
		day(t, "2024-03-02", 2),
		day(t, "2024-03-03", 4),
	}
	ps := Aggregate("alice", lt, daily)
	assert.InDelta(t, 3.0, ps.Total, 1e-9)
	assert.Equal(t, 2, ps.ActiveDays)
}

func TestAggregate_Empty(t *testing.T) {
	month, err := interval.ForDate(interval.Month, time.Now())
	require.NoError(t, err)
	ps := Aggregate("alice", month, nil)
	assert.Zero(t, ps.Total)
	assert.Zero(t, ps.ActiveDays)
	assert.NotNil(t, ps.Tags)
}

func TestDailyScore_Clone(t *testing.T) {
	d := day(t, "2024-03-01", 1)
	c := d.Clone()
	c.Tags["go"] = 99
	assert.InDelta(t, 1.0, d.Tags["go"], 1e-9)
}

func TestCategories(t *testing.T) {
	c := Categories{PullRequest: 1, Issue: 2, Review: 3, Comment: 4, Reaction: 0.5}
	assert.InDelta(t, 10.5, c.Sum(), 1e-9)
	assert.InDelta(t, 21.0, c.Add(c).Sum(), 1e-9)
	assert.Len(t, c.ByName(), 5)
	assert.InDelta(t, 3.0, c.ByName()[CategoryReview], 1e-9)
}
