package data

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/mchmarny/devrank/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportSince_Default(t *testing.T) {
	s := setupTestStore(t)
	horizon := time.Now().AddDate(0, -6, 0).UTC()

	got, err := s.GetImportSince(context.Background(), "o/r", importKindIssue, horizon)
	require.NoError(t, err)
	assert.True(t, horizon.Equal(got))
}

func TestImportSince_SaveAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	horizon := time.Now().AddDate(0, -6, 0).UTC()
	since := time.Now().AddDate(0, -1, 0).UTC()

	require.NoError(t, s.SaveImportSince(ctx, "o/r", importKindIssue, horizon.AddDate(0, 1, 0)))
	require.NoError(t, s.SaveImportSince(ctx, "o/r", importKindIssue, since))

	got, err := s.GetImportSince(ctx, "o/r", importKindIssue, horizon)
	require.NoError(t, err)
	assert.True(t, since.Equal(got))

	// stored time older than the horizon is clamped
	got, err = s.GetImportSince(ctx, "o/r", importKindIssue, since.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, since.AddDate(0, 0, 1).Equal(got))
}

func TestSaveImportSince_EmptyParams(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	assert.Error(t, s.SaveImportSince(ctx, "", importKindIssue, time.Now()))
	assert.Error(t, s.SaveImportSince(ctx, "o/r", "", time.Now()))
	assert.Error(t, s.SaveImportSince(ctx, "o/r", importKindIssue, time.Time{}))
}

func TestGetDataState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.SaveEvents(ctx, []*score.Event{
		testEvent("commit:1", score.KindCommit, "alice", "2024-03-01T10:00:00Z"),
		testEvent("commit:2", score.KindCommit, "bob", "2024-03-01T10:00:00Z"),
	})
	require.NoError(t, err)

	state, err := s.GetDataState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), state["event"])
	assert.Equal(t, int64(2), state["contributor"])
	assert.Equal(t, int64(1), state["repository"])
	assert.Equal(t, int64(0), state["badge"])
}

func TestRuns_SaveList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	r, err := interval.NewDateRange("2024-03-01", "2024-03-31")
	require.NoError(t, err)

	started := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	first := &Run{
		ID:         uuid.NewString(),
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Range:      r,
		Passes:     []interval.Type{interval.Day, interval.Week},
		Computed:   10,
		Skipped:    2,
	}
	second := &Run{
		ID:         uuid.NewString(),
		StartedAt:  started.Add(time.Hour),
		FinishedAt: started.Add(time.Hour),
		Range:      r,
		Passes:     []interval.Type{interval.Lifetime},
		Overwrite:  true,
		Partial:    true,
		Failed:     1,
	}
	require.NoError(t, s.SaveRun(ctx, first))
	require.NoError(t, s.SaveRun(ctx, second))
	assert.Error(t, s.SaveRun(ctx, &Run{}))

	list, err := s.ListRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.True(t, list[0].Partial)
	assert.True(t, list[0].Overwrite)
	assert.Equal(t, []interval.Type{interval.Lifetime}, list[0].Passes)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, []interval.Type{interval.Day, interval.Week}, list[1].Passes)
	assert.Equal(t, 10, list[1].Computed)
	assert.True(t, r.Start.Equal(list[1].Range.Start))
}
