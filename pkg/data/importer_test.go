package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-github/v83/github"
	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/mchmarny/devrank/pkg/pipeline"
	"github.com/mchmarny/devrank/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var githubFixtures = map[string]string{
	"GET /repos/o/r/pulls": `[
		{"number": 1, "user": {"login": "alice"}, "updated_at": "2024-03-02T10:00:00Z"},
		{"number": 2, "user": {"login": "bob"}, "updated_at": "2023-01-02T10:00:00Z"}
	]`,
	"GET /repos/o/r/pulls/1": `{
		"number": 1, "user": {"login": "alice"}, "body": "Adds parser. Fixes #5",
		"created_at": "2024-03-01T10:00:00Z", "updated_at": "2024-03-02T10:00:00Z",
		"merged": true, "merged_at": "2024-03-02T09:00:00Z",
		"additions": 100, "deletions": 20, "changed_files": 3,
		"comments": 2, "review_comments": 1, "labels": [{"name": "Bug"}]
	}`,
	"GET /repos/o/r/pulls/1/reviews": `[
		{"id": 11, "user": {"login": "bob"}, "state": "APPROVED", "body": "lgtm", "submitted_at": "2024-03-01T12:00:00Z"},
		{"id": 12, "user": {"login": "alice"}, "state": "COMMENTED", "submitted_at": "2024-03-01T13:00:00Z"}
	]`,
	"GET /repos/o/r/pulls/1/files": `[{"filename": "pkg/a.go"}]`,
	"GET /repos/o/r/issues": `[
		{"number": 5, "user": {"login": "carol"}, "state": "closed",
		 "created_at": "2024-03-01T08:00:00Z", "closed_at": "2024-03-02T09:00:00Z",
		 "closed_by": {"login": "alice"}, "labels": [{"name": "bug"}], "comments": 1},
		{"number": 1, "user": {"login": "alice"}, "state": "closed",
		 "pull_request": {"url": "https://api.github.com/repos/o/r/pulls/1"}}
	]`,
	"GET /repos/o/r/issues/comments": `[
		{"id": 21, "user": {"login": "bob"}, "body": "same here",
		 "issue_url": "https://api.github.com/repos/o/r/issues/5",
		 "created_at": "2024-03-01T09:00:00Z",
		 "reactions": {"total_count": 2, "+1": 1, "heart": 1}}
	]`,
	"GET /repos/o/r/pulls/comments": `[
		{"id": 31, "user": {"login": "carol"}, "body": "nit", "path": "pkg/a.go",
		 "pull_request_url": "https://api.github.com/repos/o/r/pulls/1",
		 "created_at": "2024-03-01T11:00:00Z"}
	]`,
	"GET /repos/o/r/commits": `[
		{"sha": "abc", "author": {"login": "alice"}, "commit": {"author": {"date": "2024-03-01T07:00:00Z"}}},
		{"sha": "def", "commit": {"author": {"date": "2024-03-01T07:00:00Z"}}}
	]`,
}

func setupTestGitHub(t *testing.T) *github.Client {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, body := range githubFixtures {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-RateLimit-Limit", "5000")
			w.Header().Set("X-RateLimit-Remaining", "400")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
			_, _ = w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	u, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = u
	return client
}

func TestImporter_Import(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	im, err := NewImporter(setupTestGitHub(t), s, WithMonths(6), WithImportClock(func() time.Time { return now }))
	require.NoError(t, err)

	rc := pipeline.NewContext(nil, nil)
	res, err := im.Import(ctx, rc, "o/r")
	require.NoError(t, err)
	assert.Equal(t, "o/r", res.Repository)
	assert.Equal(t, 10, res.Fetched)
	assert.Equal(t, 10, res.Saved)
	assert.Equal(t, 1, res.Counts[string(score.KindPROpen)])
	assert.Equal(t, 1, res.Counts[string(score.KindPRMerge)])
	assert.Equal(t, 1, res.Counts[string(score.KindPRReview)])
	assert.Equal(t, 2, res.Counts[string(score.KindReaction)])
	assert.Equal(t, 1, res.Counts[string(score.KindCommit)])

	march := interval.Interval{
		Type:  interval.Month,
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	alice, err := s.ListEvents(ctx, "alice", march)
	require.NoError(t, err)
	byKind := make(map[score.Kind]*score.Event)
	for _, e := range alice {
		byKind[e.Kind] = e
	}

	pr := byKind[score.KindPROpen]
	require.NotNil(t, pr)
	assert.Equal(t, 120, pr.LinesChanged())
	assert.Equal(t, 3, pr.ChangedFiles)
	assert.Equal(t, 1, pr.LinkedIssues)
	assert.Equal(t, 2, pr.ReviewCount)
	assert.Equal(t, 1, pr.ApprovalCount)
	assert.Equal(t, 3, pr.CommentCount)
	assert.Equal(t, []string{"bug"}, pr.Labels)
	assert.Equal(t, []string{"pkg/a.go"}, pr.Paths)

	closed := byKind[score.KindIssueClose]
	require.NotNil(t, closed)
	assert.Equal(t, 5, closed.Number)
	assert.False(t, closed.OpenedAt.IsZero())
	assert.NotContains(t, byKind, score.KindPRReview, "own review is not credited")

	bob, err := s.ListEvents(ctx, "bob", march)
	require.NoError(t, err)
	require.Len(t, bob, 4)

	since, err := s.GetImportSince(ctx, "o/r", importKindIssue, now.AddDate(0, -6, 0))
	require.NoError(t, err)
	assert.True(t, now.Equal(since))

	// second run sees the same data and stores nothing new
	res, err = im.Import(ctx, rc, "o/r")
	require.NoError(t, err)
	assert.Zero(t, res.Saved)
	assert.Zero(t, res.Counts[string(score.KindPROpen)])
}

func TestImporter_AppliesRateLimitAfterImport(t *testing.T) {
	s := setupTestStore(t)
	client := setupTestGitHub(t)

	limiter, err := NewRateLimitController(client, 1, 20, 100)
	require.NoError(t, err)

	im, err := NewImporter(client, s, WithRateLimiter(limiter),
		WithImportClock(func() time.Time { return time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC) }))
	require.NoError(t, err)

	rc := pipeline.NewContext(nil, nil)
	rc.Limiter = limiter
	_, err = im.Import(context.Background(), rc, "o/r")
	require.NoError(t, err)

	// 400 remaining at 100 requests per worker
	assert.Equal(t, 4, limiter.Concurrency())
}

func TestImporter_InvalidInput(t *testing.T) {
	s := setupTestStore(t)
	_, err := NewImporter(nil, s)
	assert.Error(t, err)
	_, err = NewImporter(github.NewClient(nil), nil)
	assert.Error(t, err)

	im, err := NewImporter(github.NewClient(nil), s)
	require.NoError(t, err)
	_, err = im.Import(context.Background(), pipeline.NewContext(nil, nil), "not-a-repo")
	assert.Error(t, err)
}

func TestCountLinkedIssues(t *testing.T) {
	tests := []struct {
		body string
		want int
	}{
		{"", 0},
		{"Fixes #12", 1},
		{"closes #1, resolves #2 and fixed #1", 2},
		{"Resolves: #7", 1},
		{"see #3", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, countLinkedIssues(tt.body), tt.body)
	}
}

func TestMapReactions(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Nil(t, mapReactions("o/r", 1, "a", 1, at, nil))

	list := mapReactions("o/r", 1, "a", 7, at, &github.Reactions{
		TotalCount: github.Ptr(3),
		PlusOne:    github.Ptr(2),
		Rocket:     github.Ptr(1),
	})
	require.Len(t, list, 3)
	ids := make(map[string]bool)
	for _, e := range list {
		assert.True(t, e.Received)
		assert.Equal(t, "a", e.Actor)
		ids[e.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestNumberFromURL(t *testing.T) {
	assert.Equal(t, 5, numberFromURL("https://api.github.com/repos/o/r/issues/5"))
	assert.Equal(t, 0, numberFromURL(""))
}
