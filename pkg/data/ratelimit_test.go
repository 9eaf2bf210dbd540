package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v83/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRateLimit_Nil(t *testing.T) {
	// should not panic
	checkRateLimit(nil)
}

func TestCheckRateLimit_HighRemaining(t *testing.T) {
	resp := &github.Response{
		Rate: github.Rate{
			Remaining: 100,
			Limit:     5000,
			Reset:     github.Timestamp{Time: time.Now().Add(time.Hour)},
		},
	}
	// should return immediately without sleeping
	checkRateLimit(resp)
}

func TestCheckRateLimit_ResetInPast(t *testing.T) {
	resp := &github.Response{
		Rate: github.Rate{
			Remaining: 0,
			Limit:     5000,
			Reset:     github.Timestamp{Time: time.Now().Add(-time.Hour)},
		},
	}
	// Reset is in the past, should return immediately
	checkRateLimit(resp)
}

func TestRateLimitController_Bounds(t *testing.T) {
	_, err := NewRateLimitController(nil, 0, 5, 100)
	assert.Error(t, err)
	_, err = NewRateLimitController(nil, 5, 2, 100)
	assert.Error(t, err)
	_, err = NewRateLimitController(nil, 1, 5, 0)
	assert.Error(t, err)

	c, err := NewRateLimitController(nil, 2, 20, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, c.Concurrency())

	tests := []struct {
		remaining int
		want      int
	}{
		{remaining: 5000, want: 20},
		{remaining: 1000, want: 10},
		{remaining: 150, want: 2},
		{remaining: 0, want: 2},
	}
	for _, tt := range tests {
		c.Observe(&github.Response{Rate: github.Rate{Limit: 5000, Remaining: tt.remaining}})
		c.Apply()
		assert.Equal(t, tt.want, c.Concurrency(), "remaining %d", tt.remaining)
	}

	// responses without rate headers are ignored
	c.Observe(&github.Response{})
	c.Observe(nil)
	c.Apply()
	assert.Equal(t, 2, c.Concurrency())

	assert.NoError(t, c.Refresh(context.Background()))
}

func TestRateLimitController_ObserveIsDeferred(t *testing.T) {
	c, err := NewRateLimitController(nil, 1, 20, 100)
	require.NoError(t, err)

	// a mapping in progress keeps the limit it started with
	c.Observe(&github.Response{Rate: github.Rate{Limit: 5000, Remaining: 300}})
	c.Observe(&github.Response{Rate: github.Rate{Limit: 5000, Remaining: 500}})
	assert.Equal(t, 20, c.Concurrency())

	c.Apply()
	assert.Equal(t, 5, c.Concurrency())

	// nothing pending, nothing changes
	c.Apply()
	assert.Equal(t, 5, c.Concurrency())
}

func TestRateLimitController_Refresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rate_limit", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"resources": {"core": {"limit": 5000, "remaining": 700, "reset": 1893456000}}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := github.NewClient(nil)
	u, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = u

	c, err := NewRateLimitController(client, 1, 20, 100)
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 7, c.Concurrency())
}
