package data

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/go-github/v83/github"
)

const rateLimitThreshold = 10

func checkRateLimit(resp *github.Response) {
	if resp == nil {
		return
	}

	if resp.Rate.Remaining > rateLimitThreshold {
		return
	}

	resetAt := resp.Rate.Reset.Time
	wait := time.Until(resetAt)
	if wait <= 0 {
		return
	}

	jitter := time.Duration(rand.IntN(2000)) * time.Millisecond
	total := wait + jitter

	slog.Info("rate limit approaching, waiting",
		"remaining", resp.Rate.Remaining,
		"reset_at", resetAt.Format(time.RFC3339),
		"wait", total.String(),
	)

	time.Sleep(total)
}

// RateLimitController sizes mapper concurrency from the remaining GitHub API
// quota. It implements pipeline.ConcurrencySource.
type RateLimitController struct {
	client            *github.Client
	min               int
	max               int
	requestsPerWorker int
	current           atomic.Int64

	// latest remaining quota seen by Observe, -1 when none is pending
	pending atomic.Int64
}

// NewRateLimitController returns a controller starting at max workers.
func NewRateLimitController(client *github.Client, lo, hi, requestsPerWorker int) (*RateLimitController, error) {
	if lo < 1 || hi < lo {
		return nil, fmt.Errorf("invalid concurrency bounds: min %d, max %d", lo, hi)
	}
	if requestsPerWorker < 1 {
		return nil, fmt.Errorf("requests per worker must be positive: %d", requestsPerWorker)
	}
	c := &RateLimitController{
		client:            client,
		min:               lo,
		max:               hi,
		requestsPerWorker: requestsPerWorker,
	}
	c.current.Store(int64(hi))
	c.pending.Store(-1)
	return c, nil
}

// Concurrency returns the current worker limit.
func (c *RateLimitController) Concurrency() int {
	return int(c.current.Load())
}

// Observe records the rate headers of a response. Workers call it while a
// mapping runs; the limit only changes on the next Apply or Refresh.
func (c *RateLimitController) Observe(resp *github.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	c.pending.Store(int64(resp.Rate.Remaining))
}

// Apply adjusts the limit from the latest observed quota. It is called
// between mappings, never by the workers of one.
func (c *RateLimitController) Apply() {
	if remaining := c.pending.Swap(-1); remaining >= 0 {
		c.set(int(remaining))
	}
}

// Refresh queries the core rate limit and adjusts the limit.
func (c *RateLimitController) Refresh(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	limits, _, err := c.client.RateLimit.Get(ctx)
	if err != nil {
		return fmt.Errorf("error getting rate limit: %w", err)
	}
	if limits == nil || limits.Core == nil {
		return nil
	}
	c.pending.Store(-1)
	c.set(limits.Core.Remaining)
	return nil
}

func (c *RateLimitController) set(remaining int) {
	n := min(max(remaining/c.requestsPerWorker, c.min), c.max)
	if prev := c.current.Swap(int64(n)); prev != int64(n) {
		slog.Debug("concurrency adjusted", "remaining", remaining, "from", prev, "to", n)
	}
}
