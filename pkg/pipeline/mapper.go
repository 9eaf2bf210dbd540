package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the worker limit when nothing else is configured.
const DefaultConcurrency = 10

// ErrShutdown marks a run that stopped early because shutdown was requested.
var ErrShutdown = errors.New("shutdown requested")

// ShutdownError reports how far a mapping got before shutdown.
// errors.Is(err, ErrShutdown) matches it.
type ShutdownError struct {
	Label     string
	Completed int
	Failed    int
	Skipped   int
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("%s: %s (completed: %d, failed: %d, skipped: %d)",
		e.Label, ErrShutdown, e.Completed, e.Failed, e.Skipped)
}

func (e *ShutdownError) Unwrap() error {
	return ErrShutdown
}

type mapOptions struct {
	limit    int
	adaptive bool
	label    string
}

// MapOption configures MapOver.
type MapOption func(*mapOptions)

// WithConcurrency fixes the worker limit.
func WithConcurrency(n int) MapOption {
	return func(o *mapOptions) {
		o.limit = n
	}
}

// WithAdaptiveConcurrency reads the worker limit from the context's Limiter
// when one is set.
func WithAdaptiveConcurrency() MapOption {
	return func(o *mapOptions) {
		o.adaptive = true
	}
}

// WithLabel names the collection in log records.
func WithLabel(label string) MapOption {
	return func(o *mapOptions) {
		o.label = label
	}
}

func (o *mapOptions) concurrency(rc *Context) int {
	n := 0
	switch {
	case o.limit > 0:
		n = o.limit
	case o.adaptive && rc != nil && rc.Limiter != nil:
		n = rc.Limiter.Concurrency()
	case rc != nil && rc.Config != nil:
		n = rc.Config.Concurrency.Default
	}
	if n < 1 {
		n = DefaultConcurrency
	}
	return n
}

// MapOver applies step to every element with bounded concurrency. Element
// failures are logged and left out of the result; they never fail the
// mapping. Output order is not tied to input order.
//
// Shutdown is checked before each dispatch. Once requested, no new
// elements start, in-flight ones finish, and the successful results are
// returned together with a *ShutdownError. A cancelled ctx stops dispatch
// the same way but returns the context error.
func MapOver[I, O any](step Step[I, O], opts ...MapOption) Step[[]I, []O] {
	o := &mapOptions{label: "items"}
	for _, opt := range opts {
		opt(o)
	}

	return func(ctx context.Context, rc *Context, in []I) ([]O, error) {
		log := rc.logger()
		limit := o.concurrency(rc)

		slots := make([]O, len(in))
		done := make([]bool, len(in))
		var failed, late atomic.Int64

		g := new(errgroup.Group)
		g.SetLimit(limit)

		dispatched := 0
		for i, item := range in {
			if rc.ShutdownRequested() || ctx.Err() != nil {
				break
			}
			dispatched++
			g.Go(func() error {
				// a slot may free up after shutdown was requested
				if rc.ShutdownRequested() {
					late.Add(1)
					return nil
				}
				r, err := step(ctx, rc, item)
				if err != nil {
					failed.Add(1)
					log.Error("item failed", "label", o.label, "item", describe(item, i), "error", err)
					return nil
				}
				slots[i] = r
				done[i] = true
				return nil
			})
		}
		_ = g.Wait()

		out := make([]O, 0, dispatched)
		for i := range slots {
			if done[i] {
				out = append(out, slots[i])
			}
		}

		if err := ctx.Err(); err != nil && dispatched < len(in) {
			return out, fmt.Errorf("mapping %s: %w", o.label, err)
		}

		if skipped := len(in) - dispatched + int(late.Load()); skipped > 0 {
			se := &ShutdownError{
				Label:     o.label,
				Completed: len(out),
				Failed:    int(failed.Load()),
				Skipped:   skipped,
			}
			log.Warn("shutdown requested, stopped dispatching",
				"label", o.label, "completed", se.Completed, "failed", se.Failed, "skipped", se.Skipped)
			return out, se
		}

		if f := failed.Load(); f > 0 {
			log.Warn("mapping finished with failures", "label", o.label,
				"total", len(in), "failed", f, "limit", limit)
		}
		return out, nil
	}
}

func describe(item any, i int) string {
	if s, ok := item.(fmt.Stringer); ok {
		return s.String()
	}
	if s, ok := item.(string); ok {
		return s
	}
	return fmt.Sprintf("#%d", i)
}
