package pipeline

import (
	"context"
	"time"

	"github.com/mchmarny/devrank/pkg/logging"
	"golang.org/x/sync/errgroup"
)

// Step is one stage of a pipeline.
type Step[I, O any] func(ctx context.Context, rc *Context, in I) (O, error)

// Pair holds the results of Both.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Then runs a and feeds its output to b.
func Then[A, B, C any](a Step[A, B], b Step[B, C]) Step[A, C] {
	return func(ctx context.Context, rc *Context, in A) (C, error) {
		mid, err := a(ctx, rc, in)
		if err != nil {
			var zero C
			return zero, err
		}
		return b(ctx, rc, mid)
	}
}

// Chain folds same-typed steps with Then. An empty chain returns its input.
func Chain[T any](steps ...Step[T, T]) Step[T, T] {
	if len(steps) == 0 {
		return func(_ context.Context, _ *Context, in T) (T, error) { return in, nil }
	}
	out := steps[0]
	for _, s := range steps[1:] {
		out = Then(out, s)
	}
	return out
}

// Sequence runs every step against the same input one at a time, in order,
// and stops at the first error.
func Sequence[I, O any](steps ...Step[I, O]) Step[I, []O] {
	return func(ctx context.Context, rc *Context, in I) ([]O, error) {
		out := make([]O, 0, len(steps))
		for _, s := range steps {
			r, err := s(ctx, rc, in)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	}
}

// AllOf runs every step against the same input concurrently. The first
// error cancels the shared context and is returned; results are positional.
func AllOf[I, O any](steps ...Step[I, O]) Step[I, []O] {
	return func(ctx context.Context, rc *Context, in I) ([]O, error) {
		out := make([]O, len(steps))
		g, gctx := errgroup.WithContext(ctx)
		for i, s := range steps {
			g.Go(func() error {
				r, err := s(gctx, rc, in)
				if err != nil {
					return err
				}
				out[i] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Both runs two differently typed steps concurrently.
func Both[I, A, B any](a Step[I, A], b Step[I, B]) Step[I, Pair[A, B]] {
	return func(ctx context.Context, rc *Context, in I) (Pair[A, B], error) {
		var p Pair[A, B]
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			r, err := a(gctx, rc, in)
			p.First = r
			return err
		})
		g.Go(func() error {
			r, err := b(gctx, rc, in)
			p.Second = r
			return err
		})
		if err := g.Wait(); err != nil {
			return Pair[A, B]{}, err
		}
		return p, nil
	}
}

// Named scopes the step's logger under name and traces entry and exit.
func Named[I, O any](name string, step Step[I, O]) Step[I, O] {
	return func(ctx context.Context, rc *Context, in I) (O, error) {
		child := rc.WithLogger(rc.logger().WithGroup(name))
		start := time.Now()
		logging.Trace(ctx, child.Logger, "step started")

		out, err := step(ctx, child, in)
		if err != nil {
			child.Logger.Debug("step failed", "duration", time.Since(start), "error", err)
			return out, err
		}

		logging.Trace(ctx, child.Logger, "step completed", "duration", time.Since(start))
		return out, nil
	}
}

// Lift turns a plain function into a Step.
func Lift[I, O any](f func(I) O) Step[I, O] {
	return func(_ context.Context, _ *Context, in I) (O, error) {
		return f(in), nil
	}
}
