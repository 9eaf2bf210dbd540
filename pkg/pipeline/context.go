// Package pipeline provides typed step composition and a bounded-concurrency
// mapper with cooperative shutdown.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/mchmarny/devrank/pkg/config"
)

// ConcurrencySource supplies the worker limit for adaptive mapping. It is
// read once per mapping call and must not change during one.
type ConcurrencySource interface {
	Concurrency() int
}

// Shutdown is a cooperative stop signal. Requesting it prevents new work
// from being dispatched; running work is never interrupted.
type Shutdown struct {
	requested atomic.Bool
}

// Request asks the pipeline to stop after in-flight work completes.
func (s *Shutdown) Request() {
	s.requested.Store(true)
}

// Requested reports whether shutdown was requested.
func (s *Shutdown) Requested() bool {
	return s != nil && s.requested.Load()
}

// WatchContext requests shutdown when ctx is done. The returned func stops
// the watcher.
func (s *Shutdown) WatchContext(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.Request()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Context is threaded through every step of one run.
type Context struct {
	Config *config.Config
	Logger *slog.Logger

	// Limiter is optional. When nil, adaptive mapping falls back to the
	// configured default.
	Limiter ConcurrencySource

	// Shutdown is optional. When nil, shutdown can never be requested.
	Shutdown *Shutdown
}

// NewContext returns a run context with a fresh shutdown token.
func NewContext(cfg *config.Config, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		Config:   cfg,
		Logger:   logger,
		Shutdown: &Shutdown{},
	}
}

// ShutdownRequested reports whether the run should stop dispatching work.
func (rc *Context) ShutdownRequested() bool {
	return rc != nil && rc.Shutdown.Requested()
}

// WithLogger returns a shallow copy using logger.
func (rc *Context) WithLogger(logger *slog.Logger) *Context {
	var c Context
	if rc != nil {
		c = *rc
	}
	c.Logger = logger
	return &c
}

func (rc *Context) logger() *slog.Logger {
	if rc == nil || rc.Logger == nil {
		return slog.Default()
	}
	return rc.Logger
}
