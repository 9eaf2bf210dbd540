// Package orchestrator drives the incremental scoring passes. Each pass walks
// its interval buckets in order and computes every (contributor, bucket)
// entity at most once unless overwrite is requested. Week, month and lifetime
// rollups are recomputed when a daily score they cover changed after them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/devrank/pkg/badge"
	"github.com/mchmarny/devrank/pkg/config"
	"github.com/mchmarny/devrank/pkg/data"
	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/mchmarny/devrank/pkg/level"
	"github.com/mchmarny/devrank/pkg/metrics"
	"github.com/mchmarny/devrank/pkg/narrative"
	"github.com/mchmarny/devrank/pkg/pipeline"
	"github.com/mchmarny/devrank/pkg/score"
)

// EventSource reads imported contribution events.
type EventSource interface {
	ActiveContributors(ctx context.Context, iv interval.Interval) ([]string, error)
	ListEvents(ctx context.Context, contributor string, iv interval.Interval) ([]*score.Event, error)
	ActiveRepositories(ctx context.Context, iv interval.Interval) ([]string, error)
	RepositorySnapshot(ctx context.Context, repo string, iv interval.Interval) (*narrative.Snapshot, error)
}

// ResultStore persists computed results. Save methods called with
// overwrite=false must fail with an error wrapping data.ErrDuplicateKey
// when the record already exists. Week, month and lifetime rollups report
// data.Stale when a daily score they cover was written after them.
type ResultStore interface {
	DailyScoreExists(ctx context.Context, contributor string, date time.Time) (bool, error)
	SaveDailyScore(ctx context.Context, ds *score.DailyScore, overwrite bool) error
	ListDailyScores(ctx context.Context, contributor string, iv interval.Interval) ([]*score.DailyScore, error)
	ContributorsWithDailyScores(ctx context.Context, iv interval.Interval) ([]string, error)

	PeriodScoreFreshness(ctx context.Context, contributor string, iv interval.Interval) (data.Freshness, error)
	SavePeriodScore(ctx context.Context, ps *score.PeriodScore, overwrite bool) error

	LifetimeFreshness(ctx context.Context, contributor string, asOf time.Time) (data.Freshness, error)
	SaveLifetime(ctx context.Context, ls *score.LifetimeScore, overwrite bool) error
	GetLifetime(ctx context.Context, contributor string) (*score.LifetimeScore, error)

	SaveTagScores(ctx context.Context, list []*level.TagScore) error
	ListBadges(ctx context.Context, contributor string) ([]badge.Badge, error)
	SaveBadges(ctx context.Context, list []badge.Badge) error

	SummaryExists(ctx context.Context, repo string, iv interval.Interval) (bool, error)
	SaveSummary(ctx context.Context, repo string, iv interval.Interval, text string) error
}

// ReputationSource scores how established a contributor is, in [0, 1].
type ReputationSource interface {
	Reputation(ctx context.Context, contributor string, asOf time.Time) (float64, error)
}

// refresher is implemented by limiters that poll their budget, such as the
// GitHub rate limit controller.
type refresher interface {
	Refresh(ctx context.Context) error
}

var passOrder = []interval.Type{interval.Day, interval.Week, interval.Month, interval.Lifetime}

// Options selects what one run computes.
type Options struct {
	Range     interval.DateRange
	Overwrite bool

	// Passes defaults to all of them. They always run day, week, month,
	// lifetime regardless of the order given.
	Passes []interval.Type
}

func (o Options) passes() ([]interval.Type, error) {
	if len(o.Passes) == 0 {
		return slices.Clone(passOrder), nil
	}
	want := make(map[interval.Type]bool, len(o.Passes))
	for _, p := range o.Passes {
		if !slices.Contains(passOrder, p) {
			return nil, fmt.Errorf("%w: %q", interval.ErrInvalidType, p)
		}
		want[p] = true
	}
	list := make([]interval.Type, 0, len(want))
	for _, p := range passOrder {
		if want[p] {
			list = append(list, p)
		}
	}
	return list, nil
}

// Orchestrator computes daily, period and lifetime results from events.
type Orchestrator struct {
	events     EventSource
	results    ResultStore
	weights    score.Weights
	tagger     *score.Tagger
	curve      *level.Curve
	evaluator  *badge.Evaluator
	narrative  narrative.Generator
	reputation ReputationSource
	recorder   *metrics.Recorder
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWeights replaces the default scoring weights.
func WithWeights(w score.Weights) Option {
	return func(o *Orchestrator) {
		o.weights = w
	}
}

// WithTagger replaces the default tag rules.
func WithTagger(t *score.Tagger) Option {
	return func(o *Orchestrator) {
		o.tagger = t
	}
}

// WithCurve replaces the default leveling curve.
func WithCurve(c *level.Curve) Option {
	return func(o *Orchestrator) {
		o.curve = c
	}
}

// WithEvaluator replaces the default badge definitions.
func WithEvaluator(e *badge.Evaluator) Option {
	return func(o *Orchestrator) {
		o.evaluator = e
	}
}

// WithNarrative enables repository summaries for week and month buckets.
func WithNarrative(g narrative.Generator) Option {
	return func(o *Orchestrator) {
		o.narrative = g
	}
}

// WithReputation sets the reputation collaborator used by the lifetime pass.
func WithReputation(r ReputationSource) Option {
	return func(o *Orchestrator) {
		o.reputation = r
	}
}

// WithRecorder records entity and badge counters.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New returns an Orchestrator reading from events and writing to results.
func New(events EventSource, results ResultStore, opts ...Option) (*Orchestrator, error) {
	if events == nil || results == nil {
		return nil, errors.New("event source and result store are required")
	}

	o := &Orchestrator{
		events:  events,
		results: results,
		weights: score.DefaultWeights(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := o.weights.Validate(); err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}

	var err error
	if o.tagger == nil {
		if o.tagger, err = score.NewTagger(score.DefaultTagRules()); err != nil {
			return nil, fmt.Errorf("default tag rules: %w", err)
		}
	}
	if o.curve == nil {
		if o.curve, err = level.NewCurve(level.DefaultConfig()); err != nil {
			return nil, fmt.Errorf("default level curve: %w", err)
		}
	}
	if o.evaluator == nil {
		if o.evaluator, err = badge.NewEvaluator(badge.DefaultDefinitions(), badge.WithClock(o.now)); err != nil {
			return nil, fmt.Errorf("default badges: %w", err)
		}
	}

	return o, nil
}

// FromConfig translates validated configuration into options.
func FromConfig(cfg *config.Config) ([]Option, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	tagger, err := score.NewTagger(cfg.Tags)
	if err != nil {
		return nil, fmt.Errorf("tags: %w", err)
	}
	curve, err := level.NewCurve(cfg.Levels)
	if err != nil {
		return nil, fmt.Errorf("levels: %w", err)
	}
	ev, err := badge.NewEvaluator(cfg.Badges)
	if err != nil {
		return nil, fmt.Errorf("badges: %w", err)
	}

	opts := []Option{
		WithWeights(cfg.Weights),
		WithTagger(tagger),
		WithCurve(curve),
		WithEvaluator(ev),
	}

	if cfg.Narrative.Enabled {
		gen, err := narrative.NewHTTPGenerator(cfg.Narrative.Endpoint, cfg.Narrative.Timeout)
		if err != nil {
			return nil, fmt.Errorf("narrative: %w", err)
		}
		opts = append(opts, WithNarrative(gen))
	}

	return opts, nil
}

// run is the mutable state shared by the passes of one Run. Passes execute
// one at a time so it needs no locking.
type run struct {
	opts   Options
	report *Report
}

// Run executes the requested passes over opts.Range.
//
// Entity failures are counted and logged, never returned. An error from an
// event source or result store outside a single entity halts the run and is
// returned together with the report of the passes that finished. Shutdown
// stops dispatching new work and yields a partial report without an error.
func (o *Orchestrator) Run(ctx context.Context, rc *pipeline.Context, opts Options) (*Report, error) {
	if err := opts.Range.Validate(); err != nil {
		return nil, err
	}
	passes, err := opts.passes()
	if err != nil {
		return nil, err
	}
	if rc == nil {
		rc = pipeline.NewContext(nil, nil)
	}

	r := &run{
		opts: opts,
		report: &Report{
			RunID:     uuid.NewString(),
			StartedAt: o.now().UTC(),
			Range:     opts.Range,
			Overwrite: opts.Overwrite,
		},
	}

	log := rc.Logger
	if log == nil {
		log = slog.Default()
	}
	rc = rc.WithLogger(log.With("run", r.report.RunID))
	rc.Logger.Info("run started",
		"from", opts.Range.Start.Format(interval.DateLayout),
		"to", opts.Range.End.Format(interval.DateLayout),
		"passes", passes,
		"overwrite", opts.Overwrite)

	steps := make([]pipeline.Step[*run, *PassReport], 0, len(passes))
	for _, p := range passes {
		steps = append(steps, pipeline.Named(string(p), o.pass(p)))
	}

	_, err = pipeline.Sequence(steps...)(ctx, rc, r)

	report := r.report
	report.FinishedAt = o.now().UTC()
	o.recorder.RunFinished(report.FinishedAt, report.Partial)

	if err != nil {
		rc.Logger.Error("run halted", "error", err)
		return report, fmt.Errorf("run %s: %w", report.RunID, err)
	}

	computed, skipped, failed := report.Totals()
	rc.Logger.Info("run finished",
		"computed", computed,
		"skipped", skipped,
		"failed", failed,
		"awards", len(report.Awards),
		"partial", report.Partial,
		"duration", report.FinishedAt.Sub(report.StartedAt))

	return report, nil
}

// pass returns the step running every bucket of t in order.
func (o *Orchestrator) pass(t interval.Type) pipeline.Step[*run, *PassReport] {
	return func(ctx context.Context, rc *pipeline.Context, r *run) (*PassReport, error) {
		pr := &PassReport{Type: t}
		r.report.Passes = append(r.report.Passes, pr)

		if rc.ShutdownRequested() {
			pr.Stopped = true
			r.report.Partial = true
			rc.Logger.Warn("shutdown requested, pass not started")
			return pr, nil
		}

		if l, ok := rc.Limiter.(refresher); ok {
			if err := l.Refresh(ctx); err != nil {
				rc.Logger.Warn("concurrency refresh failed", "error", err)
			}
		}

		buckets, err := o.buckets(t, r.opts.Range)
		if err != nil {
			return pr, err
		}

		for _, iv := range buckets {
			if rc.ShutdownRequested() {
				pr.Stopped = true
				break
			}

			ir, err := pipeline.Named(iv.Key(), o.bucket(t, r.opts.Overwrite))(ctx, rc, iv)
			if ir != nil {
				pr.add(ir)
				r.report.Awards = append(r.report.Awards, ir.awards...)
			}
			if err != nil {
				if errors.Is(err, pipeline.ErrShutdown) {
					pr.Stopped = true
					break
				}
				return pr, fmt.Errorf("%s %s: %w", t, iv.Key(), err)
			}
		}

		if pr.Stopped {
			r.report.Partial = true
		}

		rc.Logger.Info("pass finished",
			"buckets", len(pr.Intervals),
			"computed", pr.Computed,
			"skipped", pr.Skipped,
			"failed", pr.Failed,
			"stopped", pr.Stopped)

		return pr, nil
	}
}

// buckets lists the intervals a pass walks. The lifetime pass has a single
// bucket ending with the range.
func (o *Orchestrator) buckets(t interval.Type, dr interval.DateRange) ([]interval.Interval, error) {
	if t == interval.Lifetime {
		return []interval.Interval{interval.LifetimeAsOf(dr.End)}, nil
	}
	return interval.Generate(t, dr)
}

// outcome is what a finished entity reports back to its bucket.
type outcome struct {
	key    string
	state  State
	awards []badge.Award
}

// bucket computes every entity of one interval.
func (o *Orchestrator) bucket(t interval.Type, overwrite bool) pipeline.Step[interval.Interval, *IntervalReport] {
	return func(ctx context.Context, rc *pipeline.Context, iv interval.Interval) (*IntervalReport, error) {
		ir := &IntervalReport{Interval: iv}

		var (
			keys []string
			err  error
			step pipeline.Step[string, *outcome]
		)
		switch t {
		case interval.Day:
			keys, err = o.events.ActiveContributors(ctx, iv)
			step = o.daily(iv, overwrite)
		case interval.Week, interval.Month:
			keys, err = o.results.ContributorsWithDailyScores(ctx, iv)
			step = o.period(iv, overwrite)
		case interval.Lifetime:
			keys, err = o.results.ContributorsWithDailyScores(ctx, iv)
			step = o.lifetime(iv, overwrite)
		default:
			return nil, fmt.Errorf("%w: %q", interval.ErrInvalidType, t)
		}
		if err != nil {
			return nil, fmt.Errorf("listing entities: %w", err)
		}
		ir.Entities = len(keys)

		outs, err := pipeline.MapOver(step,
			pipeline.WithAdaptiveConcurrency(),
			pipeline.WithLabel(string(t)+" "+iv.Key()),
		)(ctx, rc, keys)

		for _, out := range outs {
			switch out.state {
			case Complete:
				ir.Computed++
			case Skipped:
				ir.Skipped++
			}
			for _, a := range out.awards {
				o.recorder.Badge(a.Badge.Type, a.Badge.Tier.String())
			}
			ir.awards = append(ir.awards, out.awards...)
		}

		var se *pipeline.ShutdownError
		switch {
		case errors.As(err, &se):
			ir.Failed = se.Failed
			ir.Cancelled = se.Skipped
		case err != nil:
			return ir, err
		default:
			ir.Failed = len(keys) - len(outs)
		}

		if (t == interval.Week || t == interval.Month) && err == nil {
			ir.Summaries = o.summarize(ctx, rc, iv, overwrite)
		}

		logOutcome(ctx, rc.Logger, ir)
		return ir, err
	}
}

func logOutcome(ctx context.Context, log *slog.Logger, ir *IntervalReport) {
	lvl := slog.LevelDebug
	if ir.Failed > 0 {
		lvl = slog.LevelWarn
	}
	log.Log(ctx, lvl, "bucket finished",
		"entities", ir.Entities,
		"computed", ir.Computed,
		"skipped", ir.Skipped,
		"failed", ir.Failed,
		"cancelled", ir.Cancelled)
}
