package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mchmarny/devrank/pkg/badge"
	"github.com/mchmarny/devrank/pkg/data"
	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/mchmarny/devrank/pkg/logging"
	"github.com/mchmarny/devrank/pkg/pipeline"
	"github.com/mchmarny/devrank/pkg/score"
)

// compute runs the shared skip-or-compute lifecycle of one entity. exists
// reports whether a result is already persisted; work computes and persists
// it and may return awards.
func (o *Orchestrator) compute(ctx context.Context, rc *pipeline.Context, e *entity, overwrite bool,
	exists func() (bool, error), work func() ([]badge.Award, error)) (*outcome, error) {
	if !overwrite {
		ok, err := exists()
		if err != nil {
			return nil, o.fail(rc, e, fmt.Errorf("checking existing result: %w", err))
		}
		if ok {
			if err := e.to(Skipped); err != nil {
				return nil, err
			}
			o.recorder.Entity(string(e.pass), string(Skipped), e.elapsed())
			logging.Trace(ctx, rc.Logger, "entity skipped", "entity", e.key)
			return &outcome{key: e.key, state: Skipped}, nil
		}
	}

	if err := e.to(Computing); err != nil {
		return nil, err
	}

	awards, err := work()
	if err != nil {
		return nil, o.fail(rc, e, err)
	}

	if err := e.to(Complete); err != nil {
		return nil, err
	}
	o.recorder.Entity(string(e.pass), string(Complete), e.elapsed())
	logging.Trace(ctx, rc.Logger, "entity computed", "entity", e.key, "duration", e.elapsed())
	return &outcome{key: e.key, state: Complete, awards: awards}, nil
}

func (o *Orchestrator) fail(rc *pipeline.Context, e *entity, err error) error {
	if e.state.terminal() {
		return err
	}
	if e.state == NotStarted {
		// a failed existence check still counts as an attempted computation
		e.state = Computing
	}
	_ = e.to(Failed)
	o.recorder.Entity(string(e.pass), string(Failed), e.elapsed())
	if errors.Is(err, data.ErrDuplicateKey) {
		rc.Logger.Error("idempotency violation, result already persisted", "entity", e.key, "error", err)
	}
	return err
}

// daily scores one contributor's events for a single day.
func (o *Orchestrator) daily(iv interval.Interval, overwrite bool) pipeline.Step[string, *outcome] {
	return func(ctx context.Context, rc *pipeline.Context, contributor string) (*outcome, error) {
		e := newEntity(contributor, interval.Day)
		return o.compute(ctx, rc, e, overwrite,
			func() (bool, error) {
				return o.results.DailyScoreExists(ctx, contributor, iv.Start)
			},
			func() ([]badge.Award, error) {
				events, err := o.events.ListEvents(ctx, contributor, iv)
				if err != nil {
					return nil, fmt.Errorf("listing events: %w", err)
				}
				ds := score.ScoreContributorDay(contributor, iv.Start, events, o.weights)
				o.tagger.Apply(ds, events)
				if err := o.results.SaveDailyScore(ctx, ds, overwrite); err != nil {
					return nil, fmt.Errorf("saving daily score: %w", err)
				}
				return nil, nil
			})
	}
}

// period sums one contributor's daily scores inside a week or month.
func (o *Orchestrator) period(iv interval.Interval, overwrite bool) pipeline.Step[string, *outcome] {
	return func(ctx context.Context, rc *pipeline.Context, contributor string) (*outcome, error) {
		e := newEntity(contributor, iv.Type)
		var stale bool
		return o.compute(ctx, rc, e, overwrite,
			func() (bool, error) {
				f, err := o.results.PeriodScoreFreshness(ctx, contributor, iv)
				stale = f == data.Stale
				return f == data.Current, err
			},
			func() ([]badge.Award, error) {
				daily, err := o.results.ListDailyScores(ctx, contributor, iv)
				if err != nil {
					return nil, fmt.Errorf("listing daily scores: %w", err)
				}
				ps := score.Aggregate(contributor, iv, daily)
				if stale {
					logging.Trace(ctx, rc.Logger, "replacing stale aggregate", "entity", contributor)
				}
				if err := o.results.SavePeriodScore(ctx, ps, overwrite || stale); err != nil {
					return nil, fmt.Errorf("saving period score: %w", err)
				}
				return nil, nil
			})
	}
}

// lifetime computes totals, tag levels, badges and reputation for one
// contributor as of the last day of iv. The lifetime record is written last
// so an interrupted entity is recomputed by the next run.
func (o *Orchestrator) lifetime(iv interval.Interval, overwrite bool) pipeline.Step[string, *outcome] {
	asOf := iv.LastDay()
	return func(ctx context.Context, rc *pipeline.Context, contributor string) (*outcome, error) {
		e := newEntity(contributor, interval.Lifetime)
		var stale bool
		return o.compute(ctx, rc, e, overwrite,
			func() (bool, error) {
				f, err := o.results.LifetimeFreshness(ctx, contributor, asOf)
				stale = f == data.Stale
				return f == data.Current, err
			},
			func() ([]badge.Award, error) {
				daily, err := o.results.ListDailyScores(ctx, contributor, iv)
				if err != nil {
					return nil, fmt.Errorf("listing daily scores: %w", err)
				}
				ps := score.Aggregate(contributor, iv, daily)
				now := o.now().UTC()

				if err := o.results.SaveTagScores(ctx, o.curve.TagScores(contributor, ps.Tags, now)); err != nil {
					return nil, fmt.Errorf("saving tag scores: %w", err)
				}

				existing, err := o.results.ListBadges(ctx, contributor)
				if err != nil {
					return nil, fmt.Errorf("listing badges: %w", err)
				}
				awards := o.evaluator.Evaluate(contributor, badgeMetrics(ps), existing)
				if len(awards) > 0 {
					list := make([]badge.Badge, 0, len(awards))
					for _, a := range awards {
						list = append(list, a.Badge)
						rc.Logger.Info("badge awarded",
							"contributor", contributor,
							"badge", a.Badge.Type,
							"tier", a.Badge.Tier.String(),
							"upgraded", a.Upgraded)
					}
					if err := o.results.SaveBadges(ctx, list); err != nil {
						return nil, fmt.Errorf("saving badges: %w", err)
					}
				}

				ls := score.NewLifetimeScore(ps)
				ls.UpdatedAt = now
				if o.reputation != nil {
					ls.Reputation = o.reputationOf(ctx, rc, contributor, asOf)
				}

				if err := o.results.SaveLifetime(ctx, ls, overwrite || stale); err != nil {
					return nil, fmt.Errorf("saving lifetime score: %w", err)
				}
				return awards, nil
			})
	}
}

// reputationOf scores contributor as of asOf. When the source fails the
// last stored value is carried forward.
func (o *Orchestrator) reputationOf(ctx context.Context, rc *pipeline.Context, contributor string, asOf time.Time) float64 {
	rep, err := o.reputation.Reputation(ctx, contributor, asOf)
	if err == nil {
		return rep
	}

	prev, lerr := o.results.GetLifetime(ctx, contributor)
	if lerr != nil || prev == nil {
		rc.Logger.Warn("reputation unavailable", "contributor", contributor, "error", err)
		return 0
	}
	rc.Logger.Warn("reputation unavailable, keeping previous value",
		"contributor", contributor, "previous", prev.Reputation, "error", err)
	return prev.Reputation
}

// badgeMetrics exposes lifetime totals under the badge metric names.
func badgeMetrics(ps *score.PeriodScore) map[string]float64 {
	a := ps.Activity
	return map[string]float64{
		badge.MetricPullRequestsMerged: float64(a.PullRequestsMerged),
		badge.MetricPullRequestsOpened: float64(a.PullRequestsOpened),
		badge.MetricReviews:            float64(a.Reviews),
		badge.MetricIssuesClosed:       float64(a.IssuesClosed),
		badge.MetricIssuesOpened:       float64(a.IssuesOpened),
		badge.MetricComments:           float64(a.Comments),
		badge.MetricCommits:            float64(a.Commits),
		badge.MetricActiveDays:         float64(ps.ActiveDays),
		badge.MetricTotalScore:         ps.Total,
	}
}

// summarize writes a narrative for every repository active in iv and
// returns how many were written. Failures are logged and skipped.
func (o *Orchestrator) summarize(ctx context.Context, rc *pipeline.Context, iv interval.Interval, overwrite bool) int {
	if o.narrative == nil || rc.ShutdownRequested() {
		return 0
	}

	repos, err := o.events.ActiveRepositories(ctx, iv)
	if err != nil {
		rc.Logger.Warn("listing repositories for summaries failed", "error", err)
		return 0
	}

	var summarize pipeline.Step[string, string] = func(ctx context.Context, rc *pipeline.Context, repo string) (string, error) {
		if !overwrite {
			ok, err := o.results.SummaryExists(ctx, repo, iv)
			if err != nil {
				return "", err
			}
			if ok {
				return "", nil
			}
		}

		snap, err := o.events.RepositorySnapshot(ctx, repo, iv)
		if err != nil {
			return "", fmt.Errorf("building snapshot: %w", err)
		}
		text, err := o.narrative.Summarize(ctx, snap)
		if err != nil {
			return "", fmt.Errorf("summarizing: %w", err)
		}
		if text == "" {
			return "", nil
		}
		if err := o.results.SaveSummary(ctx, repo, iv, text); err != nil {
			return "", fmt.Errorf("saving summary: %w", err)
		}
		return repo, nil
	}

	written, err := pipeline.MapOver(summarize,
		pipeline.WithAdaptiveConcurrency(),
		pipeline.WithLabel("summaries "+iv.Key()),
	)(ctx, rc, repos)
	if err != nil {
		rc.Logger.Warn("summaries stopped early", "error", err)
	}

	n := 0
	for _, repo := range written {
		if repo != "" {
			n++
		}
	}
	return n
}
