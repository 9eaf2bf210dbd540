package orchestrator

import (
	"time"

	"github.com/mchmarny/devrank/pkg/badge"
	"github.com/mchmarny/devrank/pkg/interval"
)

// IntervalReport counts entity outcomes for one bucket.
type IntervalReport struct {
	Interval  interval.Interval `json:"interval" yaml:"interval"`
	Entities  int               `json:"entities" yaml:"entities"`
	Computed  int               `json:"computed" yaml:"computed"`
	Skipped   int               `json:"skipped" yaml:"skipped"`
	Failed    int               `json:"failed" yaml:"failed"`
	Cancelled int               `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Summaries int               `json:"summaries,omitempty" yaml:"summaries,omitempty"`

	awards []badge.Award
}

// PassReport aggregates the buckets of one pass.
type PassReport struct {
	Type      interval.Type     `json:"type" yaml:"type"`
	Intervals []*IntervalReport `json:"intervals" yaml:"intervals"`
	Computed  int               `json:"computed" yaml:"computed"`
	Skipped   int               `json:"skipped" yaml:"skipped"`
	Failed    int               `json:"failed" yaml:"failed"`
	Cancelled int               `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Awards    []badge.Award     `json:"awards,omitempty" yaml:"awards,omitempty"`

	// Stopped is set when shutdown ended the pass before all buckets ran.
	Stopped bool `json:"stopped,omitempty" yaml:"stopped,omitempty"`
}

func (p *PassReport) add(ir *IntervalReport) {
	p.Intervals = append(p.Intervals, ir)
	p.Computed += ir.Computed
	p.Skipped += ir.Skipped
	p.Failed += ir.Failed
	p.Cancelled += ir.Cancelled
	p.Awards = append(p.Awards, ir.awards...)
}

// Report is the outcome of one orchestrator run.
type Report struct {
	RunID      string             `json:"run_id" yaml:"runId"`
	StartedAt  time.Time          `json:"started_at" yaml:"startedAt"`
	FinishedAt time.Time          `json:"finished_at" yaml:"finishedAt"`
	Range      interval.DateRange `json:"range" yaml:"range"`
	Overwrite  bool               `json:"overwrite" yaml:"overwrite"`
	Passes     []*PassReport      `json:"passes" yaml:"passes"`
	Awards     []badge.Award      `json:"awards,omitempty" yaml:"awards,omitempty"`
	Partial    bool               `json:"partial" yaml:"partial"`
}

// Pass returns the report of pass t or nil when it did not run.
func (r *Report) Pass(t interval.Type) *PassReport {
	for _, p := range r.Passes {
		if p.Type == t {
			return p
		}
	}
	return nil
}

// Totals sums the entity outcomes of all passes.
func (r *Report) Totals() (computed, skipped, failed int) {
	for _, p := range r.Passes {
		computed += p.Computed
		skipped += p.Skipped
		failed += p.Failed
	}
	return computed, skipped, failed
}

// PassTypes lists the passes in the order they ran.
func (r *Report) PassTypes() []interval.Type {
	list := make([]interval.Type, 0, len(r.Passes))
	for _, p := range r.Passes {
		list = append(list, p.Type)
	}
	return list
}
