package badge

import (
	"errors"
	"fmt"
	"time"
)

// Award is a badge created or upgraded by an evaluation.
type Award struct {
	Badge    Badge `json:"badge" yaml:"badge"`
	Previous Tier  `json:"previous" yaml:"previous"`
	Upgraded bool  `json:"upgraded" yaml:"upgraded"`
}

// Evaluator applies a fixed set of definitions.
type Evaluator struct {
	defs []Definition
	now  func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source used for EarnedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEvaluator validates defs and returns an Evaluator.
func NewEvaluator(defs []Definition, opts ...Option) (*Evaluator, error) {
	var errs []error
	seen := make(map[string]bool)
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[d.Type] {
			errs = append(errs, fmt.Errorf("duplicate badge type %q", d.Type))
		}
		seen[d.Type] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	e := &Evaluator{
		defs: defs,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Definitions returns the configured definitions.
func (e *Evaluator) Definitions() []Definition {
	return e.defs
}

// Evaluate computes the tier each definition earns from metrics and returns
// only badges that are new or moved to a higher tier than in existing.
// Existing badges are never lowered and their EarnedAt is kept.
func (e *Evaluator) Evaluate(contributor string, metrics map[string]float64, existing []Badge) []Award {
	current := make(map[string]Badge, len(existing))
	for _, b := range existing {
		if b.Contributor == contributor || b.Contributor == "" {
			current[b.Type] = b
		}
	}

	now := e.now()
	var awards []Award
	for _, d := range e.defs {
		tier := d.TierFor(metrics[d.Metric])
		if tier == None {
			continue
		}

		prev, ok := current[d.Type]
		switch {
		case !ok:
			awards = append(awards, Award{
				Badge: Badge{
					Contributor: contributor,
					Type:        d.Type,
					Tier:        tier,
					EarnedAt:    now,
					UpdatedAt:   now,
				},
			})
		case tier > prev.Tier:
			up := prev
			up.Contributor = contributor
			up.Tier = tier
			up.UpdatedAt = now
			awards = append(awards, Award{Badge: up, Previous: prev.Tier, Upgraded: true})
		}
	}

	return awards
}
