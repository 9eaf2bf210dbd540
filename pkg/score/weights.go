package score

import (
	"errors"
	"fmt"
	"maps"
)

// PullRequestWeights configures the pull request category.
type PullRequestWeights struct {
	Base                  float64 `koanf:"base" json:"base" yaml:"base"`
	Merged                float64 `koanf:"merged" json:"merged" yaml:"merged"`
	PerReview             float64 `koanf:"per_review" json:"per_review" yaml:"per_review"`
	PerApproval           float64 `koanf:"per_approval" json:"per_approval" yaml:"per_approval"`
	PerComment            float64 `koanf:"per_comment" json:"per_comment" yaml:"per_comment"`
	DescriptionMultiplier float64 `koanf:"description_multiplier" json:"description_multiplier" yaml:"description_multiplier"`
	ComplexityMultiplier  float64 `koanf:"complexity_multiplier" json:"complexity_multiplier" yaml:"complexity_multiplier"`
	OptimalSizeBonus      float64 `koanf:"optimal_size_bonus" json:"optimal_size_bonus" yaml:"optimal_size_bonus"`
	ClosingIssueBonus     float64 `koanf:"closing_issue_bonus" json:"closing_issue_bonus" yaml:"closing_issue_bonus"`
	MaxPerDay             float64 `koanf:"max_per_day" json:"max_per_day" yaml:"max_per_day"`

	// shape parameters, not scaled by Weights.Scale
	OptimalSizeMin     int     `koanf:"optimal_size_min" json:"optimal_size_min" yaml:"optimal_size_min"`
	OptimalSizeMax     int     `koanf:"optimal_size_max" json:"optimal_size_max" yaml:"optimal_size_max"`
	DiminishingReturns float64 `koanf:"diminishing_returns" json:"diminishing_returns" yaml:"diminishing_returns"`
}

// IssueWeights configures the issue category.
type IssueWeights struct {
	Base        float64 `koanf:"base" json:"base" yaml:"base"`
	PerComment  float64 `koanf:"per_comment" json:"per_comment" yaml:"per_comment"`
	ClosedBonus float64 `koanf:"closed_bonus" json:"closed_bonus" yaml:"closed_bonus"`

	// shape parameters, not scaled by Weights.Scale
	ResolutionSpeedMultiplier float64            `koanf:"resolution_speed_multiplier" json:"resolution_speed_multiplier" yaml:"resolution_speed_multiplier"`
	WithLabelsMultiplier      map[string]float64 `koanf:"with_labels_multiplier" json:"with_labels_multiplier" yaml:"with_labels_multiplier"`
	DiminishingReturns        float64            `koanf:"diminishing_returns" json:"diminishing_returns" yaml:"diminishing_returns"`
}

// ReviewWeights configures the review category.
type ReviewWeights struct {
	Base                       float64 `koanf:"base" json:"base" yaml:"base"`
	Approved                   float64 `koanf:"approved" json:"approved" yaml:"approved"`
	ChangesRequested           float64 `koanf:"changes_requested" json:"changes_requested" yaml:"changes_requested"`
	Commented                  float64 `koanf:"commented" json:"commented" yaml:"commented"`
	DetailedFeedbackMultiplier float64 `koanf:"detailed_feedback_multiplier" json:"detailed_feedback_multiplier" yaml:"detailed_feedback_multiplier"`
	ThoroughnessMultiplier     float64 `koanf:"thoroughness_multiplier" json:"thoroughness_multiplier" yaml:"thoroughness_multiplier"`
	MaxPerDay                  float64 `koanf:"max_per_day" json:"max_per_day" yaml:"max_per_day"`
}

// CommentWeights configures the comment category.
type CommentWeights struct {
	Base                  float64 `koanf:"base" json:"base" yaml:"base"`
	SubstantiveMultiplier float64 `koanf:"substantive_multiplier" json:"substantive_multiplier" yaml:"substantive_multiplier"`
	// MaxPerDay of 0 leaves the category uncapped.
	MaxPerDay float64 `koanf:"max_per_day" json:"max_per_day" yaml:"max_per_day"`

	// shape parameters, not scaled by Weights.Scale
	DiminishingReturns float64 `koanf:"diminishing_returns" json:"diminishing_returns" yaml:"diminishing_returns"`
	MaxPerThread       int     `koanf:"max_per_thread" json:"max_per_thread" yaml:"max_per_thread"`
}

// ReactionWeights configures the minor reaction modifier.
type ReactionWeights struct {
	Base      float64 `koanf:"base" json:"base" yaml:"base"`
	Received  float64 `koanf:"received" json:"received" yaml:"received"`
	MaxPerDay float64 `koanf:"max_per_day" json:"max_per_day" yaml:"max_per_day"`

	// shape parameters, not scaled by Weights.Scale
	Types              map[string]float64 `koanf:"types" json:"types" yaml:"types"`
	DiminishingReturns float64            `koanf:"diminishing_returns" json:"diminishing_returns" yaml:"diminishing_returns"`
}

// Weights is the full scoring configuration. Treat values as immutable once
// validated; Scale and Clone return copies.
type Weights struct {
	PullRequest PullRequestWeights `koanf:"pull_request" json:"pull_request" yaml:"pull_request"`
	Issue       IssueWeights       `koanf:"issue" json:"issue" yaml:"issue"`
	Review      ReviewWeights      `koanf:"review" json:"review" yaml:"review"`
	Comment     CommentWeights     `koanf:"comment" json:"comment" yaml:"comment"`
	Reaction    ReactionWeights    `koanf:"reaction" json:"reaction" yaml:"reaction"`
}

// DefaultWeights returns the stock weight tables.
func DefaultWeights() Weights {
	return Weights{
		PullRequest: PullRequestWeights{
			Base:                  4,
			Merged:                16,
			PerReview:             2,
			PerApproval:           1,
			PerComment:            0.5,
			DescriptionMultiplier: 0.004,
			ComplexityMultiplier:  0.5,
			OptimalSizeBonus:      5,
			ClosingIssueBonus:     3,
			MaxPerDay:             100,
			OptimalSizeMin:        50,
			OptimalSizeMax:        500,
			DiminishingReturns:    0.8,
		},
		Issue: IssueWeights{
			Base:                      2,
			PerComment:                0.5,
			ClosedBonus:               4,
			ResolutionSpeedMultiplier: 0.5,
			WithLabelsMultiplier: map[string]float64{
				"bug":           1.8,
				"enhancement":   1.4,
				"documentation": 1.2,
			},
			DiminishingReturns: 0.8,
		},
		Review: ReviewWeights{
			Base:                       3,
			Approved:                   2,
			ChangesRequested:           3,
			Commented:                  1,
			DetailedFeedbackMultiplier: 0.003,
			ThoroughnessMultiplier:     0.5,
			MaxPerDay:                  50,
		},
		Comment: CommentWeights{
			Base:                  0.5,
			SubstantiveMultiplier: 0.002,
			MaxPerDay:             20,
			DiminishingReturns:    0.7,
			MaxPerThread:          5,
		},
		Reaction: ReactionWeights{
			Base:      0.1,
			Received:  0.2,
			MaxPerDay: 5,
			Types: map[string]float64{
				"+1":     1,
				"heart":  1.5,
				"hooray": 1.5,
				"rocket": 1.5,
				"laugh":  0.5,
				"-1":     0,
			},
			DiminishingReturns: 0.9,
		},
	}
}

// Validate checks the tables once at startup.
func (w Weights) Validate() error {
	var errs []error

	nonNegative := func(name string, v float64) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative: %v", name, v))
		}
	}
	capped := func(name string, v float64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be set for a capped category", name))
		}
	}
	factor := func(name string, v float64) {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 1]: %v", name, v))
		}
	}

	pr := w.PullRequest
	for name, v := range map[string]float64{
		"pull_request.base":                   pr.Base,
		"pull_request.merged":                 pr.Merged,
		"pull_request.per_review":             pr.PerReview,
		"pull_request.per_approval":           pr.PerApproval,
		"pull_request.per_comment":            pr.PerComment,
		"pull_request.description_multiplier": pr.DescriptionMultiplier,
		"pull_request.complexity_multiplier":  pr.ComplexityMultiplier,
		"pull_request.optimal_size_bonus":     pr.OptimalSizeBonus,
		"pull_request.closing_issue_bonus":    pr.ClosingIssueBonus,
	} {
		nonNegative(name, v)
	}
	capped("pull_request.max_per_day", pr.MaxPerDay)
	factor("pull_request.diminishing_returns", pr.DiminishingReturns)
	if pr.OptimalSizeMin < 0 || pr.OptimalSizeMax < pr.OptimalSizeMin {
		errs = append(errs, fmt.Errorf("pull_request optimal size band is invalid: [%d, %d]",
			pr.OptimalSizeMin, pr.OptimalSizeMax))
	}

	is := w.Issue
	nonNegative("issue.base", is.Base)
	nonNegative("issue.per_comment", is.PerComment)
	nonNegative("issue.closed_bonus", is.ClosedBonus)
	nonNegative("issue.resolution_speed_multiplier", is.ResolutionSpeedMultiplier)
	factor("issue.diminishing_returns", is.DiminishingReturns)
	for label, m := range is.WithLabelsMultiplier {
		nonNegative("issue.with_labels_multiplier."+label, m)
	}

	rv := w.Review
	nonNegative("review.base", rv.Base)
	nonNegative("review.approved", rv.Approved)
	nonNegative("review.changes_requested", rv.ChangesRequested)
	nonNegative("review.commented", rv.Commented)
	nonNegative("review.detailed_feedback_multiplier", rv.DetailedFeedbackMultiplier)
	nonNegative("review.thoroughness_multiplier", rv.ThoroughnessMultiplier)
	capped("review.max_per_day", rv.MaxPerDay)

	cm := w.Comment
	nonNegative("comment.base", cm.Base)
	nonNegative("comment.substantive_multiplier", cm.SubstantiveMultiplier)
	nonNegative("comment.max_per_day", cm.MaxPerDay)
	factor("comment.diminishing_returns", cm.DiminishingReturns)
	if cm.MaxPerThread < 1 {
		errs = append(errs, fmt.Errorf("comment.max_per_thread must be at least 1: %d", cm.MaxPerThread))
	}

	re := w.Reaction
	nonNegative("reaction.base", re.Base)
	nonNegative("reaction.received", re.Received)
	capped("reaction.max_per_day", re.MaxPerDay)
	factor("reaction.diminishing_returns", re.DiminishingReturns)
	for t, m := range re.Types {
		nonNegative("reaction.types."+t, m)
	}

	return errors.Join(errs...)
}

// Scale returns a copy with every point-valued weight and cap multiplied by k.
// Dimensionless shape parameters (decay factors, label and type multipliers,
// size band, per-thread count) are left unchanged, so totals scale by k.
func (w Weights) Scale(k float64) Weights {
	c := w.Clone()

	c.PullRequest.Base *= k
	c.PullRequest.Merged *= k
	c.PullRequest.PerReview *= k
	c.PullRequest.PerApproval *= k
	c.PullRequest.PerComment *= k
	c.PullRequest.DescriptionMultiplier *= k
	c.PullRequest.ComplexityMultiplier *= k
	c.PullRequest.OptimalSizeBonus *= k
	c.PullRequest.ClosingIssueBonus *= k
	c.PullRequest.MaxPerDay *= k

	c.Issue.Base *= k
	c.Issue.PerComment *= k
	c.Issue.ClosedBonus *= k

	c.Review.Base *= k
	c.Review.Approved *= k
	c.Review.ChangesRequested *= k
	c.Review.Commented *= k
	c.Review.DetailedFeedbackMultiplier *= k
	c.Review.ThoroughnessMultiplier *= k
	c.Review.MaxPerDay *= k

	c.Comment.Base *= k
	c.Comment.SubstantiveMultiplier *= k
	c.Comment.MaxPerDay *= k

	c.Reaction.Base *= k
	c.Reaction.Received *= k
	c.Reaction.MaxPerDay *= k

	return c
}

// Clone returns a deep copy.
func (w Weights) Clone() Weights {
	c := w
	c.Issue.WithLabelsMultiplier = maps.Clone(w.Issue.WithLabelsMultiplier)
	c.Reaction.Types = maps.Clone(w.Reaction.Types)
	return c
}
