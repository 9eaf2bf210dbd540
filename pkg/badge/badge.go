// Package badge awards tiered achievements from cumulative metrics.
// Tiers only move up.
package badge

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tier is an ordered achievement rank.
type Tier int

const (
	None Tier = iota
	Beginner
	Intermediate
	Advanced
	Elite
	Legend
)

var tierNames = []string{"none", "beginner", "intermediate", "advanced", "elite", "legend"}

func (t Tier) String() string {
	if t < None || int(t) >= len(tierNames) {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier converts a tier name.
func ParseTier(s string) (Tier, error) {
	for i, n := range tierNames {
		if strings.EqualFold(n, s) {
			return Tier(i), nil
		}
	}
	return None, fmt.Errorf("unknown badge tier: %q", s)
}

// Metric names available to badge definitions.
const (
	MetricPullRequestsMerged = "pull_requests_merged"
	MetricPullRequestsOpened = "pull_requests_opened"
	MetricReviews            = "reviews"
	MetricIssuesClosed       = "issues_closed"
	MetricIssuesOpened       = "issues_opened"
	MetricComments           = "comments"
	MetricCommits            = "commits"
	MetricActiveDays         = "active_days"
	MetricTotalScore         = "total_score"
)

var knownMetrics = map[string]bool{
	MetricPullRequestsMerged: true,
	MetricPullRequestsOpened: true,
	MetricReviews:            true,
	MetricIssuesClosed:       true,
	MetricIssuesOpened:       true,
	MetricComments:           true,
	MetricCommits:            true,
	MetricActiveDays:         true,
	MetricTotalScore:         true,
}

// Badge is a persisted achievement.
type Badge struct {
	Contributor string    `json:"contributor" yaml:"contributor"`
	Type        string    `json:"type" yaml:"type"`
	Tier        Tier      `json:"tier" yaml:"tier"`
	EarnedAt    time.Time `json:"earned_at" yaml:"earnedAt"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updatedAt"`
}

// Definition describes one badge type. Thresholds[i] is the metric value
// required for tier i+1.
type Definition struct {
	Type       string    `koanf:"type" json:"type" yaml:"type"`
	Metric     string    `koanf:"metric" json:"metric" yaml:"metric"`
	Thresholds []float64 `koanf:"thresholds" json:"thresholds" yaml:"thresholds"`
}

// Validate checks the definition.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Type) == "" {
		return errors.New("badge type is required")
	}
	if !knownMetrics[d.Metric] {
		return fmt.Errorf("badge %q: unknown metric %q", d.Type, d.Metric)
	}
	if len(d.Thresholds) == 0 || len(d.Thresholds) > int(Legend) {
		return fmt.Errorf("badge %q: expected 1 to %d thresholds, got %d", d.Type, int(Legend), len(d.Thresholds))
	}
	for i, v := range d.Thresholds {
		if v <= 0 {
			return fmt.Errorf("badge %q: threshold %d must be positive", d.Type, i+1)
		}
		if i > 0 && v <= d.Thresholds[i-1] {
			return fmt.Errorf("badge %q: thresholds must be strictly increasing", d.Type)
		}
	}
	return nil
}

// TierFor returns the highest tier whose threshold value meets.
func (d Definition) TierFor(value float64) Tier {
	t := None
	for i, th := range d.Thresholds {
		if value >= th {
			t = Tier(i + 1)
		}
	}
	return t
}

// DefaultDefinitions returns the stock badge set.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Type: "merger", Metric: MetricPullRequestsMerged, Thresholds: []float64{1, 10, 50, 200, 1000}},
		{Type: "reviewer", Metric: MetricReviews, Thresholds: []float64{1, 25, 100, 500, 2000}},
		{Type: "bug_hunter", Metric: MetricIssuesClosed, Thresholds: []float64{1, 10, 50, 200, 500}},
		{Type: "conversationalist", Metric: MetricComments, Thresholds: []float64{10, 100, 500, 2000, 10000}},
		{Type: "streak", Metric: MetricActiveDays, Thresholds: []float64{7, 30, 100, 365, 1000}},
		{Type: "high_scorer", Metric: MetricTotalScore, Thresholds: []float64{100, 1000, 10000, 50000, 250000}},
	}
}
