package score

import (
	"maps"
	"time"

	"github.com/mchmarny/devrank/pkg/interval"
)

// Category names, also used as role tags.
const (
	CategoryPullRequest = "pull_request"
	CategoryIssue       = "issue"
	CategoryReview      = "review"
	CategoryComment     = "comment"
	CategoryReaction    = "reaction"
)

// Categories holds per-category points.
type Categories struct {
	PullRequest float64 `json:"pull_request" yaml:"pullRequest"`
	Issue       float64 `json:"issue" yaml:"issue"`
	Review      float64 `json:"review" yaml:"review"`
	Comment     float64 `json:"comment" yaml:"comment"`
	Reaction    float64 `json:"reaction" yaml:"reaction"`
}

// Sum is the total across categories.
func (c Categories) Sum() float64 {
	return c.PullRequest + c.Issue + c.Review + c.Comment + c.Reaction
}

// Add returns the element-wise sum.
func (c Categories) Add(o Categories) Categories {
	return Categories{
		PullRequest: c.PullRequest + o.PullRequest,
		Issue:       c.Issue + o.Issue,
		Review:      c.Review + o.Review,
		Comment:     c.Comment + o.Comment,
		Reaction:    c.Reaction + o.Reaction,
	}
}

// ByName maps category names to points.
func (c Categories) ByName() map[string]float64 {
	return map[string]float64{
		CategoryPullRequest: c.PullRequest,
		CategoryIssue:       c.Issue,
		CategoryReview:      c.Review,
		CategoryComment:     c.Comment,
		CategoryReaction:    c.Reaction,
	}
}

// Activity counts raw actions.
type Activity struct {
	Commits            int `json:"commits" yaml:"commits"`
	PullRequestsOpened int `json:"pull_requests_opened" yaml:"pullRequestsOpened"`
	PullRequestsMerged int `json:"pull_requests_merged" yaml:"pullRequestsMerged"`
	IssuesOpened       int `json:"issues_opened" yaml:"issuesOpened"`
	IssuesClosed       int `json:"issues_closed" yaml:"issuesClosed"`
	Reviews            int `json:"reviews" yaml:"reviews"`
	Comments           int `json:"comments" yaml:"comments"`
	Reactions          int `json:"reactions" yaml:"reactions"`
	LinesChanged       int `json:"lines_changed" yaml:"linesChanged"`
}

// Add returns the element-wise sum.
func (a Activity) Add(o Activity) Activity {
	return Activity{
		Commits:            a.Commits + o.Commits,
		PullRequestsOpened: a.PullRequestsOpened + o.PullRequestsOpened,
		PullRequestsMerged: a.PullRequestsMerged + o.PullRequestsMerged,
		IssuesOpened:       a.IssuesOpened + o.IssuesOpened,
		IssuesClosed:       a.IssuesClosed + o.IssuesClosed,
		Reviews:            a.Reviews + o.Reviews,
		Comments:           a.Comments + o.Comments,
		Reactions:          a.Reactions + o.Reactions,
		LinesChanged:       a.LinesChanged + o.LinesChanged,
	}
}

// DailyScore is one contributor's score for one UTC date.
type DailyScore struct {
	Contributor string             `json:"contributor" yaml:"contributor"`
	Date        time.Time          `json:"date" yaml:"date"`
	Scores      Categories         `json:"scores" yaml:"scores"`
	Total       float64            `json:"total" yaml:"total"`
	Activity    Activity           `json:"activity" yaml:"activity"`
	Tags        map[string]float64 `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// PeriodScore is the sum of the DailyScores inside an interval.
type PeriodScore struct {
	Contributor string             `json:"contributor" yaml:"contributor"`
	Interval    interval.Interval  `json:"interval" yaml:"interval"`
	Scores      Categories         `json:"scores" yaml:"scores"`
	Total       float64            `json:"total" yaml:"total"`
	Activity    Activity           `json:"activity" yaml:"activity"`
	ActiveDays  int                `json:"active_days" yaml:"activeDays"`
	Tags        map[string]float64 `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Aggregate sums the daily scores of contributor whose date falls in iv.
// Days outside the interval or belonging to other contributors are ignored.
func Aggregate(contributor string, iv interval.Interval, daily []*DailyScore) *PeriodScore {
	ps := &PeriodScore{
		Contributor: contributor,
		Interval:    iv,
		Tags:        make(map[string]float64),
	}

	seen := make(map[time.Time]bool)
	for _, d := range daily {
		if d == nil || d.Contributor != contributor || !iv.Contains(d.Date) {
			continue
		}
		day := interval.Truncate(d.Date)
		if seen[day] {
			continue
		}
		seen[day] = true

		ps.Scores = ps.Scores.Add(d.Scores)
		ps.Total += d.Total
		ps.Activity = ps.Activity.Add(d.Activity)
		for tag, pts := range d.Tags {
			ps.Tags[tag] += pts
		}
		if d.Total > 0 || d.Activity.Commits > 0 {
			ps.ActiveDays++
		}
	}

	return ps
}

// Clone returns a copy safe to mutate.
func (d *DailyScore) Clone() *DailyScore {
	c := *d
	c.Tags = maps.Clone(d.Tags)
	return &c
}

// LifetimeScore is everything a contributor earned up to and including AsOf.
type LifetimeScore struct {
	Contributor string     `json:"contributor" yaml:"contributor"`
	AsOf        time.Time  `json:"as_of" yaml:"asOf"`
	Scores      Categories `json:"scores" yaml:"scores"`
	Total       float64    `json:"total" yaml:"total"`
	Activity    Activity   `json:"activity" yaml:"activity"`
	ActiveDays  int        `json:"active_days" yaml:"activeDays"`
	Reputation  float64    `json:"reputation" yaml:"reputation"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updatedAt"`
}

// NewLifetimeScore converts a lifetime aggregate into a LifetimeScore.
func NewLifetimeScore(ps *PeriodScore) *LifetimeScore {
	return &LifetimeScore{
		Contributor: ps.Contributor,
		AsOf:        ps.Interval.LastDay(),
		Scores:      ps.Scores,
		Total:       ps.Total,
		Activity:    ps.Activity,
		ActiveDays:  ps.ActiveDays,
	}
}
