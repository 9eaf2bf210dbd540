package score

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/mchmarny/devrank/pkg/interval"
)

// ScoreContributorDay computes the DailyScore for one contributor on one date
// from that contributor's events. It is a pure function of its inputs: events
// are ordered internally so the result does not depend on the caller's order.
func ScoreContributorDay(contributor string, date time.Time, events []*Event, w Weights) *DailyScore {
	ds := &DailyScore{
		Contributor: contributor,
		Date:        interval.Truncate(date),
	}

	sorted := sortEvents(events)

	var (
		prs       []*Event
		merges    []*Event
		opened    []*Event
		closed    []*Event
		reviews   []*Event
		comments  []*Event
		reactions []*Event
	)

	for _, e := range sorted {
		switch e.Kind {
		case KindCommit:
			ds.Activity.Commits++
			ds.Activity.LinesChanged += e.LinesChanged()
		case KindPROpen:
			prs = append(prs, e)
			ds.Activity.PullRequestsOpened++
			ds.Activity.LinesChanged += e.LinesChanged()
		case KindPRMerge:
			merges = append(merges, e)
			ds.Activity.PullRequestsMerged++
		case KindIssueOpen:
			opened = append(opened, e)
			ds.Activity.IssuesOpened++
		case KindIssueClose:
			closed = append(closed, e)
			ds.Activity.IssuesClosed++
		case KindPRReview:
			reviews = append(reviews, e)
			ds.Activity.Reviews++
		case KindPRComment, KindIssueComment:
			comments = append(comments, e)
			ds.Activity.Comments++
		case KindReaction:
			reactions = append(reactions, e)
			ds.Activity.Reactions++
		}
	}

	ds.Scores.PullRequest = scorePullRequests(prs, merges, w.PullRequest)
	ds.Scores.Issue = scoreIssues(opened, closed, w.Issue)
	ds.Scores.Review = scoreReviews(reviews, w.Review)
	ds.Scores.Comment = scoreComments(comments, w.Comment)
	ds.Scores.Reaction = scoreReactions(reactions, w.Reaction)
	ds.Total = ds.Scores.Sum()

	return ds
}

func sortEvents(events []*Event) []*Event {
	list := make([]*Event, 0, len(events))
	for _, e := range events {
		if e != nil {
			list = append(list, e)
		}
	}
	slices.SortStableFunc(list, func(a, b *Event) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return list
}

// diminishing sums n contributions of w where the i-th (0-based) is worth w*d^i.
func diminishing(w float64, n int, d float64) float64 {
	var sum float64
	f := 1.0
	for range n {
		sum += w * f
		f *= d
	}
	return sum
}

func capAt(v, limit float64) float64 {
	if limit > 0 && v > limit {
		return limit
	}
	return v
}

func scorePullRequests(opened, merged []*Event, w PullRequestWeights) float64 {
	var total float64
	for _, e := range opened {
		lines := e.LinesChanged()
		pts := w.Base +
			w.PerReview*float64(e.ReviewCount) +
			w.PerApproval*float64(e.ApprovalCount) +
			diminishing(w.PerComment, e.CommentCount, w.DiminishingReturns) +
			w.DescriptionMultiplier*float64(e.BodyLength) +
			w.ComplexityMultiplier*math.Log1p(float64(lines)) +
			w.ClosingIssueBonus*float64(e.LinkedIssues)
		if lines >= w.OptimalSizeMin && lines <= w.OptimalSizeMax {
			pts += w.OptimalSizeBonus
		}
		total += pts
	}
	total += w.Merged * float64(len(merged))
	return capAt(total, w.MaxPerDay)
}

// labelMultiplier picks the highest configured multiplier among the labels,
// or 1 when none of them is configured.
func labelMultiplier(labels []string, table map[string]float64) float64 {
	best, found := 0.0, false
	for _, l := range labels {
		if m, ok := table[l]; ok && (!found || m > best) {
			best, found = m, true
		}
	}
	if !found {
		return 1
	}
	return best
}

// resolutionSpeed is 1+mult for an instant close and decays toward 1.
func resolutionSpeed(e *Event, mult float64) float64 {
	if e.OpenedAt.IsZero() {
		return 1
	}
	hours := max(e.Timestamp.Sub(e.OpenedAt).Hours(), 0)
	return 1 + mult/(1+hours/24)
}

func scoreIssues(opened, closed []*Event, w IssueWeights) float64 {
	var total float64
	for _, e := range opened {
		pts := w.Base + diminishing(w.PerComment, e.CommentCount, w.DiminishingReturns)
		total += pts * labelMultiplier(e.Labels, w.WithLabelsMultiplier)
	}
	for _, e := range closed {
		total += w.ClosedBonus *
			resolutionSpeed(e, w.ResolutionSpeedMultiplier) *
			labelMultiplier(e.Labels, w.WithLabelsMultiplier)
	}
	return total
}

func reviewStateBonus(state string, w ReviewWeights) float64 {
	switch state {
	case ReviewApproved:
		return w.Approved
	case ReviewChangesRequested:
		return w.ChangesRequested
	case ReviewCommented:
		return w.Commented
	default:
		return 0
	}
}

func scoreReviews(reviews []*Event, w ReviewWeights) float64 {
	var total float64
	for _, e := range reviews {
		total += w.Base +
			reviewStateBonus(e.ReviewState, w) +
			w.DetailedFeedbackMultiplier*float64(e.BodyLength) +
			w.ThoroughnessMultiplier*math.Log1p(float64(e.ChangedFiles))
	}
	return capAt(total, w.MaxPerDay)
}

func scoreComments(comments []*Event, w CommentWeights) float64 {
	threads := make(map[string][]*Event)
	for _, e := range comments {
		key := e.Thread
		if key == "" {
			key = e.ItemKey()
		}
		threads[key] = append(threads[key], e)
	}

	keys := make([]string, 0, len(threads))
	for k := range threads {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var total float64
	for _, k := range keys {
		f := 1.0
		for i, e := range threads[k] {
			if i >= w.MaxPerThread {
				break
			}
			total += (w.Base + w.SubstantiveMultiplier*float64(e.BodyLength)) * f
			f *= w.DiminishingReturns
		}
	}
	return capAt(total, w.MaxPerDay)
}

func scoreReactions(reactions []*Event, w ReactionWeights) float64 {
	var total float64
	f := 1.0
	for _, e := range reactions {
		base := w.Base
		if e.Received {
			base = w.Received
		}
		typeMult := 1.0
		if m, ok := w.Types[e.Reaction]; ok {
			typeMult = m
		}
		total += base * typeMult * f
		f *= w.DiminishingReturns
	}
	return capAt(total, w.MaxPerDay)
}
