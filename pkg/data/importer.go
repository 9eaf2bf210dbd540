package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v83/github"
	"github.com/mchmarny/devrank/pkg/config"
	"github.com/mchmarny/devrank/pkg/pipeline"
	"github.com/mchmarny/devrank/pkg/score"
)

const (
	// EventAgeMonthsDefault bounds how far back the first import reaches.
	EventAgeMonthsDefault = 6

	pageSizeDefault = 100

	importKindPullRequest  = "pull_request"
	importKindIssue        = "issue"
	importKindIssueComment = "issue_comment"
	importKindPRComment    = "pr_comment"
	importKindCommit       = "commit"
)

var (
	linkedIssueRegEx = regexp.MustCompile(`(?i)\b(?:close[sd]?|fix(?:e[sd])?|resolve[sd]?)\s*:?\s+#(\d+)`)

	reviewStates = map[string]string{
		"APPROVED":          score.ReviewApproved,
		"CHANGES_REQUESTED": score.ReviewChangesRequested,
		"COMMENTED":         score.ReviewCommented,
	}
)

// ImportResult counts the events ingested for one repository.
type ImportResult struct {
	Repository string         `json:"repository" yaml:"repository"`
	Counts     map[string]int `json:"counts" yaml:"counts"`
	Fetched    int            `json:"fetched" yaml:"fetched"`
	Saved      int            `json:"saved" yaml:"saved"`
	Duration   string         `json:"duration" yaml:"duration"`
}

// Importer converts GitHub activity into contribution events. Each kind of
// activity resumes from the time of its last successful import.
type Importer struct {
	client  *github.Client
	store   *Store
	limiter *RateLimitController
	months  int
	now     func() time.Time
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithRateLimiter feeds response rate headers into c.
func WithRateLimiter(c *RateLimitController) ImporterOption {
	return func(im *Importer) {
		im.limiter = c
	}
}

// WithMonths sets how far back the first import reaches.
func WithMonths(n int) ImporterOption {
	return func(im *Importer) {
		if n > 0 {
			im.months = n
		}
	}
}

// WithImportClock overrides the time source.
func WithImportClock(now func() time.Time) ImporterOption {
	return func(im *Importer) {
		im.now = now
	}
}

// NewImporter returns an importer writing to store.
func NewImporter(client *github.Client, store *Store, opts ...ImporterOption) (*Importer, error) {
	if client == nil {
		return nil, errors.New("github client required")
	}
	if store == nil {
		return nil, errDBNotInitialized
	}
	im := &Importer{
		client: client,
		store:  store,
		months: EventAgeMonthsDefault,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(im)
	}
	return im, nil
}

type repoRef struct {
	owner string
	name  string
	min   time.Time
}

func (r *repoRef) String() string {
	return r.owner + "/" + r.name
}

type kindResult struct {
	kind     string
	events   []*score.Event
	complete bool
}

// Import fetches new activity of repo ("owner/name") and stores it.
func (im *Importer) Import(ctx context.Context, rc *pipeline.Context, repo string) (*ImportResult, error) {
	owner, name, err := config.ParseRepo(repo)
	if err != nil {
		return nil, err
	}

	start := im.now()
	ref := &repoRef{owner: owner, name: name, min: start.AddDate(0, -im.months, 0)}

	kinds := map[string]func(context.Context, *pipeline.Context, *repoRef, time.Time) ([]*score.Event, bool, error){
		importKindPullRequest:  im.importPullRequests,
		importKindIssue:        im.importIssues,
		importKindIssueComment: im.importIssueComments,
		importKindPRComment:    im.importPRComments,
		importKindCommit:       im.importCommits,
	}

	steps := make([]pipeline.Step[*repoRef, *kindResult], 0, len(kinds))
	for _, kind := range []string{importKindPullRequest, importKindIssue, importKindIssueComment, importKindPRComment, importKindCommit} {
		fetch := kinds[kind]
		var step pipeline.Step[*repoRef, *kindResult] = func(ctx context.Context, rc *pipeline.Context, r *repoRef) (*kindResult, error) {
			since, err := im.store.GetImportSince(ctx, r.String(), kind, r.min)
			if err != nil {
				return nil, err
			}
			list, complete, err := fetch(ctx, rc, r, since)
			if err != nil {
				return nil, fmt.Errorf("importing %s of %s: %w", kind, r, err)
			}
			return &kindResult{kind: kind, events: list, complete: complete}, nil
		}
		steps = append(steps, pipeline.Named(kind, step))
	}

	results, err := pipeline.AllOf(steps...)(ctx, rc, ref)
	if im.limiter != nil {
		im.limiter.Apply()
	}
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Repository: ref.String(), Counts: make(map[string]int)}
	for _, r := range results {
		n, err := im.store.SaveEvents(ctx, r.events)
		if err != nil {
			return nil, fmt.Errorf("saving %s events of %s: %w", r.kind, ref, err)
		}
		for _, e := range r.events {
			res.Counts[string(e.Kind)]++
		}
		res.Fetched += len(r.events)
		res.Saved += n

		if !r.complete {
			slog.Warn("import incomplete, state not advanced", "repo", ref.String(), "kind", r.kind)
			continue
		}
		if err := im.store.SaveImportSince(ctx, ref.String(), r.kind, start); err != nil {
			return nil, err
		}
	}

	res.Duration = im.now().Sub(start).String()
	slog.Debug("import done", "repo", ref.String(), "fetched", res.Fetched, "saved", res.Saved)
	return res, nil
}

func (im *Importer) observe(resp *github.Response) {
	if im.limiter != nil {
		im.limiter.Observe(resp)
	}
	checkRateLimit(resp)
}

// collect walks pages until the last one or until more returns false for a page.
func collect[T any](ctx context.Context, im *Importer, lo *github.ListOptions,
	fetch func(context.Context) ([]T, *github.Response, error), more func([]T) bool) ([]T, error) {
	lo.PerPage = pageSizeDefault
	all := make([]T, 0)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, resp, err := fetch(ctx)
		im.observe(resp)
		if err != nil {
			return nil, fmt.Errorf("page %d, rate: %s: %w", lo.Page, rateInfo(resp), err)
		}
		all = append(all, items...)
		if len(items) == 0 || (more != nil && !more(items)) || resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		lo.Page = resp.NextPage
	}
}

func (im *Importer) importPullRequests(ctx context.Context, rc *pipeline.Context, r *repoRef, since time.Time) ([]*score.Event, bool, error) {
	opt := &github.PullRequestListOptions{
		State:     "all",
		Sort:      "updated",
		Direction: "desc",
	}
	prs, err := collect(ctx, im, &opt.ListOptions, func(ctx context.Context) ([]*github.PullRequest, *github.Response, error) {
		return im.client.PullRequests.List(ctx, r.owner, r.name, opt)
	}, func(page []*github.PullRequest) bool {
		// list has no since filter, stop once a page ends before it
		return !page[len(page)-1].GetUpdatedAt().Before(since)
	})
	if err != nil {
		return nil, false, err
	}

	numbers := make([]int, 0, len(prs))
	for _, pr := range prs {
		if !pr.GetUpdatedAt().Before(since) && pr.GetUser().GetLogin() != "" {
			numbers = append(numbers, pr.GetNumber())
		}
	}

	var detail pipeline.Step[int, []*score.Event] = func(ctx context.Context, _ *pipeline.Context, n int) ([]*score.Event, error) {
		return im.pullRequestEvents(ctx, r, n)
	}
	lists, err := pipeline.MapOver(detail,
		pipeline.WithAdaptiveConcurrency(),
		pipeline.WithLabel(r.String()+" pull requests"))(ctx, rc, numbers)
	if err != nil {
		return nil, false, err
	}

	events := make([]*score.Event, 0)
	for _, l := range lists {
		events = append(events, l...)
	}
	return r.window(events), len(lists) == len(numbers), nil
}

func (im *Importer) pullRequestEvents(ctx context.Context, r *repoRef, number int) ([]*score.Event, error) {
	pr, resp, err := im.client.PullRequests.Get(ctx, r.owner, r.name, number)
	im.observe(resp)
	if err != nil {
		return nil, fmt.Errorf("error getting pr %d: %w", number, err)
	}

	ro := &github.ListOptions{}
	reviews, err := collect(ctx, im, ro, func(ctx context.Context) ([]*github.PullRequestReview, *github.Response, error) {
		return im.client.PullRequests.ListReviews(ctx, r.owner, r.name, number, ro)
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("error listing reviews of pr %d: %w", number, err)
	}

	fo := &github.ListOptions{}
	files, err := collect(ctx, im, fo, func(ctx context.Context) ([]*github.CommitFile, *github.Response, error) {
		return im.client.PullRequests.ListFiles(ctx, r.owner, r.name, number, fo)
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("error listing files of pr %d: %w", number, err)
	}

	return mapPullRequest(r.String(), pr, reviews, files), nil
}

func mapPullRequest(repo string, pr *github.PullRequest, reviews []*github.PullRequestReview, files []*github.CommitFile) []*score.Event {
	author := pr.GetUser().GetLogin()
	labels := labelNames(pr.Labels)

	paths := make([]string, 0, len(files))
	for _, f := range files {
		if f.GetFilename() != "" {
			paths = append(paths, f.GetFilename())
		}
	}

	approvals := 0
	for _, rv := range reviews {
		if rv.GetState() == "APPROVED" {
			approvals++
		}
	}

	list := make([]*score.Event, 0, 2+len(reviews))
	list = append(list, &score.Event{
		ID:            fmt.Sprintf("%s:%s#%d", score.KindPROpen, repo, pr.GetNumber()),
		Kind:          score.KindPROpen,
		Actor:         author,
		Repository:    repo,
		Number:        pr.GetNumber(),
		Timestamp:     pr.GetCreatedAt().Time,
		Additions:     pr.GetAdditions(),
		Deletions:     pr.GetDeletions(),
		ChangedFiles:  pr.GetChangedFiles(),
		BodyLength:    len(pr.GetBody()),
		Labels:        labels,
		Paths:         paths,
		ReviewCount:   len(reviews),
		ApprovalCount: approvals,
		CommentCount:  pr.GetComments() + pr.GetReviewComments(),
		LinkedIssues:  countLinkedIssues(pr.GetBody()),
	})

	if pr.GetMerged() || !pr.GetMergedAt().IsZero() {
		list = append(list, &score.Event{
			ID:         fmt.Sprintf("%s:%s#%d", score.KindPRMerge, repo, pr.GetNumber()),
			Kind:       score.KindPRMerge,
			Actor:      author,
			Repository: repo,
			Number:     pr.GetNumber(),
			Timestamp:  pr.GetMergedAt().Time,
			Labels:     labels,
			Paths:      paths,
		})
	}

	for _, rv := range reviews {
		state, ok := reviewStates[rv.GetState()]
		reviewer := rv.GetUser().GetLogin()
		if !ok || reviewer == "" || reviewer == author {
			continue
		}
		list = append(list, &score.Event{
			ID:           fmt.Sprintf("%s:%d", score.KindPRReview, rv.GetID()),
			Kind:         score.KindPRReview,
			Actor:        reviewer,
			Repository:   repo,
			Number:       pr.GetNumber(),
			Timestamp:    rv.GetSubmittedAt().Time,
			BodyLength:   len(rv.GetBody()),
			ChangedFiles: pr.GetChangedFiles(),
			ReviewState:  state,
			Paths:        paths,
		})
	}

	return list
}

func (im *Importer) importIssues(ctx context.Context, _ *pipeline.Context, r *repoRef, since time.Time) ([]*score.Event, bool, error) {
	opt := &github.IssueListByRepoOptions{
		State:     "all",
		Sort:      "updated",
		Direction: "asc",
		Since:     since,
	}
	issues, err := collect(ctx, im, &opt.ListOptions, func(ctx context.Context) ([]*github.Issue, *github.Response, error) {
		return im.client.Issues.ListByRepo(ctx, r.owner, r.name, opt)
	}, nil)
	if err != nil {
		return nil, false, err
	}

	events := make([]*score.Event, 0)
	for _, is := range issues {
		if is.IsPullRequest() || is.GetUser().GetLogin() == "" {
			continue
		}
		if is.GetState() == "closed" && is.GetClosedBy().GetLogin() == "" {
			full, resp, err := im.client.Issues.Get(ctx, r.owner, r.name, is.GetNumber())
			im.observe(resp)
			if err != nil {
				return nil, false, fmt.Errorf("error getting issue %d: %w", is.GetNumber(), err)
			}
			is = full
		}
		events = append(events, mapIssue(r.String(), is)...)
	}

	return r.window(events), true, nil
}

func mapIssue(repo string, is *github.Issue) []*score.Event {
	labels := labelNames(is.Labels)
	opened := is.GetCreatedAt().Time

	list := []*score.Event{{
		ID:           fmt.Sprintf("%s:%s#%d", score.KindIssueOpen, repo, is.GetNumber()),
		Kind:         score.KindIssueOpen,
		Actor:        is.GetUser().GetLogin(),
		Repository:   repo,
		Number:       is.GetNumber(),
		Timestamp:    opened,
		BodyLength:   len(is.GetBody()),
		Labels:       labels,
		CommentCount: is.GetComments(),
	}}

	if closer := is.GetClosedBy().GetLogin(); is.GetState() == "closed" && closer != "" && !is.GetClosedAt().IsZero() {
		list = append(list, &score.Event{
			ID:         fmt.Sprintf("%s:%s#%d", score.KindIssueClose, repo, is.GetNumber()),
			Kind:       score.KindIssueClose,
			Actor:      closer,
			Repository: repo,
			Number:     is.GetNumber(),
			Timestamp:  is.GetClosedAt().Time,
			Labels:     labels,
			OpenedAt:   opened,
		})
	}

	return list
}

func (im *Importer) importIssueComments(ctx context.Context, _ *pipeline.Context, r *repoRef, since time.Time) ([]*score.Event, bool, error) {
	opt := &github.IssueListCommentsOptions{
		Sort:      github.Ptr("updated"),
		Direction: github.Ptr("asc"),
		Since:     &since,
	}
	comments, err := collect(ctx, im, &opt.ListOptions, func(ctx context.Context) ([]*github.IssueComment, *github.Response, error) {
		return im.client.Issues.ListComments(ctx, r.owner, r.name, 0, opt)
	}, nil)
	if err != nil {
		return nil, false, err
	}

	repo := r.String()
	events := make([]*score.Event, 0, len(comments))
	for _, c := range comments {
		author := c.GetUser().GetLogin()
		if author == "" {
			continue
		}
		number := numberFromURL(c.GetIssueURL())
		events = append(events, &score.Event{
			ID:         fmt.Sprintf("%s:%d", score.KindIssueComment, c.GetID()),
			Kind:       score.KindIssueComment,
			Actor:      author,
			Repository: repo,
			Number:     number,
			Timestamp:  c.GetCreatedAt().Time,
			BodyLength: len(c.GetBody()),
		})
		events = append(events, mapReactions(repo, number, author, c.GetID(), c.GetCreatedAt().Time, c.Reactions)...)
	}

	return r.window(events), true, nil
}

func (im *Importer) importPRComments(ctx context.Context, _ *pipeline.Context, r *repoRef, since time.Time) ([]*score.Event, bool, error) {
	opt := &github.PullRequestListCommentsOptions{
		Sort:      "updated",
		Direction: "asc",
		Since:     since,
	}
	comments, err := collect(ctx, im, &opt.ListOptions, func(ctx context.Context) ([]*github.PullRequestComment, *github.Response, error) {
		return im.client.PullRequests.ListComments(ctx, r.owner, r.name, 0, opt)
	}, nil)
	if err != nil {
		return nil, false, err
	}

	repo := r.String()
	events := make([]*score.Event, 0, len(comments))
	for _, c := range comments {
		author := c.GetUser().GetLogin()
		if author == "" {
			continue
		}
		number := numberFromURL(c.GetPullRequestURL())
		root := c.GetInReplyTo()
		if root == 0 {
			root = c.GetID()
		}
		var paths []string
		if c.GetPath() != "" {
			paths = []string{c.GetPath()}
		}
		events = append(events, &score.Event{
			ID:         fmt.Sprintf("%s:%d", score.KindPRComment, c.GetID()),
			Kind:       score.KindPRComment,
			Actor:      author,
			Repository: repo,
			Number:     number,
			Timestamp:  c.GetCreatedAt().Time,
			BodyLength: len(c.GetBody()),
			Paths:      paths,
			Thread:     fmt.Sprintf("%s#%d/%d", repo, number, root),
		})
		events = append(events, mapReactions(repo, number, author, c.GetID(), c.GetCreatedAt().Time, c.Reactions)...)
	}

	return r.window(events), true, nil
}

func (im *Importer) importCommits(ctx context.Context, _ *pipeline.Context, r *repoRef, since time.Time) ([]*score.Event, bool, error) {
	opt := &github.CommitsListOptions{Since: since}
	commits, err := collect(ctx, im, &opt.ListOptions, func(ctx context.Context) ([]*github.RepositoryCommit, *github.Response, error) {
		return im.client.Repositories.ListCommits(ctx, r.owner, r.name, opt)
	}, nil)
	if err != nil {
		return nil, false, err
	}

	repo := r.String()
	events := make([]*score.Event, 0, len(commits))
	for _, c := range commits {
		// commits not linked to a GitHub account have no author
		author := c.GetAuthor().GetLogin()
		if author == "" {
			continue
		}
		events = append(events, &score.Event{
			ID:         fmt.Sprintf("%s:%s", score.KindCommit, c.GetSHA()),
			Kind:       score.KindCommit,
			Actor:      author,
			Repository: repo,
			Timestamp:  c.GetCommit().GetAuthor().GetDate().Time,
			Additions:  c.GetStats().GetAdditions(),
			Deletions:  c.GetStats().GetDeletions(),
		})
	}

	return r.window(events), true, nil
}

// mapReactions turns the reaction summary of a comment into received
// reaction events of its author.
func mapReactions(repo string, number int, author string, commentID int64, at time.Time, r *github.Reactions) []*score.Event {
	if r == nil || r.GetTotalCount() == 0 {
		return nil
	}
	counts := []struct {
		kind string
		n    int
	}{
		{"+1", r.GetPlusOne()},
		{"-1", r.GetMinusOne()},
		{"laugh", r.GetLaugh()},
		{"confused", r.GetConfused()},
		{"heart", r.GetHeart()},
		{"hooray", r.GetHooray()},
		{"rocket", r.GetRocket()},
		{"eyes", r.GetEyes()},
	}
	list := make([]*score.Event, 0, r.GetTotalCount())
	for _, c := range counts {
		for i := range c.n {
			list = append(list, &score.Event{
				ID:         fmt.Sprintf("%s:%d:%s:%d", score.KindReaction, commentID, c.kind, i),
				Kind:       score.KindReaction,
				Actor:      author,
				Repository: repo,
				Number:     number,
				Timestamp:  at,
				Reaction:   c.kind,
				Received:   true,
			})
		}
	}
	return list
}

// window drops events older than the import horizon or without a time.
func (r *repoRef) window(list []*score.Event) []*score.Event {
	out := list[:0]
	for _, e := range list {
		if e.Timestamp.IsZero() || e.Timestamp.Before(r.min) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func labelNames(labels []*github.Label) []string {
	list := make([]string, 0, len(labels))
	for _, l := range labels {
		if n := strings.ToLower(strings.TrimSpace(l.GetName())); n != "" {
			list = append(list, n)
		}
	}
	return list
}

func countLinkedIssues(body string) int {
	seen := make(map[string]bool)
	for _, m := range linkedIssueRegEx.FindAllStringSubmatch(body, -1) {
		seen[m[1]] = true
	}
	return len(seen)
}

func numberFromURL(u string) int {
	n, err := strconv.Atoi(path.Base(u))
	if err != nil {
		return 0
	}
	return n
}

func rateInfo(resp *github.Response) string {
	if resp == nil {
		return ""
	}
	return fmt.Sprintf("%d/%d until %s", resp.Rate.Remaining, resp.Rate.Limit, resp.Rate.Reset.Format("15:04"))
}
