package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v83/github"
	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/mchmarny/reputer/pkg/score"
)

const (
	selectUserEventCountSQL = `SELECT COUNT(*) FROM event
		WHERE actor = ? AND date >= ? AND date <= ?
	`

	selectTotalEventCountSQL = `SELECT COUNT(*) FROM event
		WHERE date >= ? AND date <= ?
	`

	selectTotalContributorCountSQL = `SELECT COUNT(DISTINCT actor) FROM event
		WHERE date >= ? AND date <= ? AND actor NOT LIKE ?
	`

	selectLastEventDateSQL = `SELECT MAX(date) FROM event
		WHERE actor = ? AND date <= ?
	`

	selectDistinctRepositoriesSQL = `SELECT DISTINCT repository FROM event`
)

// globalStats holds store-wide statistics of one window.
type globalStats struct {
	totalCommits      int64
	totalContributors int
}

// Reputation scores contributors with reputer from locally stored activity.
// With a GitHub client it adds account signals (age, followers, 2FA, org
// membership).
type Reputation struct {
	store  *Store
	client *github.Client
	months int

	mu    sync.Mutex
	stats map[string]*globalStats
	orgs  []string
}

// NewReputation returns a reputation source over store. client may be nil.
func NewReputation(store *Store, client *github.Client) *Reputation {
	return &Reputation{
		store:  store,
		client: client,
		months: EventAgeMonthsDefault,
		stats:  make(map[string]*globalStats),
	}
}

// Reputation returns the contributor's reputation in [0, 1] as of asOf.
func (r *Reputation) Reputation(ctx context.Context, contributor string, asOf time.Time) (float64, error) {
	if r == nil || r.store == nil || r.store.db == nil {
		return 0, errDBNotInitialized
	}

	to := dateKey(asOf)
	since := dateKey(asOf.AddDate(0, -r.months, 0))

	stats, err := r.globalStats(ctx, since, to)
	if err != nil {
		return 0, err
	}

	signals, err := r.store.gatherLocalSignals(ctx, contributor, since, to, asOf, stats)
	if err != nil {
		return 0, err
	}

	if r.client != nil {
		if err := r.gatherAccountSignals(ctx, contributor, asOf, &signals); err != nil {
			// account signals are optional, local ones still score
			slog.Debug("account signals unavailable", "contributor", contributor, "error", err)
		}
	}

	return score.Compute(signals), nil
}

func (r *Reputation) globalStats(ctx context.Context, since, to string) (*globalStats, error) {
	key := since + ".." + to

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stats[key]; ok {
		return s, nil
	}

	var s globalStats
	if err := r.store.queryRow(ctx, selectTotalEventCountSQL, since, to).Scan(&s.totalCommits); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("error counting total events: %w", err)
	}
	if err := r.store.queryRow(ctx, selectTotalContributorCountSQL, since, to, botSuffix).Scan(&s.totalContributors); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("error counting total contributors: %w", err)
	}

	r.stats[key] = &s
	return &s, nil
}

// gatherLocalSignals collects only store-available signals (no API calls).
func (s *Store) gatherLocalSignals(ctx context.Context, contributor, since, to string, asOf time.Time, stats *globalStats) (score.Signals, error) {
	var sig score.Signals

	if err := s.queryRow(ctx, selectUserEventCountSQL, contributor, since, to).Scan(&sig.Commits); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return sig, fmt.Errorf("error counting events of %s: %w", contributor, err)
	}

	sig.TotalCommits = stats.totalCommits
	sig.TotalContributors = stats.totalContributors

	var last sql.NullString
	if err := s.queryRow(ctx, selectLastEventDateSQL, contributor, to).Scan(&last); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return sig, fmt.Errorf("error getting last event date of %s: %w", contributor, err)
	}
	if last.Valid && last.String != "" {
		if t, err := time.Parse(interval.DateLayout, last.String); err == nil {
			sig.LastCommitDays = int64(asOf.Sub(t).Hours() / 24)
		}
	}

	return sig, nil
}

// gatherAccountSignals adds GitHub account data to sig.
func (r *Reputation) gatherAccountSignals(ctx context.Context, contributor string, asOf time.Time, sig *score.Signals) error {
	usr, resp, err := r.client.Users.Get(ctx, contributor)
	if err != nil {
		return fmt.Errorf("error getting user %s: %w", contributor, err)
	}
	checkRateLimit(resp)

	if usr.CreatedAt != nil {
		sig.AgeDays = int64(asOf.Sub(usr.CreatedAt.Time).Hours() / 24)
	}
	sig.Followers = int64(usr.GetFollowers())
	sig.Following = int64(usr.GetFollowing())
	sig.PublicRepos = int64(usr.GetPublicRepos())
	sig.HasBio = strings.TrimSpace(usr.GetBio()) != ""
	sig.HasCompany = strings.TrimSpace(usr.GetCompany()) != ""
	sig.HasLocation = strings.TrimSpace(usr.GetLocation()) != ""
	sig.HasWebsite = strings.TrimSpace(usr.GetBlog()) != ""
	sig.Suspended = usr.SuspendedAt != nil

	orgs, err := r.owners(ctx)
	if err != nil {
		return err
	}

	company := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(usr.GetCompany(), "@", "")))
	for _, org := range orgs {
		if company != "" && company == org {
			sig.OrgMember = true
			return nil
		}
	}

	for _, org := range orgs {
		member, memberResp, err := r.client.Organizations.IsMember(ctx, org, contributor)
		if err != nil {
			slog.Debug("error checking org membership", "org", org, "contributor", contributor, "error", err)
			continue
		}
		checkRateLimit(memberResp)
		if member {
			sig.OrgMember = true
			break
		}
	}

	return nil
}

// owners lists the distinct owners of imported repositories.
func (r *Reputation) owners(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.orgs != nil {
		return r.orgs, nil
	}

	repos, err := r.store.queryStrings(ctx, selectDistinctRepositoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query repositories: %w", err)
	}

	seen := make(map[string]bool)
	r.orgs = make([]string, 0)
	for _, repo := range repos {
		owner, _, _ := strings.Cut(repo, "/")
		owner = strings.ToLower(owner)
		if owner != "" && !seen[owner] {
			seen[owner] = true
			r.orgs = append(r.orgs, owner)
		}
	}
	return r.orgs, nil
}
