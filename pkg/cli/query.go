package cli

import (
	"context"
	"time"

	"github.com/mchmarny/devrank/pkg/badge"
	"github.com/mchmarny/devrank/pkg/data"
	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/mchmarny/devrank/pkg/level"
	"github.com/mchmarny/devrank/pkg/score"
	"github.com/urfave/cli/v3"
)

const (
	leaderboardLimitDefault = 10
	runsLimitDefault        = 5
)

var (
	intervalFlag = &cli.StringFlag{
		Name:  "interval",
		Usage: "Bucket to rank [day, week, month, lifetime]",
		Value: string(interval.Week),
	}

	dateFlag = &cli.StringFlag{
		Name:  "date",
		Usage: "Any date inside the bucket as YYYY-MM-DD (default: today)",
	}

	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of results",
		Value: leaderboardLimitDefault,
	}

	userFlag = &cli.StringFlag{
		Name:     "user",
		Usage:    "GitHub username",
		Required: true,
	}

	leaderboardCmd = &cli.Command{
		Name:    "leaderboard",
		Aliases: []string{"l"},
		Usage:   "Top contributors of a day, week, month or lifetime",
		Action:  cmdLeaderboard,
		Flags: []cli.Flag{
			intervalFlag,
			dateFlag,
			limitFlag,
		},
	}

	profileCmd = &cli.Command{
		Name:    "profile",
		Aliases: []string{"p"},
		Usage:   "Lifetime totals, tag levels and badges of one contributor",
		Action:  cmdProfile,
		Flags: []cli.Flag{
			userFlag,
		},
	}

	statusCmd = &cli.Command{
		Name:   "status",
		Usage:  "Row counts and recent scoring runs",
		Action: cmdStatus,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "runs",
				Usage: "Number of recent runs to list",
				Value: runsLimitDefault,
			},
		},
	}
)

// Leaderboard is printed by the leaderboard command.
type Leaderboard struct {
	Interval interval.Type            `json:"interval" yaml:"interval"`
	Date     string                   `json:"date" yaml:"date"` // bucket key
	Entries  []*data.LeaderboardEntry `json:"entries" yaml:"entries"`
}

func cmdLeaderboard(ctx context.Context, cmd *cli.Command) error {
	t, err := interval.ParseType(cmd.String(intervalFlag.Name))
	if err != nil {
		return err
	}

	day := interval.Truncate(time.Now().UTC())
	if v := cmd.String(dateFlag.Name); v != "" {
		if day, err = interval.ParseDate(v); err != nil {
			return err
		}
	}

	store, err := getState(cmd).Store(ctx)
	if err != nil {
		return err
	}

	list, err := store.Leaderboard(ctx, t, day, cmd.Int(limitFlag.Name))
	if err != nil {
		return err
	}

	iv := interval.LifetimeAsOf(day)
	if t != interval.Lifetime {
		if iv, err = interval.ForDate(t, day); err != nil {
			return err
		}
	}

	return encode(cmd, &Leaderboard{
		Interval: t,
		Date:     iv.Key(),
		Entries:  list,
	})
}

// Profile is printed by the profile command.
type Profile struct {
	Contributor string               `json:"contributor" yaml:"contributor"`
	Lifetime    *score.LifetimeScore `json:"lifetime,omitempty" yaml:"lifetime,omitempty"`
	Tags        []*level.TagScore    `json:"tags,omitempty" yaml:"tags,omitempty"`
	Badges      []badge.Badge        `json:"badges,omitempty" yaml:"badges,omitempty"`
}

func cmdProfile(ctx context.Context, cmd *cli.Command) error {
	user := cmd.String(userFlag.Name)

	store, err := getState(cmd).Store(ctx)
	if err != nil {
		return err
	}

	p := &Profile{Contributor: user}
	if p.Lifetime, err = store.GetLifetime(ctx, user); err != nil {
		return err
	}
	if p.Tags, err = store.ListTagScores(ctx, user); err != nil {
		return err
	}
	if p.Badges, err = store.ListBadges(ctx, user); err != nil {
		return err
	}

	if p.Lifetime == nil && len(p.Tags) == 0 && len(p.Badges) == 0 {
		return notFound("contributor", user)
	}

	return encode(cmd, p)
}

// Status is printed by the status command.
type Status struct {
	Driver string           `json:"driver" yaml:"driver"`
	Schema int              `json:"schema" yaml:"schema"`
	Counts map[string]int64 `json:"counts" yaml:"counts"`
	Runs   []*data.Run      `json:"runs,omitempty" yaml:"runs,omitempty"`
}

func cmdStatus(ctx context.Context, cmd *cli.Command) error {
	store, err := getState(cmd).Store(ctx)
	if err != nil {
		return err
	}

	s := &Status{Driver: store.Driver()}
	if s.Schema, err = store.SchemaVersion(ctx); err != nil {
		return err
	}
	if s.Counts, err = store.GetDataState(ctx); err != nil {
		return err
	}
	if s.Runs, err = store.ListRuns(ctx, cmd.Int("runs")); err != nil {
		return err
	}

	return encode(cmd, s)
}
