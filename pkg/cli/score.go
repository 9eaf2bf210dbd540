package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/go-github/v83/github"
	"github.com/mchmarny/devrank/pkg/data"
	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/mchmarny/devrank/pkg/metrics"
	"github.com/mchmarny/devrank/pkg/net"
	"github.com/mchmarny/devrank/pkg/orchestrator"
	"github.com/urfave/cli/v3"
)

var (
	fromFlag = &cli.StringFlag{
		Name:  "from",
		Usage: "First day to score as YYYY-MM-DD (default: yesterday)",
	}

	toFlag = &cli.StringFlag{
		Name:  "to",
		Usage: "Last day to score as YYYY-MM-DD (default: --from)",
	}

	overwriteFlag = &cli.BoolFlag{
		Name:  "overwrite",
		Usage: "Recompute and replace results that already exist",
	}

	passFlag = &cli.StringSliceFlag{
		Name:  "pass",
		Usage: "Pass to run [day, week, month, lifetime] (can be specified multiple times, default: all)",
	}

	metricsFileFlag = &cli.StringFlag{
		Name:  "metrics-file",
		Usage: "Write run metrics in Prometheus text format to this file",
	}

	scoreCmd = &cli.Command{
		Name:    "score",
		Aliases: []string{"s"},
		Usage:   "Compute daily, weekly, monthly and lifetime scores from imported events",
		UsageText: `devrank score --from 2024-03-01 --to 2024-03-31     # score March
   devrank score --pass day --pass week --overwrite     # rescore yesterday`,
		Action: cmdScore,
		Flags: []cli.Flag{
			fromFlag,
			toFlag,
			overwriteFlag,
			passFlag,
			metricsFileFlag,
		},
	}
)

// scoreRange resolves --from and --to into a validated range.
func scoreRange(from, to string, now time.Time) (interval.DateRange, error) {
	if from == "" {
		from = interval.Truncate(now).AddDate(0, 0, -1).Format(interval.DateLayout)
	}
	if to == "" {
		to = from
	}
	return interval.NewDateRange(from, to)
}

func parsePasses(list []string) ([]interval.Type, error) {
	passes := make([]interval.Type, 0, len(list))
	for _, v := range list {
		for p := range strings.SplitSeq(v, ",") {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			t, err := interval.ParseType(p)
			if err != nil {
				return nil, err
			}
			passes = append(passes, t)
		}
	}
	return passes, nil
}

func cmdScore(ctx context.Context, cmd *cli.Command) error {
	st := getState(cmd)

	r, err := scoreRange(cmd.String(fromFlag.Name), cmd.String(toFlag.Name), time.Now().UTC())
	if err != nil {
		return err
	}
	passes, err := parsePasses(cmd.StringSlice(passFlag.Name))
	if err != nil {
		return err
	}

	store, err := st.Store(ctx)
	if err != nil {
		return err
	}

	// account signals and adaptive concurrency need a token, scoring does not
	var client *github.Client
	if token, err := getGitHubToken(); err == nil {
		client = github.NewClient(net.GetOAuthClient(ctx, token))
	} else {
		slog.Debug("scoring without GitHub access", "error", err)
	}

	rec := metrics.NewRecorder()
	opts, err := orchestrator.FromConfig(st.cfg)
	if err != nil {
		return err
	}
	opts = append(opts,
		orchestrator.WithRecorder(rec),
		orchestrator.WithReputation(data.NewReputation(store, client)),
	)

	o, err := orchestrator.New(store, store, opts...)
	if err != nil {
		return err
	}

	rc, _, err := newRunContext(ctx, st, client)
	if err != nil {
		return err
	}

	stop := watchSignals(ctx, rc)
	defer stop()

	report, runErr := o.Run(ctx, rc, orchestrator.Options{
		Range:     r,
		Overwrite: cmd.Bool(overwriteFlag.Name),
		Passes:    passes,
	})
	if report == nil {
		return runErr
	}

	if err := store.SaveRun(ctx, runFromReport(report, runErr)); err != nil {
		slog.Error("saving run history failed", "run", report.RunID, "error", err)
	}

	if path := cmd.String(metricsFileFlag.Name); path != "" {
		if err := rec.WriteTextfile(path); err != nil {
			slog.Error("writing metrics failed", "path", path, "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	return encode(cmd, report)
}

// runFromReport converts a report into its run history row. A halted run
// is recorded as partial.
func runFromReport(r *orchestrator.Report, runErr error) *data.Run {
	computed, skipped, failed := r.Totals()
	return &data.Run{
		ID:         r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Range:      r.Range,
		Passes:     r.PassTypes(),
		Overwrite:  r.Overwrite,
		Partial:    r.Partial || runErr != nil,
		Computed:   computed,
		Skipped:    skipped,
		Failed:     failed,
	}
}

var errNoResults = errors.New("no results")

func notFound(what, key string) error {
	return fmt.Errorf("%w: %s %s", errNoResults, what, key)
}
