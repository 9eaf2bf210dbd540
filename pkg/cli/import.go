package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/go-github/v83/github"
	"github.com/mchmarny/devrank/pkg/config"
	"github.com/mchmarny/devrank/pkg/data"
	"github.com/mchmarny/devrank/pkg/net"
	"github.com/mchmarny/devrank/pkg/pipeline"
	"github.com/urfave/cli/v3"
)

var (
	repoFlag = &cli.StringSliceFlag{
		Name:  "repo",
		Usage: "Repository to import as owner/name (can be specified multiple times, default: import.repositories)",
	}

	monthsFlag = &cli.IntFlag{
		Name:  "months",
		Usage: fmt.Sprintf("Number of months the first import reaches back (default: %d)", data.EventAgeMonthsDefault),
	}

	importCmd = &cli.Command{
		Name:    "import",
		Aliases: []string{"i"},
		Usage:   "Import GitHub activity (pull requests, reviews, issues, comments, reactions, commits)",
		UsageText: `devrank import --repo mchmarny/devrank --repo mchmarny/reputer   # import specific repos
   devrank import                                                     # import the configured repos`,
		Action: cmdImport,
		Flags: []cli.Flag{
			repoFlag,
			monthsFlag,
		},
	}
)

// ImportReport is printed by the import command.
type ImportReport struct {
	Repos    []*data.ImportResult `json:"repos" yaml:"repos"`
	Failed   []string             `json:"failed,omitempty" yaml:"failed,omitempty"`
	Duration string               `json:"duration" yaml:"duration"`
	Partial  bool                 `json:"partial,omitempty" yaml:"partial,omitempty"`
}

func cmdImport(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()
	st := getState(cmd)

	repos := cmd.StringSlice(repoFlag.Name)
	if len(repos) == 0 {
		repos = st.cfg.Repositories()
	}
	if len(repos) == 0 {
		return fmt.Errorf("%w: --repo or import.repositories", errMissingArg)
	}
	for _, r := range repos {
		if _, _, err := config.ParseRepo(r); err != nil {
			return err
		}
	}

	months := st.cfg.Import.Months
	if cmd.IsSet(monthsFlag.Name) {
		months = cmd.Int(monthsFlag.Name)
	}

	token, err := getGitHubToken()
	if err != nil {
		return err
	}
	client := github.NewClient(net.GetOAuthClient(ctx, token))

	store, err := st.Store(ctx)
	if err != nil {
		return err
	}

	rc, limiter, err := newRunContext(ctx, st, client)
	if err != nil {
		return err
	}

	im, err := data.NewImporter(client, store, data.WithRateLimiter(limiter), data.WithMonths(months))
	if err != nil {
		return err
	}

	stop := watchSignals(ctx, rc)
	defer stop()

	var step pipeline.Step[string, *data.ImportResult] = im.Import

	res := &ImportReport{}
	for _, repo := range repos {
		if rc.ShutdownRequested() {
			res.Partial = true
			break
		}
		r, err := pipeline.Named(repo, step)(ctx, rc, repo)
		if err != nil {
			slog.Error("import failed", "repo", repo, "error", err)
			res.Failed = append(res.Failed, repo)
			continue
		}
		res.Repos = append(res.Repos, r)
	}
	res.Duration = time.Since(start).String()

	return encode(cmd, res)
}

// newRunContext builds the pipeline context of a command. With adaptive
// concurrency configured the GitHub rate limit drives the worker count.
func newRunContext(ctx context.Context, st *appState, client *github.Client) (*pipeline.Context, *data.RateLimitController, error) {
	rc := pipeline.NewContext(st.cfg, st.logger)
	if client == nil {
		return rc, nil, nil
	}

	cc := st.cfg.Concurrency
	limiter, err := data.NewRateLimitController(client, cc.Min, cc.Max, max(cc.RequestsPerWorker, 1))
	if err != nil {
		return nil, nil, err
	}
	if cc.Adaptive {
		if err := limiter.Refresh(ctx); err != nil {
			slog.Warn("rate limit unavailable, starting at max concurrency", "error", err)
		}
		rc.Limiter = limiter
	}
	return rc, limiter, nil
}

// watchSignals turns SIGINT and SIGTERM into a cooperative shutdown request.
// In-flight work is never interrupted.
func watchSignals(ctx context.Context, rc *pipeline.Context) (stop func()) {
	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	stopWatch := rc.Shutdown.WatchContext(sigCtx)
	return func() {
		stopWatch()
		cancel()
	}
}
