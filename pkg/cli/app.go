package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mchmarny/devrank/pkg/config"
	"github.com/mchmarny/devrank/pkg/data"
	"github.com/mchmarny/devrank/pkg/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName     = "devrank"
	appStateKey = "app-state"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to the YAML config file",
		Sources: cli.EnvVars(config.EnvConfigFile),
	}

	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "Database DSN or sqlite file path (default: $HOME/.devrank/data.db)",
	}

	driverFlag = &cli.StringFlag{
		Name:  "driver",
		Usage: fmt.Sprintf("Database driver [%s, %s]", config.DriverSQLite, config.DriverPostgres),
	}

	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level [trace, debug, info, warn, error]",
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// appState is shared by all commands of one invocation.
type appState struct {
	cfg    *config.Config
	logger *slog.Logger
	format string

	mu    sync.Mutex
	store *data.Store
}

// Store opens the configured database on first use.
func (s *appState) Store(ctx context.Context) (*data.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		return s.store, nil
	}
	st, err := data.Open(ctx, s.cfg.Store.Driver, s.cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.store = st
	return st, nil
}

func (s *appState) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		s.store.Close()
		s.store = nil
	}
}

func getState(cmd *cli.Command) *appState {
	st, ok := cmd.Root().Metadata[appStateKey].(*appState)
	if !ok {
		panic("app state not initialized")
	}
	return st
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Usage:                 "Incremental contributor scoring for GitHub repositories",
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Metadata:              map[string]any{},
		Flags: []cli.Flag{
			configFlag,
			dbFlag,
			driverFlag,
			logLevelFlag,
			formatFlag,
		},
		Commands: []*cli.Command{
			authCmd,
			importCmd,
			scoreCmd,
			leaderboardCmd,
			profileCmd,
			statusCmd,
			configCmd,
			resetCmd,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return ctx, err
			}

			logger := logging.NewCLILogger(cfg.LogLevel)
			slog.SetDefault(logger)

			format := formatJSON
			if f := cmd.String(formatFlag.Name); f == formatYAML || f == "yml" {
				format = formatYAML
			}

			cmd.Root().Metadata[appStateKey] = &appState{
				cfg:    cfg,
				logger: logger,
				format: format,
			}
			return ctx, nil
		},
		After: func(_ context.Context, cmd *cli.Command) error {
			if st, ok := cmd.Root().Metadata[appStateKey].(*appState); ok {
				st.close()
			}
			return nil
		},
	}
}

// loadConfig layers the global flags over the loaded configuration.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String(configFlag.Name))
	if err != nil {
		return nil, err
	}

	if v := cmd.String(driverFlag.Name); v != "" {
		cfg.Store.Driver = v
	}
	if v := cmd.String(dbFlag.Name); v != "" {
		cfg.Store.DSN = v
	}
	if v := cmd.String(logLevelFlag.Name); v != "" {
		cfg.LogLevel = v
	}

	if cfg.Store.Driver == config.DriverSQLite && cfg.Store.DSN == "" {
		dir, _, err := config.GetOrCreateHomeDir(appName)
		if err != nil {
			return nil, err
		}
		cfg.Store.DSN = filepath.Join(dir, data.DataFileName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getHomeDir() string {
	dir, _, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}
	return dir
}

func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func encode(cmd *cli.Command, v any) error {
	w := writer(cmd)
	if getState(cmd).format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

var errMissingArg = errors.New("missing required argument")
