// Package config loads devrank configuration by layering defaults, an
// optional YAML file and DEVRANK_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mchmarny/devrank/pkg/badge"
	"github.com/mchmarny/devrank/pkg/level"
	"github.com/mchmarny/devrank/pkg/score"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix of environment overrides. Nested keys use a
	// double underscore: DEVRANK_STORE__DSN sets store.dsn.
	EnvPrefix = "DEVRANK_"

	// EnvConfigFile points at a YAML config file when --config is not set.
	EnvConfigFile = "DEVRANK_CONFIG"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	configFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrLoadConfig wraps file and environment loading failures.
	ErrLoadConfig = errors.New("load config failed")
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `koanf:"driver" yaml:"driver"`
	DSN    string `koanf:"dsn" yaml:"dsn"`
}

// ConcurrencyConfig bounds mapper parallelism. With Adaptive set the limit
// follows the remaining GitHub API quota between Min and Max.
type ConcurrencyConfig struct {
	Default           int  `koanf:"default" yaml:"default"`
	Adaptive          bool `koanf:"adaptive" yaml:"adaptive"`
	Min               int  `koanf:"min" yaml:"min"`
	Max               int  `koanf:"max" yaml:"max"`
	RequestsPerWorker int  `koanf:"requests_per_worker" yaml:"requests_per_worker"`
}

// NarrativeConfig configures the optional summary generator.
type NarrativeConfig struct {
	Enabled  bool          `koanf:"enabled" yaml:"enabled"`
	Endpoint string        `koanf:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout"`
}

// ImportConfig lists the repositories to ingest.
type ImportConfig struct {
	Repositories []string `koanf:"repositories" yaml:"repositories"`
	Months       int      `koanf:"months" yaml:"months"`
}

// Config is the complete runtime configuration.
type Config struct {
	LogLevel    string             `koanf:"log_level" yaml:"log_level"`
	Store       StoreConfig        `koanf:"store" yaml:"store"`
	Concurrency ConcurrencyConfig  `koanf:"concurrency" yaml:"concurrency"`
	Narrative   NarrativeConfig    `koanf:"narrative" yaml:"narrative"`
	Weights     score.Weights      `koanf:"weights" yaml:"weights"`
	Levels      level.Config       `koanf:"levels" yaml:"levels"`
	Badges      []badge.Definition `koanf:"badges" yaml:"badges"`
	Tags        []score.TagRule    `koanf:"tags" yaml:"tags"`
	Import      ImportConfig       `koanf:"import" yaml:"import"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel: "info",
		Store: StoreConfig{
			Driver: DriverSQLite,
		},
		Concurrency: ConcurrencyConfig{
			Default:           10,
			Min:               1,
			Max:               20,
			RequestsPerWorker: 100,
		},
		Narrative: NarrativeConfig{
			Timeout: 30 * time.Second,
		},
		Weights: score.DefaultWeights(),
		Levels:  level.DefaultConfig(),
		Badges:  badge.DefaultDefinitions(),
		Tags:    score.DefaultTagRules(),
		Import: ImportConfig{
			Months: 6,
		},
	}
}

// Validate checks the whole configuration once at startup.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %s or %s: %q", DriverSQLite, DriverPostgres, c.Store.Driver))
	}
	if c.Store.Driver == DriverPostgres && c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required for postgres"))
	}

	cc := c.Concurrency
	if cc.Default < 1 {
		errs = append(errs, fmt.Errorf("concurrency.default must be at least 1: %d", cc.Default))
	}
	if cc.Min < 1 || cc.Max < cc.Min {
		errs = append(errs, fmt.Errorf("concurrency bounds are invalid: min=%d max=%d", cc.Min, cc.Max))
	}
	if cc.Adaptive && cc.RequestsPerWorker < 1 {
		errs = append(errs, errors.New("concurrency.requests_per_worker must be positive when adaptive"))
	}

	if c.Narrative.Enabled {
		if c.Narrative.Endpoint == "" {
			errs = append(errs, errors.New("narrative.endpoint is required when narrative is enabled"))
		}
		if c.Narrative.Timeout <= 0 {
			errs = append(errs, errors.New("narrative.timeout must be positive"))
		}
	}

	if err := c.Weights.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("weights: %w", err))
	}
	if err := c.Levels.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := badge.NewEvaluator(c.Badges); err != nil {
		errs = append(errs, fmt.Errorf("badges: %w", err))
	}
	if _, err := score.NewTagger(c.Tags); err != nil {
		errs = append(errs, fmt.Errorf("tags: %w", err))
	}

	for _, r := range c.Import.Repositories {
		if _, _, err := ParseRepo(r); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Import.Months < 1 {
		errs = append(errs, fmt.Errorf("import.months must be at least 1: %d", c.Import.Months))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ParseRepo splits "owner/name".
func ParseRepo(s string) (owner, name string, err error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q, expected owner/name", s)
	}
	return parts[0], parts[1], nil
}

// Repositories returns the de-duplicated, sorted repository list.
func (c *Config) Repositories() []string {
	list := slices.Clone(c.Import.Repositories)
	slices.Sort(list)
	return slices.Compact(list)
}

// Save writes c as YAML into dirPath.
func Save(dirPath string, c *Config) (string, error) {
	if dirPath == "" {
		return "", errors.New("config directory required")
	}
	if c == nil {
		return "", errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return "", fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return path, nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
