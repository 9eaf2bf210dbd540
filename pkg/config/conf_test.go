package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, DriverSQLite, c.Store.Driver)
	assert.Equal(t, 10, c.Concurrency.Default)
	assert.Len(t, c.Badges, 6)
	assert.NotEmpty(t, c.Tags)
	assert.InDelta(t, 4.0, c.Weights.PullRequest.Base, 1e-9)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
concurrency:
  default: 4
narrative:
  enabled: true
  endpoint: http://localhost:8080/summarize
  timeout: 5s
weights:
  pull_request:
    base: 7
  issue:
    with_labels_multiplier:
      security: 3
badges:
  - type: merger
    metric: pull_requests_merged
    thresholds: [1, 2]
import:
  repositories: [mchmarny/devrank, mchmarny/reputer]
  months: 2
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 4, c.Concurrency.Default)
	assert.True(t, c.Narrative.Enabled)
	assert.Equal(t, 5*time.Second, c.Narrative.Timeout)
	assert.InDelta(t, 7.0, c.Weights.PullRequest.Base, 1e-9)
	assert.InDelta(t, 16.0, c.Weights.PullRequest.Merged, 1e-9)
	assert.InDelta(t, 3.0, c.Weights.Issue.WithLabelsMultiplier["security"], 1e-9)
	assert.InDelta(t, 1.8, c.Weights.Issue.WithLabelsMultiplier["bug"], 1e-9)
	require.Len(t, c.Badges, 1)
	assert.Equal(t, []float64{1, 2}, c.Badges[0].Thresholds)
	assert.Equal(t, []string{"mchmarny/devrank", "mchmarny/reputer"}, c.Import.Repositories)
	assert.Equal(t, 2, c.Import.Months)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")
	t.Setenv("DEVRANK_LOG_LEVEL", "warn")
	t.Setenv("DEVRANK_STORE__DRIVER", "postgres")
	t.Setenv("DEVRANK_STORE__DSN", "postgres://u:p@localhost/devrank?sslmode=disable")
	t.Setenv("DEVRANK_CONCURRENCY__MAX", "40")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", c.LogLevel)
	assert.Equal(t, DriverPostgres, c.Store.Driver)
	assert.Contains(t, c.Store.DSN, "localhost")
	assert.Equal(t, 40, c.Concurrency.Max)
}

func TestLoad_ConfigFileFromEnv(t *testing.T) {
	path := writeConfig(t, "log_level: error\n")
	t.Setenv(EnvConfigFile, path)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "error", c.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrLoadConfig)

	path := writeConfig(t, "weights:\n  review:\n    max_per_day: 0\n")
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "review.max_per_day")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"postgres dsn", func(c *Config) { c.Store.Driver = DriverPostgres }, "store.dsn"},
		{"concurrency", func(c *Config) { c.Concurrency.Default = 0 }, "concurrency.default"},
		{"bounds", func(c *Config) { c.Concurrency.Max = 0 }, "concurrency bounds"},
		{"narrative", func(c *Config) { c.Narrative.Enabled = true }, "narrative.endpoint"},
		{"levels", func(c *Config) { c.Levels.MaxLevel = 1 }, "levels.max_level"},
		{"badges", func(c *Config) { c.Badges[0].Metric = "stars" }, "unknown metric"},
		{"tags", func(c *Config) { c.Tags[0].Points = 0 }, "points"},
		{"repo", func(c *Config) { c.Import.Repositories = []string{"devrank"} }, "owner/name"},
		{"months", func(c *Config) { c.Import.Months = 0 }, "import.months"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			tt.mutate(c)
			err := c.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
	assert.NoError(t, New().Validate())
}

func TestSave_RoundTrip(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	dir := t.TempDir()

	c := New()
	c.LogLevel = "debug"
	c.Import.Repositories = []string{"a/b"}
	c.Weights.Review.Base = 9

	path, err := Save(dir, c)
	require.NoError(t, err)

	c2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.LogLevel, c2.LogLevel)
	assert.Equal(t, c.Import.Repositories, c2.Import.Repositories)
	assert.Equal(t, c.Weights, c2.Weights)
	assert.Equal(t, c.Badges, c2.Badges)
	assert.Equal(t, c.Narrative.Timeout, c2.Narrative.Timeout)

	_, err = Save("", c)
	assert.Error(t, err)
	_, err = Save(dir, nil)
	assert.Error(t, err)
}

func TestParseRepo(t *testing.T) {
	o, n, err := ParseRepo(" mchmarny/devrank ")
	require.NoError(t, err)
	assert.Equal(t, "mchmarny", o)
	assert.Equal(t, "devrank", n)

	for _, bad := range []string{"", "a", "a/", "/b", "a/b/c"} {
		_, _, err := ParseRepo(bad)
		assert.Error(t, err, bad)
	}
}

func TestRepositories_Dedupes(t *testing.T) {
	c := New()
	c.Import.Repositories = []string{"b/b", "a/a", "b/b"}
	assert.Equal(t, []string{"a/a", "b/b"}, c.Repositories())
}

func TestGetOrCreateHomeDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir, created, err := GetOrCreateHomeDir("devrank")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ".devrank", filepath.Base(dir))

	_, created, err = GetOrCreateHomeDir(".devrank")
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = GetOrCreateHomeDir("")
	assert.Error(t, err)
}
