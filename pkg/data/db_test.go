package data

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mchmarny/devrank/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), DataFileName)
	s, err := Open(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testTime(t *testing.T, v string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, v)
	require.NoError(t, err)
	return ts
}

func testEvent(id string, kind score.Kind, actor, ts string) *score.Event {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(fmt.Sprintf("bad test time %q: %v", ts, err))
	}
	return &score.Event{
		ID:         id,
		Kind:       kind,
		Actor:      actor,
		Repository: "o/r",
		Number:     1,
		Timestamp:  t,
	}
}

func TestOpen_RunsMigrations(t *testing.T) {
	s := setupTestStore(t)
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, DriverSQLite, s.Driver())
}

func TestOpen_Idempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), DataFileName)
	ctx := context.Background()

	s1, err := Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	defer s2.Close()

	v, err := s2.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestOpen_InvalidInput(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, DriverSQLite, "")
	assert.Error(t, err)

	_, err = Open(ctx, "mysql", "x")
	assert.Error(t, err)
}

func TestNilStore(t *testing.T) {
	var s *Store
	ctx := context.Background()

	_, err := s.SchemaVersion(ctx)
	assert.ErrorIs(t, err, errDBNotInitialized)
	_, err = s.SaveEvents(ctx, []*score.Event{{ID: "x"}})
	assert.ErrorIs(t, err, errDBNotInitialized)
	_, err = s.GetDataState(ctx)
	assert.ErrorIs(t, err, errDBNotInitialized)
	assert.NoError(t, s.Close())
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", pg.rebind("SELECT a FROM t WHERE b = ? AND c = ?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "b = ?", lite.rebind("b = ?"))
}

func TestListMigrations_Ordered(t *testing.T) {
	list, err := listMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, list)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].version, list[i].version)
	}
}

func TestFormatParseTime(t *testing.T) {
	assert.Equal(t, "", formatTime(time.Time{}))
	assert.True(t, parseTime("").IsZero())
	assert.True(t, parseTime("not a time").IsZero())

	ts := time.Date(2024, 3, 1, 10, 30, 0, 123, time.UTC)
	assert.True(t, ts.Equal(parseTime(formatTime(ts))))
}
