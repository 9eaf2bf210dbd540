package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIHandler_Render(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		log  func(*slog.Logger)
		want string
	}{
		{
			name: "info is green",
			log:  func(l *slog.Logger) { l.Info("hello", "n", 1) },
			want: colorGreen + "hello: n=1" + colorReset + "\n",
		},
		{
			name: "warn is green",
			log:  func(l *slog.Logger) { l.Warn("slow") },
			want: colorGreen + "slow" + colorReset + "\n",
		},
		{
			name: "error is red",
			log:  func(l *slog.Logger) { l.Error("failed", "error", "boom") },
			want: colorRed + "failed: error=boom" + colorReset + "\n",
		},
		{
			name: "debug is green",
			log:  func(l *slog.Logger) { l.Debug("detail") },
			want: colorGreen + "detail" + colorReset + "\n",
		},
		{
			name: "trace is gray",
			log:  func(l *slog.Logger) { Trace(ctx, l, "enter") },
			want: colorGray + "enter" + colorReset + "\n",
		},
		{
			name: "nested scope with handler and record attrs",
			log: func(l *slog.Logger) {
				Trace(ctx, l.With("run", "r1").WithGroup("score").WithGroup("day"), "exit", "duration", "2ms")
			},
			want: colorGray + "[score.day] exit: run=r1 duration=2ms" + colorReset + "\n",
		},
		{
			name: "empty group adds no scope",
			log:  func(l *slog.Logger) { l.WithGroup("").Info("plain") },
			want: colorGreen + "plain" + colorReset + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(slog.New(NewCLIHandler(&buf, LevelTrace)))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestCLIHandler_LevelFiltering(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		handler slog.Level
		log     func(*slog.Logger)
		logged  bool
	}{
		{"info handler logs info", slog.LevelInfo, func(l *slog.Logger) { l.Info("m") }, true},
		{"info handler filters debug", slog.LevelInfo, func(l *slog.Logger) { l.Debug("m") }, false},
		{"debug handler filters trace", slog.LevelDebug, func(l *slog.Logger) { Trace(ctx, l, "m") }, false},
		{"trace handler logs trace", LevelTrace, func(l *slog.Logger) { Trace(ctx, l, "m") }, true},
		{"error handler filters warn", slog.LevelError, func(l *slog.Logger) { l.Warn("m") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(slog.New(NewCLIHandler(&buf, tt.handler)))
			assert.Equal(t, tt.logged, buf.Len() > 0)
		})
	}
}

func TestCLIHandler_ScopesDoNotLeak(t *testing.T) {
	var buf bytes.Buffer
	root := slog.New(NewCLIHandler(&buf, slog.LevelInfo))

	week := root.WithGroup("week")
	week.WithGroup("2024-02-25").Info("bucket")
	week.With("contributor", "alice").Info("entity")
	root.Info("done")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "[week.2024-02-25] bucket")
	assert.Contains(t, lines[1], "[week] entity: contributor=alice")
	assert.NotContains(t, lines[2], "[")
	assert.NotContains(t, lines[2], "contributor")

	handler := NewCLIHandler(&buf, slog.LevelInfo)
	assert.Same(t, handler, handler.WithAttrs(nil))
}

func TestCLIHandler_ConcurrentScopes(t *testing.T) {
	var buf bytes.Buffer
	root := slog.New(NewCLIHandler(&buf, LevelTrace))

	const workers = 32
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Trace(context.Background(), root.WithGroup(fmt.Sprintf("w%d", i)), "step", "i", i)
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, workers)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, colorGray+"[w"), l)
		assert.True(t, strings.HasSuffix(l, colorReset), l)
	}
}

func TestTrace_NilLogger(t *testing.T) {
	// should not panic
	Trace(context.Background(), nil, "nothing")
}

func TestDefaultCLILogger(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	SetDefaultCLILogger("trace")
	assert.True(t, slog.Default().Enabled(context.Background(), LevelTrace))

	SetDefaultCLILogger("warn")
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))

	require.NotNil(t, NewCLILogger("nonsense"))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"TRACE", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"  debug  ", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.input))
		})
	}

	assert.Less(t, LevelTrace, slog.LevelDebug)
}
