package level

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCurve(t *testing.T) *Curve {
	t.Helper()
	c, err := NewCurve(Config{Base: 100, Exponent: 2, MaxLevel: 5})
	require.NoError(t, err)
	return c
}

func TestNewCurve_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero base", Config{Base: 0, Exponent: 1, MaxLevel: 10}},
		{"negative exponent", Config{Base: 10, Exponent: -1, MaxLevel: 10}},
		{"single level", Config{Base: 10, Exponent: 1, MaxLevel: 1}},
		{"nan base", Config{Base: math.NaN(), Exponent: 1, MaxLevel: 10}},
		{"overflow", Config{Base: 1e300, Exponent: 300, MaxLevel: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCurve(tt.cfg)
			assert.Error(t, err)
		})
	}

	_, err := NewCurve(DefaultConfig())
	assert.NoError(t, err)
}

func TestCurve_Thresholds(t *testing.T) {
	c := testCurve(t)
	assert.Equal(t, 5, c.MaxLevel())
	want := []float64{0, 100, 400, 900, 1600}
	for i, w := range want {
		assert.InDelta(t, w, c.Threshold(i+1), 1e-9)
	}
	assert.InDelta(t, 0.0, c.Threshold(-3), 1e-9)
	assert.InDelta(t, 1600.0, c.Threshold(99), 1e-9)
}

func TestCurve_LevelFor(t *testing.T) {
	c := testCurve(t)
	tests := []struct {
		score    float64
		level    int
		progress float64
		toNext   float64
	}{
		{-5, 1, 0, 100},
		{0, 1, 0, 100},
		{50, 1, 0.5, 50},
		{100, 2, 0, 300},
		{250, 2, 0.5, 150},
		{899.5, 3, 499.5 / 500, 0.5},
		{1600, 5, 0, 0},
		{1e9, 5, 0, 0},
	}
	for _, tt := range tests {
		l := c.LevelFor(tt.score)
		assert.Equal(t, tt.level, l.Level, "score %v", tt.score)
		assert.InDelta(t, tt.progress, l.Progress, 1e-9, "score %v", tt.score)
		assert.InDelta(t, tt.toNext, l.PointsToNext, 1e-9, "score %v", tt.score)
	}

	nan := c.LevelFor(math.NaN())
	assert.Equal(t, 1, nan.Level)
}

func TestCurve_LevelForMonotonicAndPure(t *testing.T) {
	c, err := NewCurve(DefaultConfig())
	require.NoError(t, err)

	r := rand.New(rand.NewPCG(1, 2))
	for range 2000 {
		a := r.Float64() * 200000
		b := a + r.Float64()*1000

		la, lb := c.LevelFor(a), c.LevelFor(b)
		assert.LessOrEqual(t, la.Level, lb.Level)
		assert.GreaterOrEqual(t, la.Progress, 0.0)
		assert.Less(t, la.Progress, 1.0)
		assert.GreaterOrEqual(t, la.PointsToNext, 0.0)
		assert.Equal(t, la, c.LevelFor(a))
	}
}

func TestCurve_ProgressBelowOneAtBoundary(t *testing.T) {
	c := testCurve(t)
	below := math.Nextafter(100, 0)
	l := c.LevelFor(below)
	assert.Equal(t, 1, l.Level)
	assert.Less(t, l.Progress, 1.0)
}

func TestCurve_TagScores(t *testing.T) {
	c := testCurve(t)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	list := c.TagScores("alice", map[string]float64{"review": 250, "go": 1700}, now)
	require.Len(t, list, 2)
	assert.Equal(t, "go", list[0].Tag)
	assert.Equal(t, 5, list[0].Level)
	assert.Equal(t, "review", list[1].Tag)
	assert.Equal(t, 2, list[1].Level)
	assert.InDelta(t, 0.5, list[1].Progress, 1e-9)
	assert.Equal(t, now, list[1].UpdatedAt)
	assert.Equal(t, "alice", list[1].Contributor)
}
