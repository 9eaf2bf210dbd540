// Package level maps cumulative scores onto levels using a power curve.
package level

import (
	"errors"
	"fmt"
	"math"
)

// Config shapes the curve: the threshold of level L (L >= 2) is
// Base * (L-1)^Exponent and level 1 starts at 0.
type Config struct {
	Base     float64 `koanf:"base" json:"base" yaml:"base"`
	Exponent float64 `koanf:"exponent" json:"exponent" yaml:"exponent"`
	MaxLevel int     `koanf:"max_level" json:"max_level" yaml:"max_level"`
}

// DefaultConfig returns the stock curve.
func DefaultConfig() Config {
	return Config{
		Base:     50,
		Exponent: 1.5,
		MaxLevel: 50,
	}
}

// Validate checks that the curve produces strictly increasing thresholds.
func (c Config) Validate() error {
	var errs []error
	if c.Base <= 0 || math.IsInf(c.Base, 0) || math.IsNaN(c.Base) {
		errs = append(errs, fmt.Errorf("levels.base must be positive: %v", c.Base))
	}
	if c.Exponent <= 0 || math.IsInf(c.Exponent, 0) || math.IsNaN(c.Exponent) {
		errs = append(errs, fmt.Errorf("levels.exponent must be positive: %v", c.Exponent))
	}
	if c.MaxLevel < 2 {
		errs = append(errs, fmt.Errorf("levels.max_level must be at least 2: %d", c.MaxLevel))
	}
	return errors.Join(errs...)
}

// Level is the position of a score on the curve.
type Level struct {
	Level        int     `json:"level" yaml:"level"`
	Progress     float64 `json:"progress" yaml:"progress"`
	PointsToNext float64 `json:"points_to_next" yaml:"pointsToNext"`
	Threshold    float64 `json:"threshold" yaml:"threshold"`
}

// Curve holds precomputed thresholds. It is immutable and safe for
// concurrent use.
type Curve struct {
	thresholds []float64
}

// NewCurve validates cfg and precomputes its thresholds.
func NewCurve(cfg Config) (*Curve, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := make([]float64, cfg.MaxLevel)
	for i := 1; i < cfg.MaxLevel; i++ {
		t[i] = cfg.Base * math.Pow(float64(i), cfg.Exponent)
		if !(t[i] > t[i-1]) || math.IsInf(t[i], 0) {
			return nil, fmt.Errorf("level %d threshold %v does not increase over %v", i+1, t[i], t[i-1])
		}
	}

	return &Curve{thresholds: t}, nil
}

// MaxLevel is the highest reachable level.
func (c *Curve) MaxLevel() int {
	return len(c.thresholds)
}

// Threshold returns the score needed to reach level l (1-based).
func (c *Curve) Threshold(l int) float64 {
	l = max(1, min(l, len(c.thresholds)))
	return c.thresholds[l-1]
}

// LevelFor places score on the curve. Negative and NaN scores are treated
// as 0. Progress is always in [0, 1); at the max level it is 0 and
// PointsToNext is 0.
func (c *Curve) LevelFor(score float64) Level {
	if math.IsNaN(score) || score < 0 {
		score = 0
	}

	// first index whose threshold exceeds score
	lo, hi := 0, len(c.thresholds)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if c.thresholds[mid] <= score {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	idx := lo - 1

	cur := c.thresholds[idx]
	if idx == len(c.thresholds)-1 {
		return Level{Level: idx + 1, Threshold: cur}
	}

	next := c.thresholds[idx+1]
	progress := (score - cur) / (next - cur)
	if progress >= 1 {
		progress = math.Nextafter(1, 0)
	}

	return Level{
		Level:        idx + 1,
		Progress:     progress,
		PointsToNext: next - score,
		Threshold:    cur,
	}
}
