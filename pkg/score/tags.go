package score

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// TagRule awards Points to a skill tag for each event whose paths or labels
// match one of Patterns (path.Match syntax, matched against the full path and
// its base name).
type TagRule struct {
	Tag      string   `koanf:"tag" json:"tag" yaml:"tag"`
	Patterns []string `koanf:"patterns" json:"patterns" yaml:"patterns"`
	Points   float64  `koanf:"points" json:"points" yaml:"points"`
}

// Tagger derives role and skill tag points for a day.
type Tagger struct {
	rules []TagRule
}

// NewTagger validates rules and returns a Tagger.
func NewTagger(rules []TagRule) (*Tagger, error) {
	var errs []error
	seen := make(map[string]bool)
	for i, r := range rules {
		if strings.TrimSpace(r.Tag) == "" {
			errs = append(errs, fmt.Errorf("tag rule %d: tag is required", i))
			continue
		}
		if seen[r.Tag] {
			errs = append(errs, fmt.Errorf("tag rule %q: duplicate tag", r.Tag))
		}
		seen[r.Tag] = true
		if len(r.Patterns) == 0 {
			errs = append(errs, fmt.Errorf("tag rule %q: at least one pattern is required", r.Tag))
		}
		if r.Points <= 0 {
			errs = append(errs, fmt.Errorf("tag rule %q: points must be positive", r.Tag))
		}
		for _, p := range r.Patterns {
			if _, err := path.Match(p, ""); err != nil {
				errs = append(errs, fmt.Errorf("tag rule %q: bad pattern %q: %w", r.Tag, p, err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Tagger{rules: rules}, nil
}

// Apply fills ds.Tags with role tags (points per category) and skill tags
// (points per matching event).
func (t *Tagger) Apply(ds *DailyScore, events []*Event) {
	tags := make(map[string]float64)
	for name, pts := range ds.Scores.ByName() {
		if pts > 0 {
			tags[name] = pts
		}
	}

	if t != nil {
		for _, e := range events {
			if e == nil {
				continue
			}
			for _, r := range t.rules {
				if r.matches(e) {
					tags[r.Tag] += r.Points
				}
			}
		}
	}

	ds.Tags = tags
}

func (r TagRule) matches(e *Event) bool {
	for _, p := range r.Patterns {
		for _, f := range e.Paths {
			if ok, _ := path.Match(p, f); ok {
				return true
			}
			if ok, _ := path.Match(p, path.Base(f)); ok {
				return true
			}
		}
		for _, l := range e.Labels {
			if ok, _ := path.Match(p, l); ok {
				return true
			}
		}
	}
	return false
}

// DefaultTagRules returns a small set of language and area skill tags.
func DefaultTagRules() []TagRule {
	return []TagRule{
		{Tag: "go", Patterns: []string{"*.go", "go.mod"}, Points: 1},
		{Tag: "typescript", Patterns: []string{"*.ts", "*.tsx"}, Points: 1},
		{Tag: "python", Patterns: []string{"*.py"}, Points: 1},
		{Tag: "docs", Patterns: []string{"*.md", "docs/*", "documentation"}, Points: 1},
		{Tag: "ci", Patterns: []string{".github/workflows/*", "Makefile", "ci"}, Points: 1},
		{Tag: "testing", Patterns: []string{"*_test.go", "*.test.ts", "test_*.py", "tests"}, Points: 1},
		{Tag: "bugfix", Patterns: []string{"bug"}, Points: 1},
	}
}
