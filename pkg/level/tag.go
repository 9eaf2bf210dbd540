package level

import (
	"maps"
	"slices"
	"time"
)

// TagScore is a contributor's cumulative score and level for one tag.
type TagScore struct {
	Contributor  string    `json:"contributor" yaml:"contributor"`
	Tag          string    `json:"tag" yaml:"tag"`
	Score        float64   `json:"score" yaml:"score"`
	Level        int       `json:"level" yaml:"level"`
	Progress     float64   `json:"progress" yaml:"progress"`
	PointsToNext float64   `json:"points_to_next" yaml:"pointsToNext"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updatedAt"`
}

// TagScores levels every cumulative tag total, ordered by tag name.
func (c *Curve) TagScores(contributor string, totals map[string]float64, now time.Time) []*TagScore {
	list := make([]*TagScore, 0, len(totals))
	for _, tag := range slices.Sorted(maps.Keys(totals)) {
		score := totals[tag]
		l := c.LevelFor(score)
		list = append(list, &TagScore{
			Contributor:  contributor,
			Tag:          tag,
			Score:        score,
			Level:        l.Level,
			Progress:     l.Progress,
			PointsToNext: l.PointsToNext,
			UpdatedAt:    now,
		})
	}
	return list
}
