// Package narrative requests human readable summaries of a repository's
// activity for one interval from an external text generation service.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mchmarny/devrank/pkg/interval"
	"github.com/mchmarny/devrank/pkg/net"
	"github.com/mchmarny/devrank/pkg/score"
)

// Contributor is one entry of the snapshot's top list.
type Contributor struct {
	Username string  `json:"username"`
	Total    float64 `json:"total"`
}

// Snapshot is the metrics payload sent to the generator.
type Snapshot struct {
	Repository   string            `json:"repository"`
	IntervalType interval.Type     `json:"interval_type"`
	Start        string            `json:"start"`
	End          string            `json:"end"`
	Contributors int               `json:"contributors"`
	Scores       score.Categories  `json:"scores"`
	Activity     score.Activity    `json:"activity"`
	Top          []Contributor     `json:"top,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// NewSnapshot fills the interval fields of a Snapshot.
func NewSnapshot(repo string, iv interval.Interval) *Snapshot {
	return &Snapshot{
		Repository:   repo,
		IntervalType: iv.Type,
		Start:        iv.Start.Format(interval.DateLayout),
		End:          iv.End.Format(interval.DateLayout),
	}
}

// Generator produces prose for a snapshot. An empty string with a nil
// error means there is nothing to say.
type Generator interface {
	Summarize(ctx context.Context, s *Snapshot) (string, error)
}

// Noop never produces text.
type Noop struct{}

// Summarize implements Generator.
func (Noop) Summarize(context.Context, *Snapshot) (string, error) {
	return "", nil
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

// HTTPGenerator posts snapshots as JSON and expects {"summary": "..."}.
type HTTPGenerator struct {
	endpoint string
	client   *http.Client
}

// NewHTTPGenerator returns a generator for endpoint using timeout per call.
func NewHTTPGenerator(endpoint string, timeout time.Duration) (*HTTPGenerator, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("narrative endpoint is required")
	}
	c, err := net.GetHTTPClient(timeout)
	if err != nil {
		return nil, err
	}
	return &HTTPGenerator{endpoint: endpoint, client: c}, nil
}

// Summarize implements Generator.
func (g *HTTPGenerator) Summarize(ctx context.Context, s *Snapshot) (string, error) {
	if s == nil {
		return "", errors.New("snapshot required")
	}
	var out summaryResponse
	if err := net.PostJSON(ctx, g.client, g.endpoint, s, &out); err != nil {
		return "", fmt.Errorf("summarizing %s %s: %w", s.Repository, s.Start, err)
	}
	return strings.TrimSpace(out.Summary), nil
}
