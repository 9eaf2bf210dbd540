// Package metrics records scoring run counters in a Prometheus registry
// that can be written to a node-exporter textfile after a batch run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "devrank"
	subsystem = "score"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithRegistry uses a caller supplied registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(rec *Recorder) {
		if r != nil {
			rec.registry = r
		}
	}
}

// WithHistogramBuckets overrides the step duration buckets.
func WithHistogramBuckets(buckets []float64) Option {
	return func(rec *Recorder) {
		if len(buckets) > 0 {
			rec.buckets = buckets
		}
	}
}

// Recorder holds the run metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry
	buckets  []float64

	entities     *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	badges       *prometheus.CounterVec
	lastRun      prometheus.Gauge
	partial      prometheus.Gauge
}

// NewRecorder registers the run metrics on a private registry.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		buckets:  prometheus.DefBuckets,
	}
	for _, o := range opts {
		o(r)
	}

	f := promauto.With(r.registry)
	r.entities = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "entities_total",
		Help:      "Entities processed per pass by final state.",
	}, []string{"pass", "state"})
	r.stepDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "entity_duration_seconds",
		Help:      "Time spent computing one entity.",
		Buckets:   r.buckets,
	}, []string{"pass"})
	r.badges = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "badges_awarded_total",
		Help:      "Badges created or upgraded.",
	}, []string{"type", "tier"})
	r.lastRun = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished.",
	})
	r.partial = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "last_run_partial",
		Help:      "1 when the last run stopped early on shutdown.",
	})

	return r
}

// Entity counts one entity in its final state.
func (r *Recorder) Entity(pass, state string, d time.Duration) {
	if r == nil {
		return
	}
	r.entities.WithLabelValues(pass, state).Inc()
	if d > 0 {
		r.stepDuration.WithLabelValues(pass).Observe(d.Seconds())
	}
}

// Badge counts an awarded badge.
func (r *Recorder) Badge(badgeType, tier string) {
	if r == nil {
		return
	}
	r.badges.WithLabelValues(badgeType, tier).Inc()
}

// RunFinished stamps the end of a run.
func (r *Recorder) RunFinished(at time.Time, partial bool) {
	if r == nil {
		return
	}
	r.lastRun.Set(float64(at.Unix()))
	if partial {
		r.partial.Set(1)
	} else {
		r.partial.Set(0)
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all metrics in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
