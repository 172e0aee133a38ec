// Package metrics exposes run counters and aggregate gauges through a dedicated Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

const namespace = "loc_stats"

// Recorder owns the registry and every collector of a run.
type Recorder struct {
	registry     *prometheus.Registry
	repositories *prometheus.CounterVec
	walks        *prometheus.CounterVec
	quotaWaits   prometheus.Counter
	quotaSeconds prometheus.Counter
	lines        *prometheus.GaugeVec
}

// NewRecorder builds a Recorder on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		repositories: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repositories_total",
			Help:      "Repositories processed, by terminal outcome.",
		}, []string{"outcome"}),
		walks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_walks_total",
			Help:      "History-walk fallbacks, by result.",
		}, []string{"result"}),
		quotaWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_waits_total",
			Help:      "Pauses caused by the remaining API quota dropping below the floor.",
		}),
		quotaSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_wait_seconds_total",
			Help:      "Time spent waiting for the API quota to reset.",
		}),
		lines: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lines",
			Help:      "Aggregated changed lines per window.",
		}, []string{"window", "kind"}),
	}
	r.registry.MustRegister(r.repositories, r.walks, r.quotaWaits, r.quotaSeconds, r.lines)
	return r
}

// Registry returns the registry for exposition.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Outcome counts one repository reaching a terminal outcome.
func (r *Recorder) Outcome(outcome string) {
	r.repositories.WithLabelValues(outcome).Inc()
}

// Walk counts one history walk.
func (r *Recorder) Walk(ok bool) {
	result := "empty"
	if ok {
		result = "ok"
	}
	r.walks.WithLabelValues(result).Inc()
}

// QuotaWait counts one quota pause of duration d.
func (r *Recorder) QuotaWait(d time.Duration) {
	r.quotaWaits.Inc()
	r.quotaSeconds.Add(d.Seconds())
}

// SetAggregate publishes the window totals.
func (r *Recorder) SetAggregate(result domain.AggregateResult) {
	for _, t := range result {
		r.lines.WithLabelValues(t.Window, "additions").Set(float64(t.Additions))
		r.lines.WithLabelValues(t.Window, "deletions").Set(float64(t.Deletions))
		r.lines.WithLabelValues(t.Window, "total").Set(float64(t.Total))
	}
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
