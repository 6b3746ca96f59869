// Package metrics counts pages, fetches and merges for a run and writes them
// as a Prometheus textfile.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Metrics holds the run's collectors on a private registry. A nil *Metrics
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	PagesRendered *prometheus.CounterVec
	FetchFailures *prometheus.CounterVec
	GroupsFailed  *prometheus.CounterVec
	RoundsMerged  prometheus.Counter
	FetchDuration *prometheus.HistogramVec
}

// FetchBuckets covers quick static image calls up to slow print service exports.
var FetchBuckets = []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}

// New registers the collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		PagesRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streetmaps",
			Name:      "pages_rendered_total",
			Help:      "Pages saved, by page kind and status.",
		}, []string{"kind", "status"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streetmaps",
			Name:      "fetch_failures_total",
			Help:      "Map fetches that failed after retries.",
		}, []string{"provider"}),
		GroupsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streetmaps",
			Name:      "groups_failed_total",
			Help:      "Groups dropped from a run, by failing step.",
		}, []string{"step"}),
		RoundsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streetmaps",
			Name:      "rounds_merged_total",
			Help:      "Round documents merged.",
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "streetmaps",
			Name:      "fetch_duration_seconds",
			Help:      "Wall time of map fetches including retries.",
			Buckets:   FetchBuckets,
		}, []string{"provider"}),
	}
	m.reg.MustRegister(m.PagesRendered, m.FetchFailures, m.GroupsFailed, m.RoundsMerged, m.FetchDuration)
	return m
}

// ObserveFetch records one fetch. Its signature matches the mapclient observer.
func (m *Metrics) ObserveFetch(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(provider).Observe(d.Seconds())
	if err != nil {
		m.FetchFailures.WithLabelValues(provider).Inc()
	}
}

// PageRendered counts a saved page.
func (m *Metrics) PageRendered(kind, status string) {
	if m == nil {
		return
	}
	m.PagesRendered.WithLabelValues(kind, status).Inc()
}

// GroupFailed counts a group dropped at step.
func (m *Metrics) GroupFailed(step string) {
	if m == nil {
		return
	}
	m.GroupsFailed.WithLabelValues(step).Inc()
}

// RoundMerged counts a merged round document.
func (m *Metrics) RoundMerged() {
	if m == nil {
		return
	}
	m.RoundsMerged.Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WriteTextfile writes the current values for the node exporter textfile
// collector. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "metrics: create textfile dir")
	}
	return eris.Wrap(prometheus.WriteToTextfile(path, m.reg), "metrics: write textfile")
}
