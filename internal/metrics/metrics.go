// Package metrics exposes Prometheus counters for transform runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elliots/useexports/internal/transform"
)

const namespace = "useexports"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	registry *prometheus.Registry

	filesTotal       *prometheus.CounterVec
	exportsTotal     prometheus.Counter
	rewrittenTotal   prometheus.Counter
	rejectedTotal    *prometheus.CounterVec
	unsupportedTotal prometheus.Counter
	cacheTotal       *prometheus.CounterVec
	duration         *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		// Labels: status (changed, unchanged, error)
		filesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed by outcome",
		}, []string{"status"}),

		exportsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Exported functions collected",
		}),

		rewrittenTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "references_rewritten_total",
			Help:      "References rewritten to exports member accesses",
		}),

		// Labels: reason (declaration-name, export-specifier, export-assignment, shadowed, unresolved)
		rejectedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "references_rejected_total",
			Help:      "Identifier occurrences left untouched by reason",
		}, []string{"reason"}),

		unsupportedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unsupported_target_total",
			Help:      "Transforms refused because the module target does not emit CommonJS",
		}),

		// Labels: result (hit, miss)
		cacheTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_total",
			Help:      "Content hash cache lookups",
		}, []string{"result"}),

		// Labels: source (batch, server, watch)
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transform_duration_seconds",
			Help:      "Time to parse, rewrite and print one file",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"source"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveResult records one transformed file. A nil m is a no-op, so
// callers can run without metrics.
func (m *Metrics) ObserveResult(source string, result *transform.Result, d time.Duration) {
	if m == nil {
		return
	}
	status := "unchanged"
	if result.Changed() {
		status = "changed"
	}
	m.filesTotal.WithLabelValues(status).Inc()
	m.exportsTotal.Add(float64(len(result.Exports)))
	m.rewrittenTotal.Add(float64(len(result.Rewritten)))
	for _, r := range result.Rejected {
		m.rejectedTotal.WithLabelValues(string(r.Reason)).Inc()
	}
	m.duration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveError records a file that failed to parse or print.
func (m *Metrics) ObserveError() {
	if m == nil {
		return
	}
	m.filesTotal.WithLabelValues("error").Inc()
}

// ObserveUnsupported records a refused module target.
func (m *Metrics) ObserveUnsupported() {
	if m == nil {
		return
	}
	m.unsupportedTotal.Inc()
}

// ObserveCache records a cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheTotal.WithLabelValues(result).Inc()
}
