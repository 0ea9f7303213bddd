package finder

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports case processing metrics in Prometheus format. A nil
// *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	registrations *prometheus.CounterVec
	warnings      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	matchLatency  *prometheus.HistogramVec
	openCases     prometheus.Gauge
}

// NewMetrics registers the collectors on registry (a new one when nil).
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{registry: registry}

	m.registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "missing_finder",
			Name:      "registrations_total",
			Help:      "Case registrations by outcome",
		},
		[]string{"outcome"},
	)
	m.warnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "missing_finder",
			Name:      "warnings_total",
			Help:      "Advisory enrichment failures by code",
		},
		[]string{"code"},
	)
	m.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "missing_finder",
			Name:      "lifecycle_transitions_total",
			Help:      "Lifecycle operations by kind and outcome",
		},
		[]string{"transition", "outcome"},
	)
	m.matchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "missing_finder",
			Name:      "match_duration_seconds",
			Help:      "Time spent ranking open cases",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method"},
	)
	m.openCases = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "missing_finder",
			Name:      "open_cases",
			Help:      "Number of open cases in the match index",
		},
	)

	registry.MustRegister(m.registrations, m.warnings, m.transitions, m.matchLatency, m.openCases)
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) registration(outcome string, warnings []Warning) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
	for _, w := range warnings {
		m.warnings.WithLabelValues(w.Code).Inc()
	}
}

func (m *Metrics) transition(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.transitions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) matched(method string, start time.Time) {
	if m == nil {
		return
	}
	m.matchLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (m *Metrics) setOpenCases(n int) {
	if m == nil {
		return
	}
	m.openCases.Set(float64(n))
}
