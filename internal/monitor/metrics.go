package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the judging engine.
type Metrics struct {
	Registry *prometheus.Registry

	GradesTotal      *prometheus.CounterVec
	GradeDuration    *prometheus.HistogramVec
	CaseVerdicts     *prometheus.CounterVec
	CompileFailures  *prometheus.CounterVec
	ActiveGrades     prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	RequestsInFlight prometheus.Gauge
	CodeSizeBytes    prometheus.Histogram
	OutputSizeBytes  prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		GradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "judge",
				Name:      "grades_total",
				Help:      "Total grading passes by language and outcome.",
			},
			[]string{"language", "status"},
		),

		GradeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "judge",
				Name:      "grade_duration_seconds",
				Help:      "Duration of full grading passes in seconds.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"language"},
		),

		CaseVerdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "judge",
				Name:      "case_verdicts_total",
				Help:      "Per-test-case verdicts by language and status.",
			},
			[]string{"language", "status"},
		),

		CompileFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "judge",
				Name:      "compile_failures_total",
				Help:      "Submissions rejected by the guest toolchain.",
			},
			[]string{"language"},
		),

		ActiveGrades: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "judge",
				Name:      "active_grades",
				Help:      "Number of grading passes currently in flight.",
			},
		),

		SessionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "judge",
				Name:      "session_events_total",
				Help:      "Terminal session transitions by kind.",
			},
			[]string{"kind"},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "judge",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		CodeSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "judge",
				Name:      "code_size_bytes",
				Help:      "Size of submitted source in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "judge",
				Name:      "output_size_bytes",
				Help:      "Size of captured case output in bytes.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
	}

	reg.MustRegister(
		m.GradesTotal,
		m.GradeDuration,
		m.CaseVerdicts,
		m.CompileFailures,
		m.ActiveGrades,
		m.SessionEvents,
		m.RequestsInFlight,
		m.CodeSizeBytes,
		m.OutputSizeBytes,
	)

	return m
}

// RecordGrade records metrics for a completed grading pass.
func (m *Metrics) RecordGrade(language, status string, durationSec float64) {
	m.GradesTotal.WithLabelValues(language, status).Inc()
	m.GradeDuration.WithLabelValues(language).Observe(durationSec)
}

// RecordCase records one test case verdict.
func (m *Metrics) RecordCase(language, status string) {
	m.CaseVerdicts.WithLabelValues(language, status).Inc()
}

// RecordSessionEvent records a terminal session transition.
func (m *Metrics) RecordSessionEvent(kind string) {
	m.SessionEvents.WithLabelValues(kind).Inc()
}
