package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "airfield_alerts"

// Metrics holds the Prometheus collectors shared by the sweeper and the stream evaluator.
type Metrics struct {
	SweepRuns     *prometheus.CounterVec // labels: outcome={success,failed,skipped}
	SweepDuration prometheus.Histogram

	ObservationFetches *prometheus.CounterVec // labels: outcome={success,error}
	ObservationCache   *prometheus.CounterVec // labels: result={hit,miss}

	AlertsCreated    *prometheus.CounterVec // labels: type, severity
	AlertsSuppressed prometheus.Counter
	AlertsExpired    prometheus.Counter
	PersistErrors    prometheus.Counter

	EvaluationRequests *prometheus.CounterVec // labels: outcome={processed,decode_error}

	APIRequests *prometheus.CounterVec // labels: route, status
}

// NewMetrics creates the collectors and registers them with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SweepRuns,
		m.SweepDuration,
		m.ObservationFetches,
		m.ObservationCache,
		m.AlertsCreated,
		m.AlertsSuppressed,
		m.AlertsExpired,
		m.PersistErrors,
		m.EvaluationRequests,
		m.APIRequests,
	)
	return m
}

// NewMetricsForTesting returns unregistered collectors so tests can build as
// many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Threshold sweeps by outcome.",
		}, []string{"outcome"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a complete threshold sweep.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ObservationFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observation_fetches_total",
			Help:      "Weather provider requests by outcome.",
		}, []string{"outcome"}),
		ObservationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observation_cache_total",
			Help:      "Observation cache lookups by result.",
		}, []string{"result"}),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts inserted by type and severity.",
		}, []string{"type", "severity"}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Candidate alerts dropped because an identical alert is already active.",
		}),
		AlertsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_expired_total",
			Help:      "Active alerts deactivated after their expiry time.",
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Failed alert store reads and writes.",
		}),
		EvaluationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_requests_total",
			Help:      "Evaluation requests consumed from Kafka by outcome.",
		}, []string{"outcome"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "HTTP API requests by route template and status code.",
		}, []string{"route", "status"}),
	}
}
