package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	AuthRejections      *prometheus.CounterVec
	RateLimited         prometheus.Counter

	GoalTransitions    *prometheus.CounterVec
	ProgressUpdates    *prometheus.CounterVec
	DownstreamFailures *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		AuthRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_rejections_total",
				Help: "Total number of unauthorized requests",
			},
			[]string{"reason"},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),
		GoalTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goal_transitions_total",
				Help: "Goal state transitions committed to the store",
			},
			[]string{"from", "to"},
		),
		ProgressUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goal_progress_updates_total",
				Help: "Per-goal outcomes of progress reports",
			},
			[]string{"outcome"},
		),
		DownstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "downstream_failures_total",
				Help: "Failed calls to the user and training services",
			},
			[]string{"service"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthRejections,
		m.RateLimited,
		m.GoalTransitions,
		m.ProgressUpdates,
		m.DownstreamFailures,
	)
	return m
}

// ObserveTransition counts a committed state change.
func (m *Metrics) ObserveTransition(from, to string) {
	m.GoalTransitions.WithLabelValues(from, to).Inc()
}

// ObserveProgress counts one goal's outcome in a progress report.
func (m *Metrics) ObserveProgress(outcome string) {
	m.ProgressUpdates.WithLabelValues(outcome).Inc()
}

// ObserveDownstreamFailure counts a failed call to service.
func (m *Metrics) ObserveDownstreamFailure(service string) {
	m.DownstreamFailures.WithLabelValues(service).Inc()
}
