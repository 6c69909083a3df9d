// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sitterd"

// Job outcomes.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Notification outcomes.
const (
	NotificationCreated   = "created"
	NotificationDuplicate = "duplicate"
	NotificationError     = "error"
)

// Metrics groups every sitterd collector. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobItems      *prometheus.CounterVec
	jobFailures   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	authFailures  prometheus.Counter
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Maintenance job invocations by outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of completed maintenance job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 9),
		}, []string{"job"}),
		jobItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_items_total",
			Help:      "Entities affected by maintenance jobs (deleted, expired or notified).",
		}, []string{"job"}),
		jobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_candidate_failures_total",
			Help:      "Per-candidate failures isolated during job runs.",
		}, []string{"job"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification dispatch attempts by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Downstream notification deliveries by channel and outcome.",
		}, []string{"channel", "outcome"}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_auth_failures_total",
			Help:      "Rejected trigger requests.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobRuns, m.jobDuration, m.jobItems, m.jobFailures,
		m.notifications, m.deliveries, m.authFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveJob records a finished job run.
func (m *Metrics) ObserveJob(job, outcome string, d time.Duration, items, failures int) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	if outcome == OutcomeSkipped {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	m.jobItems.WithLabelValues(job).Add(float64(items))
	m.jobFailures.WithLabelValues(job).Add(float64(failures))
}

// ObserveNotification records one dispatch attempt.
func (m *Metrics) ObserveNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// ObserveDelivery records one downstream delivery attempt.
func (m *Metrics) ObserveDelivery(channel string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.deliveries.WithLabelValues(channel, outcome).Inc()
}

// ObserveAuthFailure records a rejected trigger request.
func (m *Metrics) ObserveAuthFailure() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}
