// Package metrics provides Prometheus metrics for the engine
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Sessions
	SessionsStarted *prometheus.CounterVec
	SessionsEnded   *prometheus.CounterVec

	// Alerts
	AlertsEnqueued   *prometheus.CounterVec
	AlertsDelivered  *prometheus.CounterVec
	AlertSendLatency *prometheus.HistogramVec

	// Workers
	WorkerRuns *prometheus.CounterVec
}

// New registers metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mattressai_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mattressai_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		SessionsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mattressai_sessions_started_total",
				Help: "Sessions created or resumed",
			},
			[]string{"result"},
		),
		SessionsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mattressai_sessions_ended_total",
				Help: "Sessions ended, by end reason",
			},
			[]string{"reason"},
		),
		AlertsEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mattressai_alerts_enqueued_total",
				Help: "Alerts created, by channel and initial status",
			},
			[]string{"channel", "status"},
		),
		AlertsDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mattressai_alert_deliveries_total",
				Help: "Alert delivery attempts, by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		AlertSendLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mattressai_alert_send_duration_seconds",
				Help:    "Duration of channel sends in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"channel"},
		),
		WorkerRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mattressai_worker_runs_total",
				Help: "Background worker iterations",
			},
			[]string{"worker", "status"},
		),
	}
}

// RecordHTTPRequest records a served request
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSessionStart records a created or resumed session
func (m *Metrics) RecordSessionStart(reused bool) {
	if m == nil {
		return
	}
	result := "created"
	if reused {
		result = "resumed"
	}
	m.SessionsStarted.WithLabelValues(result).Inc()
}

// RecordSessionEnd records a session end
func (m *Metrics) RecordSessionEnd(reason string) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(reason).Inc()
}

// RecordAlertEnqueued records an alert row creation
func (m *Metrics) RecordAlertEnqueued(channel, status string) {
	if m == nil {
		return
	}
	m.AlertsEnqueued.WithLabelValues(channel, status).Inc()
}

// RecordAlertDelivery records a send attempt outcome: sent, retry, failed or skipped
func (m *Metrics) RecordAlertDelivery(channel, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AlertsDelivered.WithLabelValues(channel, outcome).Inc()
	if duration > 0 {
		m.AlertSendLatency.WithLabelValues(channel).Observe(duration.Seconds())
	}
}

// RecordWorkerRun records one worker iteration
func (m *Metrics) RecordWorkerRun(worker string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.WorkerRuns.WithLabelValues(worker, status).Inc()
}
