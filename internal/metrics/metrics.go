// Package metrics holds the Prometheus collectors, registered on the default
// registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// TransitionsTotal counts approve/reject calls by outcome ("ok" or an error kind).
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_transitions_total",
		Help: "Storage request transitions by action and outcome.",
	}, []string{"action", "outcome"})

	TransitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storage_transition_duration_seconds",
		Help:    "Time spent in approve/reject transactions.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"action"})

	WorkflowFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_workflow_fallback_total",
		Help: "Workflow derivations that matched no rule.",
	})

	// NotificationsTotal counts drained outbox entries by outcome: delivered, failed, skipped.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_notifications_total",
		Help: "Outbox entries processed by the notification worker.",
	}, []string{"outcome"})

	OutboxStuck = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storage_outbox_stuck",
		Help: "Outbox entries that exhausted their delivery attempts (as of the last check).",
	})
)
