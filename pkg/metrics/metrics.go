package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registrations counts registration attempts by result (created|conflict|error).
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifyd_registrations_total",
			Help: "Total number of registration attempts",
		},
		[]string{"result"},
	)

	// CodeVerifications counts code checks by outcome (ok|mismatch|expired|exhausted).
	CodeVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifyd_code_verifications_total",
			Help: "Total number of verification code checks",
		},
		[]string{"result"},
	)

	// ReviewSessions tracks currently connected admin review sessions.
	ReviewSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "verifyd_review_sessions",
			Help: "Number of connected admin review sessions",
		},
	)

	// EventsDropped counts review events discarded by the backpressure policy.
	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verifyd_review_events_dropped_total",
			Help: "Review events dropped for slow subscribers",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verifyd_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
