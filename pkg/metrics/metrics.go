package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rentwise"

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Access engine metrics
	RouteDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_gate_decisions_total",
			Help:      "Route gate decisions by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)

	ActionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "object_action_checks_total",
			Help:      "Object-action authorization checks by result",
		},
		[]string{"result"},
	)

	LookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_lookup_failures_total",
			Help:      "Store lookup failures converted to restrictive decisions",
		},
		[]string{"component"},
	)

	// Background job metrics
	SyncUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "override_sync_upserts_total",
			Help:      "Override rows written by profile synchronization",
		},
		[]string{"kind", "result"},
	)

	SweepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_sweep_transitions_total",
			Help:      "Subscriptions transitioned by the expiry sweep",
		},
		[]string{"status"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "subscription_sweep_duration_seconds",
			Help:      "Duration of a full subscription expiry sweep",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func RecordRouteDecision(allowed bool, reason string) {
	outcome := "redirect"
	if allowed {
		outcome = "allow"
	}
	RouteDecisions.WithLabelValues(outcome, reason).Inc()
}

func RecordActionCheck(allowed bool) {
	result := "deny"
	if allowed {
		result = "allow"
	}
	ActionChecks.WithLabelValues(result).Inc()
}

func RecordLookupFailure(component string) {
	LookupFailures.WithLabelValues(component).Inc()
}

func RecordSyncUpsert(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SyncUpserts.WithLabelValues(kind, result).Inc()
}

// TrackSweep returns a function that records the duration of a sweep.
func TrackSweep() func() {
	start := time.Now()
	return func() {
		SweepDuration.Observe(time.Since(start).Seconds())
	}
}
