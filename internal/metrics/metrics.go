// Package metrics exposes the security counters in Prometheus format.
// Swallowed observability errors (audit writes, alert sends) surface here
// instead of propagating to request handlers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LoginAttemptsTotal counts login attempts by outcome
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Total number of login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// LockoutsTotal counts transitions into the locked state by scope
	LockoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Total number of lockouts by scope",
		},
		[]string{"scope"},
	)

	// RateLimitTripsTotal counts denied requests by endpoint class
	RateLimitTripsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "ratelimit",
			Name:      "trips_total",
			Help:      "Total number of rate-limited requests by endpoint class",
		},
		[]string{"class"},
	)

	// AuditWriteFailuresTotal counts audit entries that could not be persisted
	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Total number of audit log writes that failed and were swallowed",
		},
	)

	// SuspiciousActivityTotal counts detected suspicious-activity crossings
	SuspiciousActivityTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "audit",
			Name:      "suspicious_activity_total",
			Help:      "Total number of suspicious-activity threshold crossings",
		},
	)

	// AlertFailuresTotal counts admin alert emails that could not be sent
	AlertFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "notify",
			Name:      "alert_failures_total",
			Help:      "Total number of admin alerts that failed to send",
		},
	)
)

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
