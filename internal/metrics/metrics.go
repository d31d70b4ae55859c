// Package metrics registers the relay's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProbesTotal counts health probes by outcome ("success" or "failure").
	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voiceclear_health_probes_total",
		Help: "Health probes issued against monitored backends, by outcome.",
	}, []string{"outcome"})

	// TransitionsTotal counts health state transitions by direction
	// ("recovered" or "down").
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voiceclear_health_transitions_total",
		Help: "Edge-triggered health state transitions, by direction.",
	}, []string{"direction"})

	// NotificationsTotal counts notification attempts by result
	// ("sent", "skipped", "failed", "not_configured").
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voiceclear_notifications_total",
		Help: "Operator notification attempts, by result.",
	}, []string{"result"})

	// ActiveSessions tracks task workflow sessions currently in a
	// non-terminal state.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voiceclear_active_sessions",
		Help: "Task workflow sessions currently uploading or processing.",
	})

	// RequestDuration observes relay HTTP handler latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voiceclear_http_request_duration_seconds",
		Help:    "Relay HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
