package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "studio_gallery",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studio_gallery",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "studio_gallery",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	accessOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studio_gallery",
			Subsystem: "access",
			Name:      "outcomes_total",
			Help:      "Gallery access attempts by outcome.",
		},
		[]string{"kind", "outcome"},
	)

	selectionOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studio_gallery",
			Subsystem: "selection",
			Name:      "operations_total",
			Help:      "Selection add and remove operations by result.",
		},
		[]string{"op", "result"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studio_gallery",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions applied or rejected.",
		},
		[]string{"entity", "action", "result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studio_gallery",
			Subsystem: "notify",
			Name:      "dispatch_total",
			Help:      "Notification dispatches by kind and success.",
		},
		[]string{"kind", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		accessOutcomes,
		selectionOps,
		transitions,
		notifications,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordAccess counts an access gate outcome such as granted or expired
func RecordAccess(kind, outcome string) {
	accessOutcomes.WithLabelValues(kind, outcome).Inc()
}

// RecordSelection counts a selection add or remove
func RecordSelection(op, result string) {
	selectionOps.WithLabelValues(op, result).Inc()
}

// RecordTransition counts a lifecycle action
func RecordTransition(entity, action string, ok bool) {
	result := "applied"
	if !ok {
		result = "rejected"
	}
	transitions.WithLabelValues(entity, action, result).Inc()
}

// RecordNotification counts a notification dispatch
func RecordNotification(kind string, success bool) {
	s := "false"
	if success {
		s = "true"
	}
	notifications.WithLabelValues(kind, s).Inc()
}
