package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dmapctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total console HTTP requests.",
		},
		[]string{"node", "method", "route", "protocol", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dmapctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Console HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "route", "protocol", "status"},
	)
	backendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dmapctl",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Requests issued to the data concentrator backend.",
		},
		[]string{"op", "status", "success"},
	)
	backendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dmapctl",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Data concentrator request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "status", "success"},
	)
	cacheFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dmapctl",
			Subsystem: "cache",
			Name:      "fetches_total",
			Help:      "Resource cache fetches by trigger key and outcome.",
		},
		[]string{"key", "outcome"},
	)
	cacheCoalesced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dmapctl",
			Subsystem: "cache",
			Name:      "coalesced_total",
			Help:      "Observations that attached to an in-flight fetch.",
		},
		[]string{"key"},
	)
	gateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dmapctl",
			Subsystem: "creation",
			Name:      "transitions_total",
			Help:      "Creation gate phase transitions.",
		},
		[]string{"protocol", "from", "to"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			backendRequests,
			backendDuration,
			cacheFetches,
			cacheCoalesced,
			gateTransitions,
		)
	})
}

func RecordHTTPRequest(node, method, route, protocol string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, route, protocol, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, route, protocol, statusLabel).Observe(duration.Seconds())
}

// RecordBackendRequest counts one backend call; status 0 means no response arrived.
func RecordBackendRequest(op string, status int, duration time.Duration, success bool) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	successLabel := strconv.FormatBool(success)
	backendRequests.WithLabelValues(op, statusLabel, successLabel).Inc()
	backendDuration.WithLabelValues(op, statusLabel, successLabel).Observe(duration.Seconds())
}

func RecordCacheFetch(key, outcome string) {
	RegisterMetrics()
	cacheFetches.WithLabelValues(key, outcome).Inc()
}

func RecordCacheCoalesced(key string) {
	RegisterMetrics()
	cacheCoalesced.WithLabelValues(key).Inc()
}

func RecordGateTransition(protocol, from, to string) {
	RegisterMetrics()
	gateTransitions.WithLabelValues(protocol, from, to).Inc()
}
