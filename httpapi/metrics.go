package httpapi

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// requestsTotal counts resource operations by HTTP method and
	// response status.
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldgraph_requests_total",
			Help: "Count of resource operations by method and status",
		},
		[]string{"method", "status"},
	)

	// requestDuration tracks operation latency in seconds by HTTP method.
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ldgraph_request_duration_seconds",
			Help:    "Resource operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1e-4, 2, 16), // 100us to ~3s
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
}

func recordRequest(method string, status int, elapsed float64) {
	requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method).Observe(elapsed)
}
