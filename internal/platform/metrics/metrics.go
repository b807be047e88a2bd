// Package metrics exposes process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CircleOperations counts engine operations by name and result code.
	CircleOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osusu_circle_operations_total",
			Help: "Circle engine operations by operation name and result code.",
		},
		[]string{"operation", "code"},
	)

	// RequestDuration observes HTTP request latency by route.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osusu_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// FeedSubscribers tracks live event feed subscriber counts per circle.
	FeedSubscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osusu_feed_subscribers",
			Help: "Connected event feed subscribers by circle id.",
		},
		[]string{"circle_id"},
	)

	// VolumeDistributed accumulates contribution units moved by payouts.
	VolumeDistributed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osusu_volume_distributed_total",
			Help: "Total contribution units distributed through payouts.",
		},
	)
)

// ObserveOperation records one engine operation outcome.
// An empty code is recorded as "ok".
func ObserveOperation(operation string, code string) {
	if code == "" {
		code = "ok"
	}
	CircleOperations.WithLabelValues(operation, code).Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
