// Package metrics holds the Prometheus collectors shared by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts analytics operations by outcome
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_requests_total",
			Help: "Total number of analytics operations",
		},
		[]string{"operation", "status"},
	)

	// RequestDuration observes analytics operation latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insight_request_duration_seconds",
			Help:    "Analytics operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	// HTTPRequestsTotal counts HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// AnomaliesDetected counts detected anomalies
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_anomalies_detected_total",
			Help: "Total number of anomalies detected",
		},
		[]string{"type", "severity"},
	)

	// AlertHistorySize tracks the alert ring length
	AlertHistorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "insight_alert_history_size",
			Help: "Number of alerts currently held in history",
		},
	)

	// AlertsPublished counts alert batches handed to the queue
	AlertsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_alerts_published_total",
			Help: "Total number of alert batches published",
		},
		[]string{"status"},
	)

	// CacheRequests counts cache lookups
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_cache_requests_total",
			Help: "Total number of cache lookups",
		},
		[]string{"cache", "result"},
	)

	// SourceRecords observes how many records a fetch returned
	SourceRecords = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insight_source_records",
			Help:    "Records returned per source fetch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"data_type"},
	)
)

// ObserveCache records a cache hit or miss
func ObserveCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequests.WithLabelValues(cache, result).Inc()
}
