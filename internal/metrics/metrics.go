// Package metrics holds the Prometheus collectors for Sierra API traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SierraAPICalls counts Sierra API requests by method, route and status code.
	SierraAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sierra_api_requests_total",
			Help: "Total number of Sierra API requests",
		},
		[]string{"method", "route", "status"},
	)

	// SierraAPIDuration observes Sierra API latency in milliseconds.
	SierraAPIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sierra_api_request_duration_milliseconds",
			Help:    "Sierra API request duration in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 60000},
		},
		[]string{"method", "route"},
	)

	// SierraAPIErrors counts failed Sierra API requests by error class.
	SierraAPIErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sierra_api_errors_total",
			Help: "Total number of failed Sierra API requests",
		},
		[]string{"route", "type"},
	)
)
