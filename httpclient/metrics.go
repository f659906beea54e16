package httpclient

import (
	"errors"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AmmannChristian/go-sierra/internal/metrics"
)

// metricsTransport wraps an http.RoundTripper to collect metrics on Sierra API calls.
type metricsTransport struct {
	base http.RoundTripper
}

// NewMetricsTransport creates a transport wrapper that records request counts,
// latencies and errors for every call it forwards.
func NewMetricsTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &metricsTransport{base: base}
}

// RoundTrip implements http.RoundTripper, wrapping the base transport with metrics collection.
func (t *metricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	route := normalizeSierraRoute(req.URL.Path)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}

	metrics.SierraAPICalls.WithLabelValues(req.Method, route, strconv.Itoa(statusCode)).Inc()
	metrics.SierraAPIDuration.WithLabelValues(req.Method, route).Observe(float64(duration.Milliseconds()))

	if err != nil || statusCode >= 400 {
		metrics.SierraAPIErrors.WithLabelValues(route, classifySierraError(statusCode, err)).Inc()
	}

	return resp, err
}

var (
	numericSegment = regexp.MustCompile(`/\d+(/|$)`)
	versionPrefix  = regexp.MustCompile(`^.*?/v\d+/`)
)

// normalizeSierraRoute strips the deployment base path and replaces record ids,
// e.g. "/iii/sierra-api/v4/bibs/1234567/marc" becomes "bibs/:id/marc".
func normalizeSierraRoute(path string) string {
	route := versionPrefix.ReplaceAllString(path, "")
	// Run twice so adjacent ids ("/1/2") are both replaced.
	for i := 0; i < 2; i++ {
		route = numericSegment.ReplaceAllString(route, "/:id$1")
	}
	route = strings.Trim(route, "/")
	if route == "" {
		return "/"
	}
	return route
}

// classifySierraError categorizes failed calls for metrics.
func classifySierraError(statusCode int, err error) string {
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) || strings.Contains(err.Error(), "timeout") {
			return "timeout"
		}
		return "network"
	}

	switch {
	case statusCode == http.StatusUnauthorized:
		return "unauthorized"
	case statusCode == http.StatusForbidden:
		return "forbidden"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 500:
		return "server_error"
	case statusCode >= 400:
		return "client_error"
	default:
		return "unknown"
	}
}
