// Package httpclient builds the HTTP clients used to talk to a Sierra API.
//
// It provides a fluent Builder that creates an http.Client with the Sierra defaults
// (60 second timeout, redirects followed), an optional fixed User-Agent, automatic
// Authorization header injection from an oauth2client.TokenManager, Prometheus request
// metrics and TLS options (custom CA, mTLS, insecure for test servers).
//
// # Features
//
//   - Fluent builder for http.Client with optional token header injection
//   - TLS 1.2+ by default, with custom CA/mTLS and optional InsecureSkipVerify
//   - Metrics transport counting calls, errors and latency per normalized route
//   - Custom timeouts, base transport override, and redirect disabling
//
// # Quick Start
//
//	client, err := httpclient.NewBuilder().
//	    WithTokenManager(tm).
//	    WithUserAgent("Sierra Api Client").
//	    WithMetrics().
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// AuthTransport only reads the current token; it never fetches one. Call
// TokenManager.EnsureValidToken before issuing requests.
package httpclient
