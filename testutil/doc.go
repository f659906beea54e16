// Package testutil provides test helpers for go-sierra packages and their users.
//
// It includes utilities to spin up IPv4-only local HTTP servers (avoiding IPv6 in sandboxes)
// and a mock Sierra REST API that records every request it receives.
//
// # Utilities
//
//   - NewLocalHTTPServer: start httptest server bound to 127.0.0.1
//   - MockSierraServer: token endpoint plus resource routes, request recording
//   - StaticJSON / StaticJSONResponse: canned JSON handlers and RoundTrippers
//   - RoundTripFunc: inline http.RoundTripper implementations
package testutil
