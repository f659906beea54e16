package testutil

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
)

// DefaultTokenJSON is the token response served when no token handler is set.
const DefaultTokenJSON = `{
	"access_token": "mock-access-token",
	"token_type": "bearer",
	"expires_in": 3600
}`

// NewLocalHTTPServer starts an HTTP server bound to IPv4 loopback only.
// The sandbox blocks IPv6 listeners, so force tcp4 to keep tests runnable.
func NewLocalHTTPServer(tb testing.TB, handler http.Handler) *httptest.Server {
	tb.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to create IPv4 listener: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()

	return server
}

// RoundTripFunc allows inlining http.RoundTripper implementations.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls the underlying function.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// RecordedRequest is a snapshot of a request received by MockSierraServer.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// MockSierraServer simulates a Sierra REST API: a token endpoint plus
// resource routes registered with Handle. Every request is recorded.
type MockSierraServer struct {
	*httptest.Server

	BasePath string

	router       *mux.Router
	mu           sync.Mutex
	requests     []RecordedRequest
	tokenHandler http.HandlerFunc
}

// NewMockSierraServer starts a mock Sierra API below basePath (e.g. "/iii/sierra-api").
// The token endpoint answers with DefaultTokenJSON until SetTokenHandler is called.
// The server is closed through tb.Cleanup.
func NewMockSierraServer(tb testing.TB, basePath string) *MockSierraServer {
	tb.Helper()

	m := &MockSierraServer{
		BasePath:     "/" + strings.Trim(basePath, "/"),
		router:       mux.NewRouter(),
		tokenHandler: StaticJSON(http.StatusOK, DefaultTokenJSON),
	}
	if m.BasePath == "/" {
		m.BasePath = ""
	}

	m.router.Use(m.record)
	m.router.HandleFunc(m.BasePath+"/v4/token", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		h := m.tokenHandler
		m.mu.Unlock()
		h(w, r)
	}).Methods(http.MethodPost)

	m.Server = NewLocalHTTPServer(tb, m.router)
	tb.Cleanup(m.Server.Close)

	return m
}

// Host returns the scheme and authority of the server, without a path.
func (m *MockSierraServer) Host() string {
	return m.URL
}

// Endpoint returns the versioned API base, ending in "/v4/".
func (m *MockSierraServer) Endpoint() string {
	return m.URL + m.BasePath + "/v4/"
}

// SetTokenHandler replaces the handler of the token endpoint.
func (m *MockSierraServer) SetTokenHandler(h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenHandler = h
}

// Handle registers h for method requests to the given resource, e.g. "bibs" or "bibs/query".
func (m *MockSierraServer) Handle(method, resource string, h http.HandlerFunc) {
	m.router.HandleFunc(m.BasePath+"/v4/"+strings.TrimPrefix(resource, "/"), h).Methods(method)
}

// Requests returns the recorded requests whose path ends in suffix.
// An empty suffix returns all requests.
func (m *MockSierraServer) Requests(suffix string) []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]RecordedRequest, 0, len(m.requests))
	for _, r := range m.requests {
		if suffix == "" || strings.HasSuffix(r.Path, suffix) {
			out = append(out, r)
		}
	}
	return out
}

// TokenRequests returns the number of calls made to the token endpoint.
func (m *MockSierraServer) TokenRequests() int {
	return len(m.Requests("/v4/token"))
}

func (m *MockSierraServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     body,
		})
		m.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

// StaticJSON returns a handler that always answers with status and the given JSON body.
func StaticJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// StaticJSONResponse returns a RoundTripper that always responds with the provided JSON body.
func StaticJSONResponse(body string) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}
