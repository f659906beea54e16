package oauth2client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/AmmannChristian/go-sierra/testutil"
)

type stubCache struct {
	mu     sync.Mutex
	values map[string][]byte
	setErr error
	sets   int
}

func newStubCache() *stubCache {
	return &stubCache{values: make(map[string][]byte)}
}

func (c *stubCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *stubCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.values[key] = value
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(tb testing.TB, server *testutil.MockSierraServer, opts ...Option) *TokenManager {
	tb.Helper()
	return NewTokenManager(context.Background(), server.Endpoint()+"token", "test-key", "test-secret", opts...)
}

func TestNewTokenManager(t *testing.T) {
	tm := NewTokenManager(context.Background(), "https://sierra.example.edu/iii/sierra-api/v4/token", "key", "secret")

	if tm == nil {
		t.Fatal("TokenManager should not be nil")
	}
	if tm.config.ClientID != "key" {
		t.Errorf("expected ClientID key, got %s", tm.config.ClientID)
	}
	if tm.config.ClientSecret != "secret" {
		t.Errorf("expected ClientSecret secret, got %s", tm.config.ClientSecret)
	}
	if tm.config.TokenURL != "https://sierra.example.edu/iii/sierra-api/v4/token" {
		t.Errorf("unexpected TokenURL %s", tm.config.TokenURL)
	}
	if tm.expiryLeeway != 0 {
		t.Errorf("expected zero expiryLeeway, got %v", tm.expiryLeeway)
	}
	if tm.Token() != nil {
		t.Error("new manager should not hold a token")
	}
}

func TestNewTokenManager_NilContext(t *testing.T) {
	//lint:ignore SA1012 intentionally verify nil context falls back to background
	//nolint:staticcheck // golangci-lint
	tm := NewTokenManager(nil, "https://sierra.example.edu/v4/token", "key", "secret")

	if tm.ctx == nil {
		t.Fatal("context should not be nil (should use Background)")
	}
}

func TestTokenManager_FetchToken_Request(t *testing.T) {
	server := testutil.NewMockSierraServer(t, "/iii/sierra-api")
	tm := newTestManager(t, server)

	if err := tm.FetchToken(context.Background()); err != nil {
		t.Fatalf("FetchToken failed: %v", err)
	}

	reqs := server.Requests("/v4/token")
	if len(reqs) != 1 {
		t.Fatalf("expected 1 token request, got %d", len(reqs))
	}
	req := reqs[0]

	if req.Path != "/iii/sierra-api/v4/token" {
		t.Errorf("unexpected token path: %s", req.Path)
	}

	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("test-key:test-secret"))
	if got := req.Header.Get("Authorization"); got != wantAuth {
		t.Errorf("expected Authorization %q, got %q", wantAuth, got)
	}

	if got := req.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("unexpected Content-Type: %s", got)
	}

	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		t.Fatalf("token body is not form encoded: %v", err)
	}
	if form.Get("grant_type") != "client_credentials" {
		t.Errorf("expected grant_type=client_credentials, got body %q", req.Body)
	}
}

func TestTokenManager_FetchToken_RawBasicCredentials(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		secret string
	}{
		{"plain", "test-key", "test-secret"},
		{"form-special characters", "ab+c/d=", "s3cr+t/x=="},
		{"colon and space", "key:with colon", "p@ss word&more"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewMockSierraServer(t, "/iii/sierra-api")
			tm := NewTokenManager(context.Background(), server.Endpoint()+"token", tt.key, tt.secret)

			if err := tm.FetchToken(context.Background()); err != nil {
				t.Fatalf("FetchToken failed: %v", err)
			}

			reqs := server.Requests("/v4/token")
			if len(reqs) != 1 {
				t.Fatalf("expected 1 token request, got %d", len(reqs))
			}

			want := "Basic " + base64.StdEncoding.EncodeToString([]byte(tt.key+":"+tt.secret))
			if got := reqs[0].Header.Get("Authorization"); got != want {
				t.Errorf("expected Authorization %q, got %q", want, got)
			}
		})
	}
}

func TestTokenManager_FetchToken_ComputesExpiry(t *testing.T) {
	server := testutil.NewMockSierraServer(t, "/iii/sierra-api")
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	tm := newTestManager(t, server, WithClock(clock.Now))

	if err := tm.FetchToken(context.Background()); err != nil {
		t.Fatalf("FetchToken failed: %v", err)
	}

	token := tm.Token()
	if token == nil {
		t.Fatal("expected a token")
	}
	if token.AccessToken != "mock-access-token" {
		t.Errorf("unexpected access token %q", token.AccessToken)
	}
	if token.ExpiresIn != 3600 {
		t.Errorf("expected ExpiresIn 3600, got %d", token.ExpiresIn)
	}
	if want := clock.Now().Add(time.Hour); !token.ExpiresAt.Equal(want) {
		t.Errorf("expected ExpiresAt %v, got %v", want, token.ExpiresAt)
	}
}

func TestTokenManager_EnsureValidToken_FetchesOnceWhileValid(t *testing.T) {
	server := testutil.NewMockSierraServer(t, "")
	clock := &fakeClock{now: time.Now()}
	tm := newTestManager(t, server, WithClock(clock.Now))
	ctx := context.Background()

	if err := tm.EnsureValidToken(ctx); err != nil {
		t.Fatalf("EnsureValidToken failed: %v", err)
	}

	// Still inside the 3600s lifetime.
	for _, d := range []time.Duration{time.Second, 30 * time.Minute, 29*time.Minute + 58*time.Second} {
		clock.Advance(d)
		if err := tm.EnsureValidToken(ctx); err != nil {
			t.Fatalf("EnsureValidToken failed: %v", err)
		}
	}

	if got := server.TokenRequests(); got != 1 {
		t.Fatalf("expected exactly 1 token request, got %d", got)
	}

	clock.Advance(time.Second) // now == ExpiresAt
	if err := tm.EnsureValidToken(ctx); err != nil {
		t.Fatalf("EnsureValidToken failed: %v", err)
	}
	if got := server.TokenRequests(); got != 2 {
		t.Fatalf("expected refresh at expiry, got %d token requests", got)
	}
}

func TestTokenManager_EnsureValidToken_StaleCachedToken(t *testing.T) {
	server := testutil.NewMockSierraServer(t, "")
	cache := newStubCache()

	stale, err := json.Marshal(Token{
		AccessToken: "old-token",
		TokenType:   "bearer",
		ExpiresIn:   3600,
		ExpiresAt:   time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	cache.values[CacheKey] = stale

	tm := newTestManager(t, server, WithCache(cache))
	if !tm.LoadCached(context.Background()) {
		t.Fatal("expected cached token to load")
	}
	if got := tm.Token().AccessToken; got != "old-token" {
		t.Fatalf("expected cached token, got %q", got)
	}

	if err := tm.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("EnsureValidToken failed: %v", err)
	}
	if got := server.TokenRequests(); got != 1 {
		t.Fatalf("expected exactly 1 token request, got %d", got)
	}
	if got := tm.Token().AccessToken; got != "mock-access-token" {
		t.Errorf("expected refreshed token, got %q", got)
	}
}

func TestTokenManager_EnsureValidToken_FreshCachedToken(t *testing.T) {
	server := testutil.NewMockSierraServer(t, "")
	cache := newStubCache()

	fresh, _ := json.Marshal(Token{
		AccessToken: "cached-token",
		TokenType:   "bearer",
		ExpiresIn:   3600,
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	cache.values[CacheKey] = fresh

	tm := newTestManager(t, server, WithCache(cache))
	tm.LoadCached(context.Background())

	if err := tm.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("EnsureValidToken failed: %v", err)
	}
	if got := server.TokenRequests(); got != 0 {
		t.Fatalf("expected no token request, got %d", got)
	}
}

func TestTokenManager_LoadCached(t *testing.T) {
	tests := []struct {
		name   string
		cache  Cache
		stored []byte
		want   bool
	}{
		{name: "no cache", cache: nil, want: false},
		{name: "missing entry", cache: newStubCache(), want: false},
		{name: "garbage", cache: newStubCache(), stored: []byte("not json"), want: false},
		{name: "empty access token", cache: newStubCache(), stored: []byte(`{"access_token":""}`), want: false},
		{name: "valid record", cache: newStubCache(), stored: []byte(`{"access_token":"abc","token_type":"bearer","expires_in":60,"expires_at":1}`), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if c, ok := tt.cache.(*stubCache); ok && tt.stored != nil {
				c.values[CacheKey] = tt.stored
			}

			var opts []Option
			if tt.cache != nil {
				opts = append(opts, WithCache(tt.cache))
			}
			tm := NewTokenManager(context.Background(), "https://sierra.example.edu/v4/token", "k", "s", opts...)

			if got := tm.LoadCached(context.Background()); got != tt.want {
				t.Errorf("LoadCached() = %v, want %v", got, tt.want)
			}
			if !tt.want && tm.Token() != nil {
				t.Error("no token should be held after a failed load")
			}
		})
	}
}

func TestTokenManager_FetchToken_WritesCache(t *testing.T) {
	server := testutil.NewMockSierraServer(t, "")
	cache := newStubCache()
	tm := newTestManager(t, server, WithCache(cache))

	if err := tm.FetchToken(context.Background()); err != nil {
		t.Fatalf("FetchToken failed: %v", err)
	}

	data, ok := cache.Get(context.Background(), CacheKey)
	if !ok {
		t.Fatal("expected token to be written to cache")
	}

	var cached Token
	if err := json.Unmarshal(data, &cached); err != nil {
		t.Fatalf("cached token unreadable: %v", err)
	}
	if cached.AccessToken != "mock-access-token" || cached.TokenType != "bearer" {
		t.Errorf("unexpected cached token: %+v", cached)
	}
}

func TestTokenManager_FetchToken_CacheWriteFailureIsNotFatal(t *testing.T) {
	server := testutil.NewMockSierraServer(t, "")
	cache := newStubCache()
	cache.setErr = errors.New("session store down")
	tm := newTestManager(t, server, WithCache(cache))

	if err := tm.FetchToken(context.Background()); err != nil {
		t.Fatalf("FetchToken should succeed despite cache failure: %v", err)
	}
	if cache.sets != 1 {
		t.Errorf("expected one cache write attempt, got %d", cache.sets)
	}
	if tm.Token() == nil {
		t.Error("token should be held in memory")
	}
}

func TestTokenManager_FetchToken_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "error field", handler: testutil.StaticJSON(http.StatusOK, `{"error":"invalid_client"}`)},
		{name: "unauthorized", handler: testutil.StaticJSON(http.StatusUnauthorized, `{"error":"invalid_client","error_description":"bad secret"}`)},
		{name: "server error", handler: testutil.StaticJSON(http.StatusInternalServerError, `oops`)},
		{name: "not json", handler: testutil.StaticJSON(http.StatusOK, `<html>maintenance</html>`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewMockSierraServer(t, "")
			server.SetTokenHandler(tt.handler)
			cache := newStubCache()
			tm := newTestManager(t, server, WithCache(cache))

			if err := tm.EnsureValidToken(context.Background()); err == nil {
				t.Fatal("expected fetch error")
			}
			if tm.Token() != nil {
				t.Error("token must stay unset after a failed fetch")
			}
			if cache.sets != 0 {
				t.Error("cache must not be written after a failed fetch")
			}

			// The next ensure retries instead of proceeding without a token.
			if err := tm.EnsureValidToken(context.Background()); err == nil {
				t.Fatal("expected fetch error on retry")
			}
			if got := server.TokenRequests(); got != 2 {
				t.Errorf("expected 2 token requests, got %d", got)
			}
		})
	}
}

func TestTokenManager_FetchToken_TransportError(t *testing.T) {
	tm := NewTokenManager(context.Background(), "http://sierra.invalid/v4/token", "k", "s",
		WithHTTPClient(&http.Client{Transport: testutil.RoundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})}),
	)

	err := tm.EnsureValidToken(context.Background())
	if err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
	if tm.Token() != nil {
		t.Error("token must stay unset")
	}
}

func TestTokenManager_FetchToken_KeepsPreviousTokenOnFailure(t *testing.T) {
	server := testutil.NewMockSierraServer(t, "")
	tm := newTestManager(t, server)

	if err := tm.FetchToken(context.Background()); err != nil {
		t.Fatalf("FetchToken failed: %v", err)
	}

	server.SetTokenHandler(testutil.StaticJSON(http.StatusOK, `{"error":"invalid_client"}`))
	if err := tm.FetchToken(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := tm.Token(); got == nil || got.AccessToken != "mock-access-token" {
		t.Errorf("previous token should be kept, got %+v", got)
	}
}

func TestTokenManager_WithExpiryLeeway(t *testing.T) {
	server := testutil.NewMockSierraServer(t, "")
	clock := &fakeClock{now: time.Now()}
	tm := newTestManager(t, server, WithClock(clock.Now), WithExpiryLeeway(time.Minute))

	if err := tm.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("EnsureValidToken failed: %v", err)
	}

	clock.Advance(59 * time.Minute)
	if err := tm.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("EnsureValidToken failed: %v", err)
	}
	if got := server.TokenRequests(); got != 2 {
		t.Errorf("expected refresh inside leeway window, got %d token requests", got)
	}
}

func TestTokenManager_EnsureValidToken_Concurrent(t *testing.T) {
	server := testutil.NewMockSierraServer(t, "")
	tm := newTestManager(t, server)

	const goroutines = 10
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- tm.EnsureValidToken(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("EnsureValidToken failed in goroutine: %v", err)
		}
	}
	if got := server.TokenRequests(); got != 1 {
		t.Errorf("expected single token request due to double-check locking, got %d", got)
	}
}

func TestTokenManager_WithLoggingEnabled_SetsLogger(t *testing.T) {
	tm := NewTokenManager(context.Background(), "https://sierra.example.edu/v4/token", "k", "s", WithLoggingEnabled())
	if tm.logger == nil {
		t.Fatal("expected logger to be set")
	}
}

func BenchmarkTokenManager_EnsureValidToken_Cached(b *testing.B) {
	server := testutil.NewMockSierraServer(b, "")
	tm := newTestManager(b, server)

	_ = tm.EnsureValidToken(context.Background())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tm.EnsureValidToken(context.Background())
	}
}
