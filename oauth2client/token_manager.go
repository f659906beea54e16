package oauth2client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// CacheKey is the session cache entry holding the serialized token.
const CacheKey = "_sierra_token"

// Cache is the session-like key/value store a host environment provides for
// sharing the token between client instances.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte) error
}

// TokenManager owns the Sierra access token: it loads it from the session cache,
// checks its expiry and fetches a new one with the client credentials flow.
// It is safe for concurrent access.
type TokenManager struct {
	config       *clientcredentials.Config
	httpClient   *http.Client
	cache        Cache
	token        *Token
	mu           sync.RWMutex
	ctx          context.Context // fallback context for token requests
	expiryLeeway time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// Option is a functional option for configuring TokenManager.
type Option func(*TokenManager)

// WithLogger sets a custom logger for token events.
// If not set, no logging will occur.
func WithLogger(logger *slog.Logger) Option {
	return func(tm *TokenManager) {
		if logger != nil {
			tm.logger = logger
		}
	}
}

// WithLoggingEnabled logs token events to slog.Default().
func WithLoggingEnabled() Option {
	return func(tm *TokenManager) {
		tm.logger = slog.Default()
	}
}

// WithCache mirrors every fetched token into cache under CacheKey.
func WithCache(cache Cache) Option {
	return func(tm *TokenManager) {
		tm.cache = cache
	}
}

// WithHTTPClient sets the client used to call the token endpoint.
func WithHTTPClient(client *http.Client) Option {
	return func(tm *TokenManager) {
		tm.httpClient = client
	}
}

// WithExpiryLeeway treats tokens as stale d before their expiry. Default is zero.
func WithExpiryLeeway(d time.Duration) Option {
	return func(tm *TokenManager) {
		tm.expiryLeeway = d
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(tm *TokenManager) {
		if now != nil {
			tm.now = now
		}
	}
}

// NewTokenManager creates a token manager for a Sierra token endpoint.
//
// Parameters:
//   - ctx: Context used as fallback for token requests
//   - tokenURL: Token endpoint (e.g., "https://catalog.example.edu/iii/sierra-api/v4/token")
//   - key: Sierra client key
//   - secret: Sierra client secret
//   - opts: Optional configuration options (WithCache, WithHTTPClient, WithLogger, ...)
func NewTokenManager(ctx context.Context, tokenURL, key, secret string, opts ...Option) *TokenManager {
	if ctx == nil {
		ctx = context.Background()
	} else {
		ctx = context.WithoutCancel(ctx)
	}

	tm := &TokenManager{
		config: &clientcredentials.Config{
			ClientID:     key,
			ClientSecret: secret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		ctx:    ctx,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(tm)
	}
	tm.httpClient = withBasicAuth(tm.httpClient, tokenURL, key, secret)

	return tm
}

// LoadCached adopts the token stored in the session cache, if any.
// A stale cached token is still adopted; EnsureValidToken replaces it.
func (tm *TokenManager) LoadCached(ctx context.Context) bool {
	if tm.cache == nil {
		return false
	}
	if ctx == nil {
		ctx = tm.ctx
	}

	data, ok := tm.cache.Get(ctx, CacheKey)
	if !ok {
		return false
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		tm.logger.Warn("oauth2: ignoring unreadable cached token", "error", err)
		return false
	}

	tm.mu.Lock()
	tm.token = &token
	tm.mu.Unlock()

	tm.logger.Debug("oauth2: loaded token from session cache",
		"expires_at", token.ExpiresAt.Format(time.RFC3339))
	return true
}

// EnsureValidToken fetches a new token when none is held or the held one is stale.
// It is a no-op while the current token is valid.
func (tm *TokenManager) EnsureValidToken(ctx context.Context) error {
	tm.mu.RLock()
	valid := tm.tokenValid()
	tm.mu.RUnlock()
	if valid {
		return nil
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if tm.tokenValid() {
		return nil
	}
	return tm.fetchLocked(ctx)
}

// FetchToken requests a new token from the token endpoint unconditionally.
// On failure the held token is left as it was.
func (tm *TokenManager) FetchToken(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.fetchLocked(ctx)
}

// Token returns a copy of the held token, or nil if none has been obtained.
func (tm *TokenManager) Token() *Token {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if tm.token == nil {
		return nil
	}
	token := *tm.token
	return &token
}

func (tm *TokenManager) fetchLocked(ctx context.Context) error {
	if ctx == nil {
		ctx = tm.ctx
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, tm.httpClient)

	start := tm.now()
	raw, err := tm.config.Token(ctx)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.ErrorCode != "" {
			tm.logger.Error("oauth2: token endpoint rejected credentials",
				"error_code", rErr.ErrorCode, "description", rErr.ErrorDescription)
		} else {
			tm.logger.Error("oauth2: failed to fetch token", "error", err)
		}
		return fmt.Errorf("oauth2: failed to fetch token: %w", err)
	}

	token := &Token{
		AccessToken: raw.AccessToken,
		TokenType:   raw.TokenType,
		ExpiresIn:   raw.ExpiresIn,
		ExpiresAt:   start.Add(time.Duration(raw.ExpiresIn) * time.Second),
	}
	tm.token = token

	tm.logger.Info("oauth2: obtained new access token",
		"expires_at", token.ExpiresAt.Format(time.RFC3339))

	if tm.cache != nil {
		tm.storeCached(ctx, token)
	}
	return nil
}

func (tm *TokenManager) storeCached(ctx context.Context, token *Token) {
	data, err := json.Marshal(token)
	if err != nil {
		tm.logger.Warn("oauth2: failed to encode token for cache", "error", err)
		return
	}
	if err := tm.cache.Set(ctx, CacheKey, data); err != nil {
		tm.logger.Warn("oauth2: failed to write token to session cache", "error", err)
	}
}

// tokenValid reports whether the held token is usable, honoring the expiry leeway.
func (tm *TokenManager) tokenValid() bool {
	return tm.token.ValidAt(tm.now().Add(tm.expiryLeeway))
}
