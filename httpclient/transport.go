package httpclient

import (
	"fmt"
	"net/http"

	"github.com/AmmannChristian/go-sierra/oauth2client"
)

// AuthTransport is an http.RoundTripper that adds the Sierra Authorization header
// ("{TokenType} {AccessToken}") of the token manager's current token.
//
// It never fetches a token itself, so repeated attempts of one call all carry the
// same token. Use TokenManager.EnsureValidToken before sending. Redirects to a
// host other than the one first requested are sent without the header.
type AuthTransport struct {
	// Base is the underlying HTTP transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// TokenManager provides the access token.
	TokenManager *oauth2client.TokenManager
}

// RoundTrip implements http.RoundTripper interface.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.TokenManager == nil {
		return nil, fmt.Errorf("httpclient: TokenManager is nil")
	}

	token := t.TokenManager.Token()
	if token == nil {
		return nil, fmt.Errorf("httpclient: no access token available")
	}

	// Clone the request to avoid modifying the original
	reqClone := req.Clone(req.Context())
	if req.URL.Host == originHost(req) {
		reqClone.Header.Set("Authorization", token.AuthorizationHeader())
	} else {
		// A redirect left the host the token was issued for.
		reqClone.Header.Del("Authorization")
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return base.RoundTrip(reqClone)
}

// originHost returns the host of the first request in a redirect chain.
func originHost(req *http.Request) string {
	for req.Response != nil && req.Response.Request != nil {
		req = req.Response.Request
	}
	return req.URL.Host
}

// NewAuthTransport creates a new AuthTransport with the given token manager.
// The base transport defaults to http.DefaultTransport if not specified.
func NewAuthTransport(tm *oauth2client.TokenManager, base http.RoundTripper) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &AuthTransport{
		Base:         base,
		TokenManager: tm,
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(reqClone)
}
