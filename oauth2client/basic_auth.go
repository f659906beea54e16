package oauth2client

import (
	"encoding/base64"
	"net/http"
	"net/url"
)

// basicAuthTransport sets the Basic credentials Sierra expects: base64 of the
// raw "key:secret" pair. x/oauth2 form-escapes both parts first, which changes
// credentials containing characters such as '+', '/' or '='.
//
// The header is only sent to the token endpoint's host, so a redirect to
// another host does not receive the credentials.
type basicAuthTransport struct {
	base   http.RoundTripper
	host   string
	header string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqClone := req.Clone(req.Context())
	if req.URL.Host == t.host {
		reqClone.Header.Set("Authorization", t.header)
	} else {
		reqClone.Header.Del("Authorization")
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(reqClone)
}

// withBasicAuth returns a copy of client whose transport authenticates token
// requests with key and secret. A nil client is treated as a zero http.Client.
func withBasicAuth(client *http.Client, tokenURL, key, secret string) *http.Client {
	var wrapped http.Client
	if client != nil {
		wrapped = *client
	}

	var host string
	if u, err := url.Parse(tokenURL); err == nil {
		host = u.Host
	}

	wrapped.Transport = &basicAuthTransport{
		base:   wrapped.Transport,
		host:   host,
		header: "Basic " + base64.StdEncoding.EncodeToString([]byte(key+":"+secret)),
	}
	return &wrapped
}
