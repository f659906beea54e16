package sessionstore

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/AmmannChristian/go-sierra/oauth2client"
)

// DefaultSessionName is the session (cookie) name used by NewSession when none is given.
const DefaultSessionName = "sierra_session"

var _ oauth2client.Cache = (*Session)(nil)

// Session adapts a gorilla/sessions store for one HTTP request so a web handler
// can share the Sierra token with later requests of the same visitor.
type Session struct {
	store sessions.Store
	name  string
	r     *http.Request
	w     http.ResponseWriter
}

// NewSession binds store to the request/response pair. An empty name selects
// DefaultSessionName.
func NewSession(store sessions.Store, r *http.Request, w http.ResponseWriter, name string) *Session {
	if name == "" {
		name = DefaultSessionName
	}
	return &Session{store: store, name: name, r: r, w: w}
}

// NewCookieStore returns a cookie-backed session store with settings suited to
// holding a short-lived API token.
// secretKey should be 32 or 64 bytes.
func NewCookieStore(secretKey []byte) *sessions.CookieStore {
	store := sessions.NewCookieStore(secretKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   24 * 60 * 60,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Get reads key from the session values.
func (s *Session) Get(_ context.Context, key string) ([]byte, bool) {
	session, err := s.store.Get(s.r, s.name)
	if err != nil {
		return nil, false
	}

	switch v := session.Values[key].(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

// Set writes key into the session and saves it to the response.
func (s *Session) Set(_ context.Context, key string, value []byte) error {
	session, err := s.store.Get(s.r, s.name)
	if err != nil {
		// An undecodable cookie still yields a fresh session.
		session, err = s.store.New(s.r, s.name)
		if session == nil {
			return fmt.Errorf("sessionstore: open session: %w", err)
		}
	}

	session.Values[key] = string(value)
	if err := session.Save(s.r, s.w); err != nil {
		return fmt.Errorf("sessionstore: save session: %w", err)
	}
	return nil
}
