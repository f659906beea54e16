package oauth2client

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Token is an access token issued by the Sierra token endpoint.
// A Token is never modified after creation; a stale token is replaced as a whole.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64 // lifetime in seconds as reported by the server
	ExpiresAt   time.Time
}

// tokenRecord is the serialized form kept in the session cache.
type tokenRecord struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	ExpiresAt   int64  `json:"expires_at"`
}

// MarshalJSON encodes the token with expires_at as Unix seconds.
func (t Token) MarshalJSON() ([]byte, error) {
	return json.Marshal(tokenRecord{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		ExpiresIn:   t.ExpiresIn,
		ExpiresAt:   t.ExpiresAt.Unix(),
	})
}

// UnmarshalJSON decodes a token written by MarshalJSON.
func (t *Token) UnmarshalJSON(data []byte) error {
	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.AccessToken == "" {
		return fmt.Errorf("oauth2: cached token has no access_token")
	}

	*t = Token{
		AccessToken: rec.AccessToken,
		TokenType:   rec.TokenType,
		ExpiresIn:   rec.ExpiresIn,
		ExpiresAt:   time.Unix(rec.ExpiresAt, 0),
	}
	return nil
}

// ValidAt reports whether the token can still be used at the given instant.
// A token is stale once now >= ExpiresAt.
func (t *Token) ValidAt(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return now.Before(t.ExpiresAt)
}

// AuthorizationHeader returns the value for the Authorization header,
// e.g. "Bearer abc123" for a token of type "bearer".
func (t *Token) AuthorizationHeader() string {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	// cases.Caser keeps state and must not be shared between goroutines.
	return cases.Title(language.Und).String(tokenType) + " " + t.AccessToken
}
