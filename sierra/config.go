package sierra

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// APIVersion is the Sierra REST API version segment every endpoint lives under.
const APIVersion = "v4"

// Config holds the credentials and location of a Sierra API.
type Config struct {
	// Key is the client key issued by the Sierra admin app.
	Key string
	// Secret is the client secret paired with Key.
	Secret string
	// Host is the scheme and authority, e.g. "https://catalog.example.edu".
	Host string
	// BasePath is the API prefix on the host, e.g. "iii/sierra-api".
	BasePath string
}

// Validate reports missing credentials or an unusable host.
func (c Config) Validate() error {
	var errs []error
	if c.Key == "" {
		errs = append(errs, errors.New("key is required"))
	}
	if c.Secret == "" {
		errs = append(errs, errors.New("secret is required"))
	}

	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	} else {
		u, err := url.Parse(c.Host)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("host: %w", err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, fmt.Errorf("host %q must use http or https", c.Host))
		case u.Host == "":
			errs = append(errs, fmt.Errorf("host %q has no authority", c.Host))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("sierra: invalid config: %w", err)
	}
	return nil
}

// Endpoint returns the versioned API base, always ending in "/v4/".
// Empty path segments are dropped, so "/iii//sierra-api/" and "iii/sierra-api"
// both give "{host}/iii/sierra-api/v4/".
func (c Config) Endpoint() string {
	parts := []string{strings.TrimRight(c.Host, "/")}
	for _, segment := range strings.Split(c.BasePath, "/") {
		if segment != "" {
			parts = append(parts, segment)
		}
	}
	parts = append(parts, APIVersion)
	return strings.Join(parts, "/") + "/"
}

// TokenURL returns the client credentials endpoint.
func (c Config) TokenURL() string {
	return c.Endpoint() + "token"
}
