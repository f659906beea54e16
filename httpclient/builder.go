package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/AmmannChristian/go-sierra/oauth2client"
)

// DefaultTimeout is the per-call timeout Sierra requests use.
const DefaultTimeout = 60 * time.Second

// Builder provides a fluent interface for constructing HTTP clients for the
// Sierra API with optional token injection, metrics and TLS/mTLS support.
type Builder struct {
	tokenManager *oauth2client.TokenManager
	userAgent    string
	metrics      bool

	// TLS configuration
	tlsEnabled    bool
	tlsCAFile     string
	tlsCertFile   string
	tlsKeyFile    string
	tlsSkipVerify bool

	// HTTP client configuration
	timeout         time.Duration
	baseTransport   http.RoundTripper
	followRedirects bool
}

// NewBuilder creates a new HTTP client builder with a 60s timeout and redirects enabled.
func NewBuilder() *Builder {
	return &Builder{
		timeout:         DefaultTimeout,
		followRedirects: true,
	}
}

// WithTokenManager injects the Authorization header of the manager's current token
// into every request. Callers must ensure the token is valid before sending.
func (b *Builder) WithTokenManager(tm *oauth2client.TokenManager) *Builder {
	b.tokenManager = tm
	return b
}

// WithUserAgent sets the User-Agent header on every request.
func (b *Builder) WithUserAgent(ua string) *Builder {
	b.userAgent = ua
	return b
}

// WithMetrics records request counts and latencies in Prometheus collectors.
func (b *Builder) WithMetrics() *Builder {
	b.metrics = true
	return b
}

// WithTLS enables TLS for the connection.
//
// Parameters:
//   - caFile: Path to CA certificate for server verification (optional, uses system roots if empty)
//   - certFile: Path to client certificate for mTLS (optional, must be paired with keyFile)
//   - keyFile: Path to client private key for mTLS (optional, must be paired with certFile)
func (b *Builder) WithTLS(caFile, certFile, keyFile string) *Builder {
	b.tlsEnabled = true
	b.tlsCAFile = caFile
	b.tlsCertFile = certFile
	b.tlsKeyFile = keyFile
	return b
}

// WithInsecureSkipVerify disables TLS certificate verification (NOT RECOMMENDED for production).
// Some Sierra test servers run with self-signed certificates.
func (b *Builder) WithInsecureSkipVerify() *Builder {
	b.tlsSkipVerify = true
	return b
}

// WithTimeout sets the request timeout for the HTTP client.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithBaseTransport sets a custom base transport. Combined with TLS options it
// must be an *http.Transport; Build applies the TLS settings to a clone of it.
func (b *Builder) WithBaseTransport(transport http.RoundTripper) *Builder {
	b.baseTransport = transport
	return b
}

// WithoutRedirects disables automatic redirect following.
func (b *Builder) WithoutRedirects() *Builder {
	b.followRedirects = false
	return b
}

// Build constructs the HTTP client with the configured options.
// Transports are layered base -> metrics -> auth -> user agent.
func (b *Builder) Build() (*http.Client, error) {
	transport := b.baseTransport
	if transport != nil && (b.tlsEnabled || b.tlsSkipVerify) {
		httpTransport, ok := transport.(*http.Transport)
		if !ok {
			return nil, fmt.Errorf("httpclient: TLS options need an *http.Transport base, got %T", transport)
		}
		tlsConfig, err := b.buildTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("httpclient: TLS config failed: %w", err)
		}
		httpTransport = httpTransport.Clone()
		httpTransport.TLSClientConfig = tlsConfig
		transport = httpTransport
	}
	if transport == nil {
		if httpTransport, ok := http.DefaultTransport.(*http.Transport); ok {
			httpTransport = httpTransport.Clone()

			if b.tlsEnabled || b.tlsSkipVerify {
				tlsConfig, err := b.buildTLSConfig()
				if err != nil {
					return nil, fmt.Errorf("httpclient: TLS config failed: %w", err)
				}
				httpTransport.TLSClientConfig = tlsConfig
			} else {
				httpTransport.TLSClientConfig = &tls.Config{
					MinVersion: tls.VersionTLS12,
				}
			}

			transport = httpTransport
		} else {
			// Fallback to whatever default transport is configured (e.g., a test stub)
			transport = http.DefaultTransport
		}
	}

	if b.metrics {
		transport = NewMetricsTransport(transport)
	}
	if b.tokenManager != nil {
		transport = NewAuthTransport(b.tokenManager, transport)
	}
	if b.userAgent != "" {
		transport = &userAgentTransport{base: transport, userAgent: b.userAgent}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   b.timeout,
	}

	if !b.followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, nil
}

// buildTLSConfig constructs the TLS configuration for the HTTP client.
func (b *Builder) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: b.tlsSkipVerify, // #nosec G402
	}

	if b.tlsCAFile != "" {
		caCert, err := os.ReadFile(b.tlsCAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}

		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = certPool
	}

	if b.tlsCertFile != "" && b.tlsKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(b.tlsCertFile, b.tlsKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	} else if b.tlsCertFile != "" || b.tlsKeyFile != "" {
		return nil, errors.New("both TLS cert and key files must be provided for mTLS")
	}

	return tlsConfig, nil
}

// NewHTTPClient creates a client that authenticates with tm using the default timeout.
// For more configuration options, use Builder instead.
func NewHTTPClient(tm *oauth2client.TokenManager) *http.Client {
	return &http.Client{
		Transport: NewAuthTransport(tm, nil),
		Timeout:   DefaultTimeout,
	}
}
