package authcore

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Default configuration values
const (
	// DefaultSessionValidity is how long an initiated flow session stays
	// valid before the callback must arrive
	DefaultSessionValidity = 10 * time.Minute

	// DefaultExchangeTimeout bounds the code-for-token exchange request
	DefaultExchangeTimeout = 10 * time.Second
)

// Config holds the authentication core configuration
// Structured using composition for better organization and maintainability
type Config struct {
	// ClientID is the OAuth client identifier registered with providers (required)
	ClientID string

	// ClientSecret is the client secret, empty for public PKCE clients
	ClientSecret string

	// RedirectURL is where providers redirect after authentication (required)
	RedirectURL string

	// TenantID is the provider tenant for multi-tenant providers.
	// Substituted into templated issuer and endpoint URLs.
	TenantID string

	// SessionValidity is how long an initiated session remains redeemable.
	// Default: 10 minutes
	SessionValidity time.Duration

	// Rate limiting configuration for the callback endpoint
	RateLimit RateLimitConfig

	// Audit logging configuration
	Audit AuditConfig

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// HTTPClient is a custom HTTP client for provider requests
	// If not provided, a client with DefaultExchangeTimeout is used
	HTTPClient *http.Client
}

// RateLimitConfig holds callback rate limiting configuration
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate int

	// Burst is the maximum burst size allowed per IP.
	Burst int

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool
}

// AuditConfig holds audit log buffering configuration
type AuditConfig struct {
	// BufferCapacity is the number of events buffered before an early
	// flush. Default: 50
	BufferCapacity int

	// FlushInterval is how often the buffer is flushed regardless of
	// fill level. Default: 5 seconds
	FlushInterval time.Duration
}

// Validate checks required fields and applies defaults in place
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("ClientID is required")
	}
	if c.RedirectURL == "" {
		return errors.New("RedirectURL is required")
	}
	if c.SessionValidity <= 0 {
		c.SessionValidity = DefaultSessionValidity
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: DefaultExchangeTimeout}
	}
	return nil
}
