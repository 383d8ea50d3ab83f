package providers

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// TenantPlaceholder marks the tenant segment in templated issuers, e.g.
// Microsoft's "https://login.microsoftonline.com/{tenantid}/v2.0". ID-token
// issuer validation tolerates any single path segment in its place.
const TenantPlaceholder = "{tenantid}"

// Config describes a single OAuth/OIDC provider. Immutable after
// registration.
type Config struct {
	// ID identifies the provider ("google", "microsoft", ...).
	ID string

	// AuthorizationURL is the provider's authorization endpoint.
	AuthorizationURL string

	// TokenURL is the provider's token endpoint.
	TokenURL string

	// UserinfoURL is the OIDC userinfo endpoint, if the provider has one.
	UserinfoURL string

	// JWKSURL is the provider's key set endpoint, if published. The engine
	// does not fetch it; it is carried for callers that verify signatures
	// server-side.
	JWKSURL string

	// Issuer is the expected "iss" claim of ID tokens. May contain
	// TenantPlaceholder. Empty for providers that issue no ID token.
	Issuer string

	// Scopes are the default scopes requested for this provider.
	Scopes []string

	// ExtraAuthParams are provider-specific parameters appended to the
	// authorization URL (e.g. offline access, forced consent).
	ExtraAuthParams map[string]string
}

// Endpoint returns the oauth2.Endpoint for this provider.
func (c *Config) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:  c.AuthorizationURL,
		TokenURL: c.TokenURL,
	}
}

// Validate checks the record is usable.
func (c *Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("provider id is required")
	}
	if c.AuthorizationURL == "" {
		return fmt.Errorf("provider %q: authorization URL is required", c.ID)
	}
	if c.TokenURL == "" {
		return fmt.Errorf("provider %q: token URL is required", c.ID)
	}
	if !isSecureURL(c.AuthorizationURL) {
		return fmt.Errorf("provider %q: authorization URL must use https", c.ID)
	}
	if !isSecureURL(c.TokenURL) {
		return fmt.Errorf("provider %q: token URL must use https", c.ID)
	}
	return nil
}

// isSecureURL accepts https anywhere and plain http only for loopback
// hosts (local development against a stub provider).
func isSecureURL(raw string) bool {
	if strings.HasPrefix(raw, "https://") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "http" {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// Registry is a set of provider configurations, loaded once at startup.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*Config
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]*Config)}
}

// Register adds a provider. Registering an existing ID replaces it, which
// is intended for tests and for overriding a builtin's endpoints.
func (r *Registry) Register(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cfg
	r.configs[cfg.ID] = &cp
	return nil
}

// Get returns the provider with the given ID.
func (r *Registry) Get(id string) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", id)
	}
	return cfg, nil
}

// IDs returns the registered provider IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
