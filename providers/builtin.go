package providers

import (
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// Builtin provider IDs.
const (
	Google    = "google"
	Microsoft = "microsoft"
	GitHub    = "github"
	Apple     = "apple"
)

// DefaultRegistry returns a registry preloaded with the builtin providers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, cfg := range builtins() {
		// Builtins are static and validated by tests; Register cannot fail.
		_ = r.Register(cfg)
	}
	return r
}

func builtins() []*Config {
	msEndpoint := microsoft.AzureADEndpoint("")
	return []*Config{
		{
			ID:               Google,
			AuthorizationURL: google.Endpoint.AuthURL,
			TokenURL:         google.Endpoint.TokenURL,
			UserinfoURL:      "https://openidconnect.googleapis.com/v1/userinfo",
			JWKSURL:          "https://www.googleapis.com/oauth2/v3/certs",
			Issuer:           "https://accounts.google.com",
			Scopes:           []string{"openid", "email", "profile"},
			// Google only returns a refresh token when offline access is
			// requested and consent is forced.
			ExtraAuthParams: map[string]string{
				"access_type": "offline",
				"prompt":      "consent",
			},
		},
		{
			ID:               Microsoft,
			AuthorizationURL: msEndpoint.AuthURL,
			TokenURL:         msEndpoint.TokenURL,
			UserinfoURL:      "https://graph.microsoft.com/oidc/userinfo",
			JWKSURL:          "https://login.microsoftonline.com/common/discovery/v2.0/keys",
			Issuer:           "https://login.microsoftonline.com/" + TenantPlaceholder + "/v2.0",
			Scopes:           []string{"openid", "email", "profile", "offline_access"},
		},
		{
			// GitHub is plain OAuth2: no ID token, no issuer.
			ID:               GitHub,
			AuthorizationURL: github.Endpoint.AuthURL,
			TokenURL:         github.Endpoint.TokenURL,
			UserinfoURL:      "https://api.github.com/user",
			Scopes:           []string{"read:user", "user:email"},
		},
		{
			ID:               Apple,
			AuthorizationURL: "https://appleid.apple.com/auth/authorize",
			TokenURL:         "https://appleid.apple.com/auth/token",
			JWKSURL:          "https://appleid.apple.com/auth/keys",
			Issuer:           "https://appleid.apple.com",
			Scopes:           []string{"name", "email"},
		},
	}
}
