package authcore

import "time"

// TokenResponse represents the provider's token endpoint response after a
// successful code exchange
type TokenResponse struct {
	// AccessToken is the provider-issued access token
	AccessToken string `json:"access_token"`

	// TokenType is the token type, almost always "Bearer"
	TokenType string `json:"token_type"`

	// RefreshToken allows obtaining new access tokens (if granted)
	RefreshToken string `json:"refresh_token,omitempty"`

	// IDToken is the OpenID Connect ID token (if the openid scope was requested)
	IDToken string `json:"id_token,omitempty"`

	// Expiry is when the access token expires
	Expiry time.Time `json:"expiry,omitempty"`

	// Scope is the space-separated list of granted scopes
	Scope string `json:"scope,omitempty"`
}

// IDClaims carries the validated claims extracted from an ID token
type IDClaims struct {
	// Issuer is the token issuer (iss)
	Issuer string `json:"iss"`

	// Subject is the provider-scoped user identifier (sub)
	Subject string `json:"sub"`

	// Audience is the client ID the token was issued to (aud)
	Audience string `json:"aud"`

	// Email is the user's email address, if the provider releases it
	Email string `json:"email,omitempty"`

	// EmailVerified reports whether the provider verified the email
	EmailVerified bool `json:"email_verified,omitempty"`

	// Name is the user's display name, if released
	Name string `json:"name,omitempty"`

	// Picture is a URL to the user's avatar, if released
	Picture string `json:"picture,omitempty"`

	// TenantID is the provider tenant the token was issued under, for
	// multi-tenant providers such as Microsoft
	TenantID string `json:"tid,omitempty"`
}

// CallbackParams are the query parameters the provider sends to the
// redirect URI
type CallbackParams struct {
	// Code is the authorization code to exchange
	Code string

	// State is the opaque anti-forgery value echoed back by the provider
	State string

	// Error is the provider error code, set instead of Code on failure
	Error string

	// ErrorDescription provides additional provider error information
	ErrorDescription string
}

// FlowResult is the outcome of a completed authentication flow
type FlowResult struct {
	// Provider is the provider the user authenticated with
	Provider string

	// Token is the provider's token response
	Token *TokenResponse

	// Claims are the validated ID token claims, nil when the provider
	// issued no ID token
	Claims *IDClaims
}
