// Package storage defines the short-lived key-value interface backing PKCE
// sessions. Backends include in-memory (with TTL eviction), Redis, and an
// AES-GCM sealed value suitable for an encrypted cookie.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when no session exists for a key. An
// expired entry that a backend has not yet evicted is reported the same way;
// callers never observe stale sessions.
var ErrSessionNotFound = errors.New("pkce session not found")

// Session is the ephemeral state of one in-flight authorization attempt.
// It is created by InitiateFlow and must be fully consumed (cleared) when
// the callback is handled, whether the flow succeeds or fails.
type Session struct {
	// CodeVerifier is the PKCE secret. It leaves the session exactly once,
	// in the back-channel token exchange.
	CodeVerifier string `json:"code_verifier"`

	// State is the CSRF token round-tripped through the provider redirect.
	State string `json:"state"`

	// Nonce is the replay token expected back inside the ID token.
	Nonce string `json:"nonce"`

	// Provider is the registry ID of the provider this flow targets.
	Provider string `json:"provider"`

	// RedirectURI is the callback URI the flow was initiated with.
	RedirectURI string `json:"redirect_uri"`

	// CreatedAt bounds the session's validity window.
	CreatedAt time.Time `json:"created_at"`
}

// SessionStore is the short-lived store for PKCE sessions, keyed by a
// caller-chosen session key (one per user-agent session or tab). Setting a
// key that already holds a session overwrites it, intentionally
// invalidating the prior in-flight flow.
type SessionStore interface {
	// Set stores the session under key with the given TTL.
	Set(ctx context.Context, key string, session *Session, ttl time.Duration) error

	// Get retrieves the session for key, or ErrSessionNotFound.
	Get(ctx context.Context, key string) (*Session, error)

	// Clear removes the session for key. Clearing an absent key is not an
	// error.
	Clear(ctx context.Context, key string) error
}
