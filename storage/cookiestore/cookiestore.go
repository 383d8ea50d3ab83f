// Package cookiestore implements storage.SessionStore on an AES-256-GCM
// sealed value carried by the user-agent (typically an HTTP cookie). The
// server keeps no per-session state; integrity and confidentiality come
// from the seal, expiry from the timestamp sealed inside it.
package cookiestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tradepost/authcore/security"
	"github.com/tradepost/authcore/storage"
)

// Carrier moves sealed values to and from the user-agent. An HTTP handler
// implements it over a response/request cookie pair.
type Carrier interface {
	// Get returns the sealed value stored under name, if any.
	Get(name string) (string, bool)

	// Set stores a sealed value under name with a max age.
	Set(name, value string, ttl time.Duration)

	// Clear removes the value stored under name.
	Clear(name string)
}

// sealedSession wraps the session with the deadline the seal was issued
// for, so expiry holds even if the carrier (browser) keeps the cookie
// longer than asked.
type sealedSession struct {
	Session   *storage.Session `json:"s"`
	ExpiresAt time.Time        `json:"exp"`
}

// Store is a sealed-cookie session store.
type Store struct {
	sealer  *security.Sealer
	carrier Carrier
}

// New creates a cookie store. The key must be 32 bytes.
func New(key []byte, carrier Carrier) (*Store, error) {
	sealer, err := security.NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf("cookiestore: %w", err)
	}
	return &Store{sealer: sealer, carrier: carrier}, nil
}

// Set seals the session into the carrier, overwriting any in-flight value.
func (s *Store) Set(_ context.Context, key string, session *storage.Session, ttl time.Duration) error {
	payload, err := json.Marshal(sealedSession{
		Session:   session,
		ExpiresAt: time.Now().Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	sealed, err := s.sealer.Seal(payload)
	if err != nil {
		return fmt.Errorf("failed to seal session: %w", err)
	}
	s.carrier.Set(key, sealed, ttl)
	return nil
}

// Get opens the sealed session. A missing, tampered, undecodable, or
// expired value all report ErrSessionNotFound; the caller cannot
// distinguish tampering from absence, which is deliberate.
func (s *Store) Get(_ context.Context, key string) (*storage.Session, error) {
	sealed, ok := s.carrier.Get(key)
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	payload, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, storage.ErrSessionNotFound
	}
	var wrapped sealedSession
	if err := json.Unmarshal(payload, &wrapped); err != nil || wrapped.Session == nil {
		return nil, storage.ErrSessionNotFound
	}
	if time.Now().After(wrapped.ExpiresAt) {
		s.carrier.Clear(key)
		return nil, storage.ErrSessionNotFound
	}
	return wrapped.Session, nil
}

// Clear removes the sealed value from the carrier.
func (s *Store) Clear(_ context.Context, key string) error {
	s.carrier.Clear(key)
	return nil
}
