// Package memory implements storage.SessionStore on an expiring in-process
// cache. Suitable for single-instance deployments and tests.
package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tradepost/authcore/storage"
)

const keyPrefix = "authcore:pkce:"

// Store is an in-memory session store with TTL eviction.
type Store struct {
	cache *gocache.Cache
}

// New creates a memory store. Expired entries are purged every minute;
// Get never returns an expired entry regardless of purge timing.
func New() *Store {
	return &Store{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

// Set stores a session, overwriting any in-flight session for the key.
func (s *Store) Set(_ context.Context, key string, session *storage.Session, ttl time.Duration) error {
	cp := *session
	s.cache.Set(keyPrefix+key, &cp, ttl)
	return nil
}

// Get retrieves a session.
func (s *Store) Get(_ context.Context, key string) (*storage.Session, error) {
	v, ok := s.cache.Get(keyPrefix + key)
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	sess, ok := v.(*storage.Session)
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

// Clear removes a session.
func (s *Store) Clear(_ context.Context, key string) error {
	s.cache.Delete(keyPrefix + key)
	return nil
}
