// Package credential manages the short-lived bearer credential that
// gates every upstream request: a pure data Credential with an
// on-demand validity check, a Store that replaces the credential
// wholesale under a lock, and a Manager owning sign-in, sign-out, and
// periodic renewal.
package credential

import (
	"sync"
	"time"
)

// Credential is the short-lived bearer token together with its expiry
// and the upstream endpoint it is valid for. A Credential is immutable;
// renewal replaces it wholesale.
type Credential struct {
	Token     string
	Endpoint  string
	ExpiresAt time.Time
}

// Valid reports whether the credential can still be used at the given
// instant. A zero ExpiresAt means the credential does not expire.
// Validity is always computed from the stored expiry, never cached.
func (c Credential) Valid(now time.Time) bool {
	if c.Token == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

// Store holds the single current credential. Writers replace the value
// atomically under the lock, so a concurrent reader always observes a
// fully-formed Credential or its predecessor, never a mix.
type Store struct {
	mu   sync.RWMutex
	cred *Credential
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current credential and whether one is present.
func (s *Store) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return Credential{}, false
	}
	return *s.cred, true
}

// Set replaces the stored credential.
func (s *Store) Set(cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = &cred
}

// Clear removes the stored credential. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
}
