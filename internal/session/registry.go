// Package session manages bearer session tokens. A token is minted on login
// or registration, resolves to a user id until its absolute expiry, and is
// deleted on logout. Expiry is evaluated lazily at lookup time; a background
// sweep evicts expired entries to bound memory.
package session

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenTTL is the absolute session lifetime. A token older than this is
	// rejected at resolve time and must be re-issued via a fresh login.
	TokenTTL = 7 * 24 * time.Hour

	// SweepInterval is how often the background sweep evicts expired entries.
	SweepInterval = 1 * time.Hour
)

// ErrInvalidToken is returned when a token is unknown or expired. A token
// that has expired is never revalidated.
var ErrInvalidToken = errors.New("session: invalid or expired token")

type entry struct {
	userID    string
	createdAt time.Time
}

// Registry maps opaque session tokens to user identities. It is safe for
// concurrent use and owns token expiry for its entire lifetime.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]entry
	ttl      time.Duration
	done     chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

// NewRegistry creates an empty Registry with the default 7-day token TTL.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]entry),
		ttl:      TokenTTL,
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// Create mints a cryptographically-random token for the given user and
// records it. Multiple concurrent sessions per user are permitted.
func (r *Registry) Create(userID string) string {
	token := uuid.New().String()

	r.mu.Lock()
	r.sessions[token] = entry{userID: userID, createdAt: r.now()}
	r.mu.Unlock()

	return token
}

// Resolve returns the user id bound to the token. An unknown token, or one
// past its TTL, fails with ErrInvalidToken; an expired entry is evicted on
// the spot.
func (r *Registry) Resolve(token string) (string, error) {
	r.mu.RLock()
	e, ok := r.sessions[token]
	r.mu.RUnlock()

	if !ok {
		return "", ErrInvalidToken
	}

	if r.now().Sub(e.createdAt) > r.ttl {
		r.mu.Lock()
		delete(r.sessions, token)
		r.mu.Unlock()
		return "", ErrInvalidToken
	}

	return e.userID, nil
}

// Revoke removes the token. Revoking an unknown token is a no-op.
func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
}

// Len returns the number of live (possibly expired but unswept) entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes every expired entry and returns how many were evicted. Safe
// to run concurrently with lookups; Resolve re-checks expiry so the sweep is
// purely a memory optimization.
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for token, e := range r.sessions {
		if now.Sub(e.createdAt) > r.ttl {
			delete(r.sessions, token)
			evicted++
		}
	}
	return evicted
}

// StartSweeper launches a background goroutine that calls Sweep on the given
// interval until Close is called.
func (r *Registry) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					log.Printf("session: swept %d expired sessions", n)
				}
			}
		}
	}()
}

// Close stops the background sweeper. Idempotent.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.done) })
}
