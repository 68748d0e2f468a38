// Package presence tracks which users currently have a live connection.
// Each user maps to at most one connection: a new connection for the same
// user replaces the prior mapping, and a stale disconnect for a superseded
// connection never evicts the newer one.
package presence

import "sync"

// Registry maps user ids to their single live connection id. Safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]string // userID -> connID
	byConn map[string]string // connID -> userID
}

// NewRegistry returns an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]string),
		byConn: make(map[string]string),
	}
}

// Bind records userID as online on connID, replacing any prior connection
// for that user. It returns the replaced connection id, if any.
func (r *Registry) Bind(userID, connID string) (replaced string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.byUser[userID]; exists {
		delete(r.byConn, prev)
		replaced, ok = prev, true
	}
	r.byUser[userID] = connID
	r.byConn[connID] = userID
	return replaced, ok
}

// Unbind removes the mapping held by connID and returns the user that went
// offline. If the connection was already superseded by a later Bind for the
// same user, or was never bound, Unbind is a no-op and ok is false.
func (r *Registry) Unbind(connID string) (userID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	delete(r.byUser, userID)
	return userID, true
}

// IsOnline reports whether the user currently has a live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// ConnID returns the live connection id for a user, if any.
func (r *Registry) ConnID(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[userID]
	return connID, ok
}

// Count returns the number of users currently online.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
