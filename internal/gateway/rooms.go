package gateway

import "sync"

// Rooms tracks which live connections are subscribed to each chat's
// broadcast room. A room is purely connection-local state: joining or
// leaving a room never touches chat membership.
type Rooms struct {
	mu     sync.RWMutex
	byChat map[string]map[string]struct{} // chatID -> set of connIDs
	byConn map[string]map[string]struct{} // connID -> set of chatIDs
}

// NewRooms returns an empty room registry.
func NewRooms() *Rooms {
	return &Rooms{
		byChat: make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join subscribes connID to chatID's room. Idempotent.
func (r *Rooms) Join(chatID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byChat[chatID] == nil {
		r.byChat[chatID] = make(map[string]struct{})
	}
	r.byChat[chatID][connID] = struct{}{}

	if r.byConn[connID] == nil {
		r.byConn[connID] = make(map[string]struct{})
	}
	r.byConn[connID][chatID] = struct{}{}
}

// Leave unsubscribes connID from chatID's room. Leaving a room the
// connection never joined is a no-op.
func (r *Rooms) Leave(chatID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(chatID, connID)
}

// LeaveAll unsubscribes connID from every room it joined. Called on
// disconnect.
func (r *Rooms) LeaveAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for chatID := range r.byConn[connID] {
		r.leaveLocked(chatID, connID)
	}
}

func (r *Rooms) leaveLocked(chatID, connID string) {
	if conns, ok := r.byChat[chatID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byChat, chatID)
		}
	}
	if chats, ok := r.byConn[connID]; ok {
		delete(chats, chatID)
		if len(chats) == 0 {
			delete(r.byConn, connID)
		}
	}
}

// Subscribers returns a snapshot of the connection ids subscribed to
// chatID's room.
func (r *Rooms) Subscribers(chatID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0, len(r.byChat[chatID]))
	for connID := range r.byChat[chatID] {
		conns = append(conns, connID)
	}
	return conns
}

// Contains reports whether connID is subscribed to chatID's room.
func (r *Rooms) Contains(chatID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byChat[chatID][connID]
	return ok
}

// Count returns the number of rooms with at least one subscriber.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byChat)
}
