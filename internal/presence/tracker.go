// Package presence tracks which users currently hold a live connection.
// It is a service instance with its own lock, fully independent of the
// per-session actors, so a disconnect can never deadlock against an
// in-flight session action.
package presence

import (
	"sync"

	"github.com/google/uuid"
)

// Handle identifies one live connection. Implemented by realtime.Client.
type Handle interface {
	ConnectionID() string
}

// Tracker maps a user id to at most one live connection.
type Tracker struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]Handle
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{conns: make(map[uuid.UUID]Handle)}
}

// Connect associates the user with the connection, replacing any prior
// handle: when a user reconnects, the newest connection wins.
func (t *Tracker) Connect(userID uuid.UUID, h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[userID] = h
}

// Disconnect removes the association owned by this handle. A stale
// disconnect arriving after the user already reconnected compares the
// stored handle and leaves the newer mapping in place.
func (t *Tracker) Disconnect(userID uuid.UUID, h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.conns[userID]
	if !ok || cur.ConnectionID() != h.ConnectionID() {
		return
	}
	delete(t.conns, userID)
}

// Get returns the live handle for a user, or nil when offline.
func (t *Tracker) Get(userID uuid.UUID) Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conns[userID]
}

// IsOnline reports whether the user holds a live connection.
func (t *Tracker) IsOnline(userID uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.conns[userID]
	return ok
}

// ListOnline returns the ids of every online user.
func (t *Tracker) ListOnline() []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(t.conns))
	for id := range t.conns {
		ids = append(ids, id)
	}
	return ids
}

// Clear drops every association. Used on shutdown.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns = make(map[uuid.UUID]Handle)
}
