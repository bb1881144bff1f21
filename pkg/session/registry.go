// Package session tracks connected sessions: which user they belong to,
// which room they are subscribed to, and the transport that delivers their
// events.
package session

import (
	"sync"

	"github.com/textmoor/textmoor/pkg/events"
)

// Session is one live connection's registry record.
type Session struct {
	ID       string
	UserID   string
	Location string
	Alive    bool
}

type entry struct {
	sess Session
	sub  events.Subscriber
}

// Registry maps session ids to their user, location and transport. It
// implements events.Roster so the broadcaster can snapshot recipients.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

// Connect records a new live session.
func (r *Registry) Connect(id, userID, location string, sub events.Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &entry{
		sess: Session{ID: id, UserID: userID, Location: location, Alive: true},
		sub:  sub,
	}
}

// Get returns a snapshot of one session's record.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return e.sess, true
}

// Subscribe records the session's current room.
func (r *Registry) Subscribe(sessionID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sessionID]; ok {
		e.sess.Location = roomID
	}
}

// MoveSubscription retargets a session from one room to another as a single
// atomic update: there is no window in which the session is subscribed to
// neither or both rooms. Callers invoke it under the same location guards
// that protect the move's commit. A session whose recorded location is not
// `from` is left untouched.
//
// All of a user's sessions track the one user entity, so a move carries the
// user's other sessions along: otherwise a second connection would keep
// acquiring the old room's guard for an actor now rooted elsewhere.
func (r *Registry) MoveSubscription(sessionID, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok || e.sess.Location != from {
		return
	}
	for _, other := range r.sessions {
		if other.sess.UserID == e.sess.UserID && other.sess.Location == from {
			other.sess.Location = to
		}
	}
}

// Disconnect marks a session dead and removes it, returning the record it
// held so the caller can emit the room-scoped leave event. Calling it twice
// for the same session is a no-op the second time.
func (r *Registry) Disconnect(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, sessionID)
	e.sess.Alive = false
	return e.sess, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Connected returns a snapshot of all live sessions, for WHO listings.
func (r *Registry) Connected() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.sess)
	}
	return out
}

// Subscriber implements events.Roster.
func (r *Registry) Subscriber(sessionID string) (events.Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.sub, true
}

// InRoom implements events.Roster.
func (r *Registry) InRoom(roomID string) map[string]events.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]events.Subscriber)
	for id, e := range r.sessions {
		if e.sess.Location == roomID {
			out[id] = e.sub
		}
	}
	return out
}

// OfUser implements events.Roster.
func (r *Registry) OfUser(userID string) map[string]events.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]events.Subscriber)
	for id, e := range r.sessions {
		if e.sess.UserID == userID {
			out[id] = e.sub
		}
	}
	return out
}

// AllLive implements events.Roster.
func (r *Registry) AllLive() map[string]events.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]events.Subscriber, len(r.sessions))
	for id, e := range r.sessions {
		out[id] = e.sub
	}
	return out
}

var _ events.Roster = (*Registry)(nil)
