package gateway

import (
	"sync"
)

// Registry is the process-wide mapping from user ID to that user's live
// session. At most one session per user is registered at any instant.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register atomically swaps in the new session and returns the evicted
// predecessor, if any. The caller must close the predecessor with
// ConnectionReplaced.
func (r *Registry) Register(session *Session) (evicted *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted = r.sessions[session.UserID]
	r.sessions[session.UserID] = session
	return evicted
}

// Unregister removes the mapping only if session is still the registered
// instance. The compare-and-remove keeps a late-closing predecessor from
// undoing its successor's registration.
func (r *Registry) Unregister(session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[session.UserID]
	if !ok || current.ID != session.ID {
		return false
	}
	delete(r.sessions, session.UserID)
	return true
}

func (r *Registry) Lookup(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[userID]
	return session, ok
}

// Snapshot returns the currently registered sessions in map order. The
// dispatcher scans the snapshot each pass; map iteration order varies per
// pass, which is what keeps the scan fair across users.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
