// Package worker implements the subprocess side of the inspection
// protocol: the listener loop, the session store, and the registry of live
// access wrappers reachable through handles.
package worker

import (
	"sync"
)

// Session is one logical inference run materialized inside the worker. It
// owns the handle store for every object wrapped on its behalf and a
// scratch map for state kept by registered operations.
type Session struct {
	ID      uint64
	Handles *HandleStore
	Data    map[string]interface{}
}

// SessionStore maps context ids to live sessions. The host owns the ids;
// the worker materializes a session lazily on first use of an id and
// destroys it when the host signals deletion. Exactly one session exists
// per live id.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uint64]*Session
	created  uint64
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session)}
}

// GetOrCreate returns the session for an id, materializing it on first use.
func (s *SessionStore) GetOrCreate(id uint64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{
			ID:      id,
			Handles: NewHandleStore(),
			Data:    make(map[string]interface{}),
		}
		s.sessions[id] = sess
		s.created++
	}
	return sess
}

// Delete destroys the session for an id. A later call naming the same id
// materializes a fresh session with no carried-over state.
func (s *SessionStore) Delete(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Count returns the number of live sessions.
func (s *SessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Created returns the total number of sessions ever materialized.
func (s *SessionStore) Created() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}
