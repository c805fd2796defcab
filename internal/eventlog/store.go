package eventlog

import "sync"

// Store owns one Log per session. It is constructed by the host composition
// root and passed to the session manager and converters; there is no
// process-wide registry.
type Store struct {
	mu   sync.RWMutex
	logs map[string]*Log
}

// NewStore creates an empty log store.
func NewStore() *Store {
	return &Store{logs: make(map[string]*Log)}
}

// Get returns the log for a session, creating it on first use.
func (s *Store) Get(sessionID string) *Log {
	s.mu.RLock()
	l, ok := s.logs[sessionID]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[sessionID]; ok {
		return l
	}
	l = NewLog()
	s.logs[sessionID] = l
	return l
}

// Lookup returns the log for a session without creating one.
func (s *Store) Lookup(sessionID string) (*Log, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[sessionID]
	return l, ok
}

// Remove drops a session's log. Called only after the session reached a
// terminal state and no observer remains attached.
func (s *Store) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, sessionID)
}
