package engine

import "sync"

// Session holds the engine root resolved for the current editor session.
// Once set it is never invalidated.
type Session struct {
	mu     sync.RWMutex
	root   string
	source Source
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// EngineRoot returns the cached root, if any.
func (s *Session) EngineRoot() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root, s.root != ""
}

// Source returns where the cached root originally came from.
func (s *Session) Source() Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

func (s *Session) remember(root string, source Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = root
	s.source = source
}
