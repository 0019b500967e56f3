// Package session holds the client's belief about which user is logged
// in. Only login outcomes write it; gated operations read it.
package session

import "sync"

// State is the current authenticated identity. The zero value is a
// logged-out state ready for use.
type State struct {
	mu       sync.RWMutex
	username string
	set      bool
}

// New returns a logged-out State.
func New() *State {
	return &State{}
}

// Get returns the logged-in username, and false when nobody is.
func (s *State) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username, s.set
}

// SetOnLoginSuccess records username as the authenticated identity.
func (s *State) SetOnLoginSuccess(username string) {
	s.mu.Lock()
	s.username = username
	s.set = true
	s.mu.Unlock()
}

// ClearOnLoginFailure forgets any authenticated identity.
func (s *State) ClearOnLoginFailure() {
	s.mu.Lock()
	s.username = ""
	s.set = false
	s.mu.Unlock()
}
