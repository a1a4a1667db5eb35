package authstate

import "sync"

// Store holds a State and applies events to it one at a time. The last
// dispatch wins.
type Store struct {
	mu     sync.Mutex
	state  State
	closed bool
}

// NewStore returns a store in StatusUnresolved.
func NewStore() *Store {
	return &Store{}
}

// Dispatch applies e and returns the resulting state. After Close the event
// is dropped and ok is false.
func (s *Store) Dispatch(e Event) (state State, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.state, false
	}
	s.state = Reduce(s.state, e)
	return s.state, true
}

// State returns a snapshot of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close stops the store from accepting further events.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
