package watcher

import "sync"

// HandleState is what the watcher knows about one torrent hash.
type HandleState int

const (
	// StateUnseen means the hash has never been observed this session.
	StateUnseen HandleState = iota
	// StateSeen means the hash was observed and handed to the guard.
	StateSeen
	// StateForgotten means the torrent was removed after being seen; a
	// re-add is treated like a new torrent.
	StateForgotten
)

// SeenSet tracks per-handle state for the current process lifetime. It is
// purely in-memory. Mutations come from the polling loop while the status
// endpoint reads concurrently, so access is guarded internally.
type SeenSet struct {
	mu     sync.RWMutex
	states map[string]HandleState
}

// NewSeenSet creates an empty seen set.
func NewSeenSet() *SeenSet {
	return &SeenSet{states: make(map[string]HandleState)}
}

// State returns the current state of a hash.
func (s *SeenSet) State(hash string) HandleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[hash]
}

// MarkSeen transitions a hash to seen from any state.
func (s *SeenSet) MarkSeen(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[hash] = StateSeen
}

// Forget transitions a seen hash to forgotten. Hashes never seen stay
// unseen.
func (s *SeenSet) Forget(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states[hash] == StateSeen {
		s.states[hash] = StateForgotten
	}
}

// Len counts hashes currently in the seen state.
func (s *SeenSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, st := range s.states {
		if st == StateSeen {
			n++
		}
	}
	return n
}
