package store

import (
	"sync"

	"grimm.is/pfw/internal/clock"
)

// MemoryStore keeps rules in process memory. Used by tests and for
// throwaway servers.
type MemoryStore struct {
	listStore
	mu     sync.RWMutex
	rules  ruleList
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	s := &MemoryStore{}
	s.listStore = listStore{backend: s, st: stamper{clock: clock.OrReal(clk)}}
	return s
}

func (s *MemoryStore) view(fn func(ruleList) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(s.rules)
}

func (s *MemoryStore) update(fn func(*ruleList) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	// Work on a copy so a failed update leaves the collection untouched.
	next := ruleList(s.rules.clone())
	if err := fn(&next); err != nil {
		return err
	}
	s.rules = next
	return nil
}

// Close marks the store closed. Further calls return ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
