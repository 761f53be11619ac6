package session

import (
	"sync"

	"github.com/samber/oops"
)

// Store maps identifiers to live entries. Entries are only removed by the
// Manager.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*Entry)}
}

// Put adds e under id. It fails with ErrDuplicateIdentifier if id is taken.
func (s *Store) Put(id string, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return oops.
			Code(CodeDuplicateIdentifier).
			With("session_id", id).
			Wrap(ErrDuplicateIdentifier)
	}
	s.entries[id] = e
	return nil
}

// Get returns the entry for id.
func (s *Store) Get(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Delete removes id. Deleting an absent id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Has reports whether id is live.
func (s *Store) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns the live entries in no particular order.
func (s *Store) Snapshot() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}
