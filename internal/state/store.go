// Package state holds the per-source build outcomes shared between the watch
// workers, which write them, and the HTTP router, which reads them.
package state

import (
	"sync"
)

// Outcome is the latest build result for one source.
//
// Update is true when the artifact changed (or a rebuild was attempted) since
// a client last cleared the flag. Error is true when the most recent
// compilation attempt failed.
type Outcome struct {
	Update bool `json:"update"`
	Error  bool `json:"error"`
}

// Store is a concurrency-safe map from source identifier to Outcome.
type Store interface {
	// Get returns the outcome for id and whether it exists.
	Get(id string) (Outcome, bool)
	// Put replaces the outcome for id unconditionally.
	Put(id string, outcome Outcome)
	// ClearUpdate sets Update to false for an existing id, leaving Error
	// untouched. It reports whether id was present.
	ClearUpdate(id string) bool
}

// MemoryStore is the lock-protected Store used by the running server.
type MemoryStore struct {
	mu       sync.Mutex
	outcomes map[string]Outcome
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{outcomes: make(map[string]Outcome)}
}

func (s *MemoryStore) Get(id string) (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, ok := s.outcomes[id]

	return outcome, ok
}

func (s *MemoryStore) Put(id string, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes[id] = outcome
}

func (s *MemoryStore) ClearUpdate(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, ok := s.outcomes[id]
	if !ok {
		return false
	}
	outcome.Update = false
	s.outcomes[id] = outcome

	return true
}

// Len returns the number of known sources.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.outcomes)
}

var _ Store = (*MemoryStore)(nil)
