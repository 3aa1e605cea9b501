package credential

import (
	"context"
	"sync"
)

// MemoryStore keeps the collection in process memory. Used in tests and
// when the store type is "memory".
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	saves   int
}

// NewMemoryStore creates a memory store seeded with a copy of records.
func NewMemoryStore(records map[string]*Record) *MemoryStore {
	return &MemoryStore{records: CloneAll(records)}
}

// Load returns a copy of the stored collection.
func (s *MemoryStore) Load(ctx context.Context) (map[string]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return CloneAll(s.records), nil
}

// Save replaces the stored collection with a copy of records.
func (s *MemoryStore) Save(ctx context.Context, records map[string]*Record) error {
	if err := ctx.Err(); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = CloneAll(records)
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
