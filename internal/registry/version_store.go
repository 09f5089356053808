package registry

import (
	"context"
	"sync"
)

// VersionStore persists an exported object's localVersion counter
// outside process memory, so a session that restarts does not
// accidentally reuse a version number a still-connected peer has
// already observed and consider it up to date.
type VersionStore interface {
	// Next returns the next localVersion to assign to id, persisting it
	// before returning so a concurrent or subsequent call never repeats
	// a value.
	Next(ctx context.Context, id uint64) (uint32, error)
	// Close releases any resources the store holds.
	Close() error
}

// InMemoryVersionStore is the default VersionStore: a process-local
// counter per identifier, lost on restart. Suitable when the session
// partner always reconnects fresh (no durable DGC state is expected
// across restarts).
type InMemoryVersionStore struct {
	mu       sync.Mutex
	counters map[uint64]uint32
}

// NewInMemoryVersionStore returns an empty InMemoryVersionStore.
func NewInMemoryVersionStore() *InMemoryVersionStore {
	return &InMemoryVersionStore{counters: make(map[uint64]uint32)}
}

func (s *InMemoryVersionStore) Next(_ context.Context, id uint64) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[id]++
	return s.counters[id], nil
}

func (s *InMemoryVersionStore) Close() error { return nil }
