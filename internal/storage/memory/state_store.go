package memory

import (
	"context"
	"sort"
	"sync"

	"time-ledger/internal/domain"
	"time-ledger/internal/storage"
)

// StateStore is an in-memory implementation of storage.StateStore.
type StateStore struct {
	mu         sync.RWMutex
	data       map[string]domain.StateChange // keyed by slot id
	lastHeight uint64
	applied    bool
}

// NewStateStore creates a new in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		data: make(map[string]domain.StateChange),
	}
}

// Compile-time interface check.
var _ storage.StateStore = (*StateStore)(nil)

// Apply upserts the final values written by one committed operation.
func (s *StateStore) Apply(_ context.Context, height uint64, changes []domain.StateChange) error {
	for _, c := range changes {
		if c.Namespace == "" || c.Key == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range changes {
		s.data[c.SlotID()] = c
	}
	s.lastHeight = height
	s.applied = true
	return nil
}

// LoadAll returns every persisted slot, ordered by namespace and key.
func (s *StateStore) LoadAll(_ context.Context) ([]domain.StateChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StateChange, 0, len(s.data))
	for _, c := range s.data {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Namespace != result[j].Namespace {
			return result[i].Namespace < result[j].Namespace
		}
		return result[i].Key < result[j].Key
	})
	return result, nil
}

// LastHeight returns the height of the latest applied batch.
func (s *StateStore) LastHeight(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.applied {
		return 0, storage.ErrNotFound
	}
	return s.lastHeight, nil
}
