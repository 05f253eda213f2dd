package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/google/uuid"

	"time-ledger/internal/domain"
	"time-ledger/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu     sync.RWMutex
	events []domain.Event
	ids    map[uuid.UUID]int
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		ids: make(map[uuid.UUID]int),
	}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Append adds events atomically. Fails the entire batch on any duplicate ID.
func (s *EventStore) Append(_ context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchIDs := make(map[uuid.UUID]struct{}, len(events))
	for _, e := range events {
		if e.ID == uuid.Nil || e.Kind == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.ids[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchIDs[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batchIDs[e.ID] = struct{}{}
	}

	for _, e := range events {
		s.ids[e.ID] = len(s.events)
		s.events = append(s.events, copyEvent(e))
	}
	return nil
}

// GetByID retrieves an event by its ID.
func (s *EventStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.ids[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	e := copyEvent(s.events[i])
	return &e, nil
}

// List retrieves events matching filter, ordered by height then commit order.
func (s *EventStore) List(_ context.Context, filter storage.EventFilter) ([]domain.Event, error) {
	if filter.Limit < 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Event
	for i := range s.events {
		if filter.Matches(&s.events[i]) {
			result = append(result, copyEvent(s.events[i]))
		}
	}

	// Events of one height may arrive from several operations; keep arrival
	// order for equal keys.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Height < result[j].Height
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func copyEvent(e domain.Event) domain.Event {
	out := e
	if e.Amount != nil {
		out.Amount = new(big.Int).Set(e.Amount)
	}
	if e.Value != nil {
		out.Value = new(big.Int).Set(e.Value)
	}
	return out
}
