package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"time-ledger/internal/domain"
)

// MirroredEventStore appends to a primary store and copies every accepted
// batch to secondary stores. Reads are served by the primary only.
type MirroredEventStore struct {
	primary EventStore
	mirrors []EventStore
}

// NewMirroredEventStore creates a store writing to primary and mirrors.
func NewMirroredEventStore(primary EventStore, mirrors ...EventStore) *MirroredEventStore {
	return &MirroredEventStore{primary: primary, mirrors: mirrors}
}

// Compile-time interface check.
var _ EventStore = (*MirroredEventStore)(nil)

// Append writes to the primary first. Mirror failures are joined into the
// returned error but never undo the primary write.
func (s *MirroredEventStore) Append(ctx context.Context, events []domain.Event) error {
	if err := s.primary.Append(ctx, events); err != nil {
		return err
	}

	var errs []error
	for i, m := range s.mirrors {
		if err := m.Append(ctx, events); err != nil {
			errs = append(errs, fmt.Errorf("mirror %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// GetByID reads from the primary.
func (s *MirroredEventStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	return s.primary.GetByID(ctx, id)
}

// List reads from the primary.
func (s *MirroredEventStore) List(ctx context.Context, filter EventFilter) ([]domain.Event, error) {
	return s.primary.List(ctx, filter)
}
