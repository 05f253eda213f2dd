package storage

import (
	"context"

	"github.com/google/uuid"

	"time-ledger/internal/domain"
)

// StateStore persists committed ledger state slot by slot.
type StateStore interface {
	// Apply upserts the final values written by one committed operation.
	// The whole batch is applied atomically.
	Apply(ctx context.Context, height uint64, changes []domain.StateChange) error

	// LoadAll returns every persisted slot, ordered by namespace and key.
	LoadAll(ctx context.Context) ([]domain.StateChange, error)

	// LastHeight returns the height of the latest applied batch. Returns ErrNotFound if empty.
	LastHeight(ctx context.Context) (uint64, error)
}

// EventStore provides access to the append-only ledger event journal.
type EventStore interface {
	// Append adds events. Returns ErrDuplicateKey if an event ID already exists.
	Append(ctx context.Context, events []domain.Event) error

	// GetByID retrieves an event by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error)

	// List retrieves events matching filter, ordered by height then commit order.
	List(ctx context.Context, filter EventFilter) ([]domain.Event, error)
}

// EventFilter narrows an event query. Zero fields match everything.
type EventFilter struct {
	FromHeight uint64 // inclusive
	ToHeight   uint64 // inclusive, 0 = unbounded
	Contract   string
	Kind       domain.EventKind
	Actor      *domain.Address
	Limit      int
}

// Matches reports whether e passes the filter, ignoring Limit.
func (f EventFilter) Matches(e *domain.Event) bool {
	if e.Height < f.FromHeight {
		return false
	}
	if f.ToHeight != 0 && e.Height > f.ToHeight {
		return false
	}
	if f.Contract != "" && e.Contract != f.Contract {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Actor != nil && e.Actor != *f.Actor {
		return false
	}
	return true
}
