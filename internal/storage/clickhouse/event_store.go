package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"time-ledger/internal/domain"
	"time-ledger/internal/observability"
	"time-ledger/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
// ClickHouse has no insertion counter, so events of one height are ordered
// by emission time and then by sequence.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const eventColumns = `id, height, sequence, contract, kind, actor, counterparty, amount, value, has_value, emitted_at`

// Append adds events. Fails entire batch on duplicate id.
func (s *EventStore) Append(ctx context.Context, events []domain.Event) (err error) {
	if len(events) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe("events_append", start, err) }()

	ids := make([]uuid.UUID, 0, len(events))
	seen := make(map[uuid.UUID]struct{}, len(events))
	for _, e := range events {
		if e.ID == uuid.Nil || e.Kind == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.ID] = struct{}{}
		ids = append(ids, e.ID)
	}

	exists, err := s.anyExists(ctx, ids)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO ledger_events (`+eventColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.ID, e.Height, uint32(e.Sequence),
			e.Contract, string(e.Kind),
			e.Actor.String(), e.Counterparty.String(),
			orZero(e.Amount), orZero(e.Value), e.Value != nil,
			e.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByID retrieves an event by its ID.
func (s *EventStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+eventColumns+` FROM ledger_events FINAL WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, storage.ErrNotFound
	}
	return &events[0], nil
}

// List retrieves events matching filter, ordered by height, emission time and sequence.
func (s *EventStore) List(ctx context.Context, filter storage.EventFilter) (_ []domain.Event, err error) {
	if filter.Limit < 0 {
		return nil, storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("events_list", start, err) }()

	where := []string{"height >= ?"}
	args := []any{filter.FromHeight}
	if filter.ToHeight != 0 {
		where = append(where, "height <= ?")
		args = append(args, filter.ToHeight)
	}
	if filter.Contract != "" {
		where = append(where, "contract = ?")
		args = append(args, filter.Contract)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Actor != nil {
		where = append(where, "actor = ?")
		args = append(args, filter.Actor.String())
	}

	query := `SELECT ` + eventColumns + ` FROM ledger_events FINAL WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY height ASC, emitted_at ASC, sequence ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// anyExists reports whether any of ids is already stored.
func (s *EventStore) anyExists(ctx context.Context, ids []uuid.UUID) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM ledger_events WHERE id IN (?)`, ids).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is an interface for ClickHouse rows iteration.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanEvents scans multiple rows.
func scanEvents(rows chRows) ([]domain.Event, error) {
	var events []domain.Event

	for rows.Next() {
		var (
			e                   domain.Event
			sequence            uint32
			kind                string
			actor, counterparty string
			amount, value       big.Int
			hasValue            bool
		)

		err := rows.Scan(
			&e.ID, &e.Height, &sequence,
			&e.Contract, &kind,
			&actor, &counterparty,
			&amount, &value, &hasValue,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Sequence = int(sequence)
		e.Kind = domain.EventKind(kind)
		if e.Actor, err = domain.ParseAddress(actor); err != nil {
			return nil, fmt.Errorf("actor: %w", err)
		}
		if e.Counterparty, err = domain.ParseAddress(counterparty); err != nil {
			return nil, fmt.Errorf("counterparty: %w", err)
		}
		e.Amount = new(big.Int).Set(&amount)
		if hasValue {
			e.Value = new(big.Int).Set(&value)
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}

func orZero(a *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return a
}

func observe(operation string, start time.Time, err error) {
	observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), err)
}
