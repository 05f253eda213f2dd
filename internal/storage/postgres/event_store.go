package postgres

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"time-ledger/internal/domain"
	"time-ledger/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const eventColumns = `id, height, sequence, contract, kind, actor, counterparty, amount::text, value::text, emitted_at`

// Append adds events atomically. Fails entire batch on any duplicate ID.
func (s *EventStore) Append(ctx context.Context, events []domain.Event) (err error) {
	if len(events) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe("events_append", start, err) }()

	for _, e := range events {
		if e.ID == uuid.Nil || e.Kind == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO ledger_events (
			id, height, sequence, contract, kind, actor, counterparty, amount, value, emitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10)
	`

	for _, e := range events {
		_, err := tx.Exec(ctx, query,
			e.ID,
			int64(e.Height),
			e.Sequence,
			e.Contract,
			string(e.Kind),
			e.Actor.String(),
			e.Counterparty.String(),
			amountText(e.Amount),
			nullableAmount(e.Value),
			e.Timestamp,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves an event by its ID.
func (s *EventStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM ledger_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query event: %w", err)
	}
	return e, nil
}

// List retrieves events matching filter, ordered by height then commit order.
func (s *EventStore) List(ctx context.Context, filter storage.EventFilter) (_ []domain.Event, err error) {
	if filter.Limit < 0 {
		return nil, storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("events_list", start, err) }()

	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	add("height >= $%d", int64(filter.FromHeight))
	if filter.ToHeight != 0 {
		add("height <= $%d", int64(filter.ToHeight))
	}
	if filter.Contract != "" {
		add("contract = $%d", filter.Contract)
	}
	if filter.Kind != "" {
		add("kind = $%d", string(filter.Kind))
	}
	if filter.Actor != nil {
		add("actor = $%d", filter.Actor.String())
	}

	query := `SELECT ` + eventColumns + ` FROM ledger_events WHERE ` + strings.Join(where, " AND ") + ` ORDER BY height ASC, seq ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var result []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return result, nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var (
		e                   domain.Event
		height              int64
		kind                string
		actor, counterparty string
		amount              string
		value               *string
	)
	err := row.Scan(&e.ID, &height, &e.Sequence, &e.Contract, &kind, &actor, &counterparty, &amount, &value, &e.Timestamp)
	if err != nil {
		return nil, err
	}

	e.Height = uint64(height)
	e.Kind = domain.EventKind(kind)
	if e.Actor, err = domain.ParseAddress(actor); err != nil {
		return nil, fmt.Errorf("actor: %w", err)
	}
	if e.Counterparty, err = domain.ParseAddress(counterparty); err != nil {
		return nil, fmt.Errorf("counterparty: %w", err)
	}
	if e.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	if value != nil {
		if e.Value, err = parseAmount(*value); err != nil {
			return nil, err
		}
	}
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}

func amountText(a *big.Int) string {
	if a == nil {
		return "0"
	}
	return a.String()
}

func nullableAmount(a *big.Int) *string {
	if a == nil {
		return nil
	}
	s := a.String()
	return &s
}

func parseAmount(s string) (*big.Int, error) {
	a, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return a, nil
}
