package postgres

import (
	"context"
	"fmt"
	"time"

	"time-ledger/internal/domain"
	"time-ledger/internal/storage"
)

// StateStore implements storage.StateStore using PostgreSQL.
type StateStore struct {
	pool *Pool
}

// NewStateStore creates a new StateStore.
func NewStateStore(pool *Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StateStore = (*StateStore)(nil)

// Apply upserts the final values of one committed operation and advances the
// stored height in a single transaction.
func (s *StateStore) Apply(ctx context.Context, height uint64, changes []domain.StateChange) (err error) {
	start := time.Now()
	defer func() { observe("state_apply", start, err) }()

	for _, c := range changes {
		if c.Namespace == "" || c.Key == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	upsert := `
		INSERT INTO ledger_state (namespace, key, value, height, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = EXCLUDED.value, height = EXCLUDED.height, updated_at = now()
	`
	for _, c := range changes {
		if _, err := tx.Exec(ctx, upsert, c.Namespace, c.Key, c.Value, int64(height)); err != nil {
			return fmt.Errorf("upsert state %s: %w", c.SlotID(), err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_meta (id, last_height) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_height = EXCLUDED.last_height
	`, int64(height))
	if err != nil {
		return fmt.Errorf("update last height: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadAll returns every persisted slot, ordered by namespace and key.
func (s *StateStore) LoadAll(ctx context.Context) (_ []domain.StateChange, err error) {
	start := time.Now()
	defer func() { observe("state_load", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT namespace, key, value
		FROM ledger_state
		ORDER BY namespace ASC, key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}
	defer rows.Close()

	var result []domain.StateChange
	for rows.Next() {
		var c domain.StateChange
		if err := rows.Scan(&c.Namespace, &c.Key, &c.Value); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state: %w", err)
	}
	return result, nil
}

// LastHeight returns the height of the latest applied batch.
func (s *StateStore) LastHeight(ctx context.Context) (uint64, error) {
	var height int64
	err := s.pool.QueryRow(ctx, `SELECT last_height FROM ledger_meta WHERE id = 1`).Scan(&height)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("query last height: %w", err)
	}
	return uint64(height), nil
}
