package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteBackend stores state in the process_state table. Every Update pins a
// dedicated connection and runs inside BEGIN IMMEDIATE, so the database write
// lock serializes concurrent writers across goroutines and processes.
type SQLiteBackend struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteBackend creates a backend on db. The process_state table must exist.
func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db, now: time.Now}
}

const upsertState = `INSERT INTO process_state (trace_id, state_data, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (trace_id) DO UPDATE SET state_data = excluded.state_data, updated_at = excluded.updated_at`

// Load implements Backend.
func (b *SQLiteBackend) Load(ctx context.Context, id string) (map[string]any, bool, error) {
	var data string

	err := b.db.QueryRowContext(ctx, "SELECT state_data FROM process_state WHERE trace_id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	st, err := decode(data)
	if err != nil {
		return nil, false, err
	}

	return st, true, nil
}

// Save implements Backend.
func (b *SQLiteBackend) Save(ctx context.Context, id string, state map[string]any) error {
	data, err := encode(state)
	if err != nil {
		return err
	}

	_, err = b.db.ExecContext(ctx, upsertState, id, data, b.timestamp())

	return err
}

// Update implements Backend.
func (b *SQLiteBackend) Update(ctx context.Context, id string, fn UpdateFunc) (map[string]any, error) {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, fmt.Errorf("begin immediate: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so a cancelled caller still releases the lock.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	var (
		data  string
		found = true
	)
	switch err := conn.QueryRowContext(ctx, "SELECT state_data FROM process_state WHERE trace_id = ?", id).Scan(&data); {
	case errors.Is(err, sql.ErrNoRows):
		found = false
	case err != nil:
		return nil, fmt.Errorf("read state: %w", err)
	}

	current, err := decode(data)
	if err != nil {
		return nil, err
	}

	next, err := fn(current, found)
	if err != nil {
		return nil, err
	}

	encoded, err := encode(next)
	if err != nil {
		return nil, err
	}

	if _, err := conn.ExecContext(ctx, upsertState, id, encoded, b.timestamp()); err != nil {
		return nil, fmt.Errorf("write state: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true

	return decode(encoded)
}

func (b *SQLiteBackend) timestamp() string {
	return b.now().UTC().Format(time.RFC3339Nano)
}
