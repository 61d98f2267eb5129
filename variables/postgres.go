package variables

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avast/retry-go/v4"
	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"
)

// readAttempts bounds the retry on transient read failures. Task execution
// is never retried here; only the variable fetch is.
const readAttempts = 3

// PostgresStore reads variables from the orchestrator's metadata database,
// from a table of (key, value) rows where value is a JSON document.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = &PostgresStore{}

// NewPostgres opens a connection pool from a postgres DSN and verifies it
// with a ping.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening variables db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging variables db: %w", err)
	}

	return NewPostgresFromDB(db), nil
}

// NewPostgresFromDB wraps an existing connection pool.
func NewPostgresFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetJSON implements Store. Transient read failures are retried a few times;
// a missing key is unrecoverable and returns ErrNotFound immediately.
func (s *PostgresStore) GetJSON(ctx context.Context, key string, out any) error {
	var raw string
	err := retry.Do(
		func() error {
			row := s.db.QueryRowContext(ctx, `SELECT value FROM variables WHERE "key" = $1`, key)
			if err := row.Scan(&raw); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return retry.Unrecoverable(fmt.Errorf("variable %q: %w", key, ErrNotFound))
				}
				return err
			}
			return nil
		},
		retry.Attempts(readAttempts),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("unmarshaling variable %q: %w", key, err)
	}

	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
