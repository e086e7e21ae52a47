package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/evermart/eventflow/idempotency"
)

// ClientRequestStore implements the idempotency.Guard interface for PostgreSQL.
type ClientRequestStore struct {
	db *DB
}

func NewClientRequestStore(db *DB) *ClientRequestStore {
	return &ClientRequestStore{db: db}
}

// Exists checks whether a command with the given correlation id has already
// been accepted.
func (s *ClientRequestStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM client_requests WHERE id = $1)`
	err := s.db.Querier(ctx).QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for client request: %w", err)
	}
	return exists, nil
}

// CreateForCommand records the command id. The insert itself is the guard:
// two concurrent duplicate deliveries cannot both succeed, because the
// second insert hits the primary key and is reported as a duplicate. No
// exists-then-insert window.
func (s *ClientRequestStore) CreateForCommand(ctx context.Context, commandName string, id uuid.UUID) error {
	query := `INSERT INTO client_requests (id, name, time) VALUES ($1, $2, $3)`
	_, err := s.db.Querier(ctx).Exec(ctx, query, id, commandName, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		// "23505" is the unique_violation error code in PostgreSQL.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("request %s: %w", id, idempotency.ErrDuplicateRequest)
		}
		return fmt.Errorf("failed to record client request: %w", err)
	}
	return nil
}
