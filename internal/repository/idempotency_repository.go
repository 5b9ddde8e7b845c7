package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
)

// pqUniqueViolation is the Postgres error code for unique constraint failures.
const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether the error is a Postgres unique-constraint
// failure, i.e. a concurrent writer committed the conflicting row first.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation
}

// IdempotencyRepository persists the at-most-once execution ledger. The
// (operation_type, idempotency_key) unique constraint is the arbiter for
// concurrent first-callers.
type IdempotencyRepository struct {
	db *sqlx.DB
}

// NewIdempotencyRepository constructs the repository.
func NewIdempotencyRepository(db *sqlx.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Begin opens the transaction an idempotency-guarded operation runs in.
func (r *IdempotencyRepository) Begin(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin idempotency tx: %w", err)
	}
	return tx, nil
}

// Insert claims the (operation type, key) pair inside the given transaction.
// A unique-violation error means another caller already claimed it.
func (r *IdempotencyRepository) Insert(ctx context.Context, tx *sqlx.Tx, operationType, key string) error {
	const query = `INSERT INTO idempotency_keys (id, operation_type, idempotency_key, created_at)
	VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, query, uuid.NewString(), operationType, key, time.Now().UTC()); err != nil {
		return err
	}
	return nil
}

// SaveResult records the builder's outcome on the claimed ledger row, inside
// the same transaction as the domain write.
func (r *IdempotencyRepository) SaveResult(ctx context.Context, tx *sqlx.Tx, operationType, key string, result []byte) error {
	const query = `UPDATE idempotency_keys SET result = $1
	WHERE operation_type = $2 AND idempotency_key = $3`
	if _, err := tx.ExecContext(ctx, query, result, operationType, key); err != nil {
		return fmt.Errorf("save idempotency result: %w", err)
	}
	return nil
}

// GetResult returns the stored result for a committed ledger entry.
// sql.ErrNoRows signals the pair has never completed.
func (r *IdempotencyRepository) GetResult(ctx context.Context, operationType, key string) ([]byte, error) {
	const query = `SELECT result FROM idempotency_keys
	WHERE operation_type = $1 AND idempotency_key = $2 AND result IS NOT NULL`
	var result []byte
	if err := r.db.GetContext(ctx, &result, query, operationType, key); err != nil {
		return nil, err
	}
	return result, nil
}

// GetEntry returns the full ledger row, primarily for diagnostics.
func (r *IdempotencyRepository) GetEntry(ctx context.Context, operationType, key string) (*models.IdempotencyKey, error) {
	const query = `SELECT id, operation_type, idempotency_key, result, created_at
	FROM idempotency_keys WHERE operation_type = $1 AND idempotency_key = $2`
	var entry models.IdempotencyKey
	if err := r.db.GetContext(ctx, &entry, query, operationType, key); err != nil {
		return nil, err
	}
	return &entry, nil
}
