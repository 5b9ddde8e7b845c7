package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	appErrors "github.com/bonjohen/cedar-terrace-sub001/pkg/errors"
)

type ledgerRepository interface {
	Begin(ctx context.Context) (*sqlx.Tx, error)
	Insert(ctx context.Context, tx *sqlx.Tx, operationType, key string) error
	SaveResult(ctx context.Context, tx *sqlx.Tx, operationType, key string, result []byte) error
	GetResult(ctx context.Context, operationType, key string) ([]byte, error)
}

type uniqueViolationFunc func(error) bool

// Ledger provides exactly-once execution of side-effecting operations keyed
// by (operation type, idempotency key). The operation's writes, the ledger
// row, and the stored result all commit in one transaction, so a crash before
// commit leaves no trace and the key is replayable.
type Ledger struct {
	repo        ledgerRepository
	isUniqueErr uniqueViolationFunc
	logger      *zap.Logger
}

// NewLedger constructs the ledger service.
func NewLedger(repo ledgerRepository, isUniqueErr uniqueViolationFunc, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{repo: repo, isUniqueErr: isUniqueErr, logger: logger}
}

// ExecuteOnce runs builder exactly once per (operationType, key). The first
// caller executes builder inside a transaction and persists its JSON result;
// every later caller with the same pair gets that stored result back with
// created=false and no side effects. Concurrent first-callers race on the
// ledger's unique constraint: the loser blocks until the winner commits,
// rolls back its own work, and re-reads the winner's result.
func (l *Ledger) ExecuteOnce(ctx context.Context, operationType, key string, builder func(tx *sqlx.Tx) (interface{}, error)) (json.RawMessage, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "idempotency key is required")
	}

	// Fast path: a committed result short-circuits without opening a tx.
	if stored, err := l.repo.GetResult(ctx, operationType, key); err == nil {
		return stored, false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("read idempotency result: %w", err)
	}

	tx, err := l.repo.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin idempotent tx: %w", err)
	}

	if err := l.repo.Insert(ctx, tx, operationType, key); err != nil {
		_ = tx.Rollback()
		if l.isUniqueErr != nil && l.isUniqueErr(err) {
			return l.replay(ctx, operationType, key)
		}
		return nil, false, fmt.Errorf("claim idempotency key: %w", err)
	}

	result, err := builder(tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, false, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		_ = tx.Rollback()
		return nil, false, fmt.Errorf("marshal operation result: %w", err)
	}

	if err := l.repo.SaveResult(ctx, tx, operationType, key, payload); err != nil {
		_ = tx.Rollback()
		return nil, false, fmt.Errorf("save idempotency result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit idempotent tx: %w", err)
	}

	return payload, true, nil
}

func (l *Ledger) replay(ctx context.Context, operationType, key string) (json.RawMessage, bool, error) {
	stored, err := l.repo.GetResult(ctx, operationType, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The winner claimed the key but has not stored a result. With
			// result written in the same tx as the claim this only happens
			// if the winner ultimately rolled back; tell the caller to retry.
			return nil, false, appErrors.Clone(appErrors.ErrConflict, "operation in progress, retry")
		}
		return nil, false, fmt.Errorf("read winner result: %w", err)
	}
	l.logger.Sugar().Debugw("idempotent replay", "operation_type", operationType)
	return stored, false, nil
}
