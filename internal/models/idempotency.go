package models

import (
	"encoding/json"
	"time"
)

// Operation types scoping idempotency keys. The same literal key used for two
// different operation types is two independent ledger entries.
const (
	OpSubmitObservation = "submit-observation"
	OpIssueNotice       = "issue-notice"
)

// IdempotencyKey maps an (operation type, client key) pair to the result of
// its first successful execution. The (operation_type, idempotency_key) unique
// constraint is what makes concurrent first-callers race at the storage layer.
type IdempotencyKey struct {
	ID             string          `db:"id" json:"id"`
	OperationType  string          `db:"operation_type" json:"operationType"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotencyKey"`
	Result         json.RawMessage `db:"result" json:"result"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}
