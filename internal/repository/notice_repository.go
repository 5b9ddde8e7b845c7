package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
)

// NoticeRepository persists issued notices. Rows are immutable after insert.
type NoticeRepository struct {
	db *sqlx.DB
}

// NewNoticeRepository constructs the repository.
func NewNoticeRepository(db *sqlx.DB) *NoticeRepository {
	return &NoticeRepository{db: db}
}

// CreateTx inserts a notice inside the issuance transaction.
func (r *NoticeRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, notice *models.Notice) error {
	if notice.ID == "" {
		notice.ID = uuid.NewString()
	}
	if notice.IssuedAt.IsZero() {
		notice.IssuedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notices (id, violation_id, qr_token, payload, issued_by, issued_at)
	VALUES (:id, :violation_id, :qr_token, :payload, :issued_by, :issued_at)`
	if _, err := tx.NamedExecContext(ctx, query, notice); err != nil {
		return fmt.Errorf("create notice: %w", err)
	}
	return nil
}

// GetByID fetches a notice by identifier.
func (r *NoticeRepository) GetByID(ctx context.Context, id string) (*models.Notice, error) {
	const query = `SELECT id, violation_id, qr_token, payload, issued_by, issued_at
	FROM notices WHERE id = $1`
	var notice models.Notice
	if err := r.db.GetContext(ctx, &notice, query, id); err != nil {
		return nil, err
	}
	return &notice, nil
}

// GetByQRToken resolves a scanned QR token.
func (r *NoticeRepository) GetByQRToken(ctx context.Context, token string) (*models.Notice, error) {
	const query = `SELECT id, violation_id, qr_token, payload, issued_by, issued_at
	FROM notices WHERE qr_token = $1`
	var notice models.Notice
	if err := r.db.GetContext(ctx, &notice, query, token); err != nil {
		return nil, err
	}
	return &notice, nil
}
