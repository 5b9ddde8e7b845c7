package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
)

// ObservationRepository persists observations and their evidence. Both tables
// are append-only; no update or hard-delete statements exist here.
type ObservationRepository struct {
	db *sqlx.DB
}

// NewObservationRepository constructs the repository.
func NewObservationRepository(db *sqlx.DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// CreateTx inserts the observation and all its evidence rows inside the
// caller's transaction (the idempotency ledger's unit of work).
func (r *ObservationRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, observation *models.Observation, evidence []models.EvidenceItem) error {
	if observation.ID == "" {
		observation.ID = uuid.NewString()
	}
	if observation.CreatedAt.IsZero() {
		observation.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO observations
	(id, site, observed_at, plate, jurisdiction, vehicle_id, parking_position_id,
	 position_type, position_assigned_vehicle, idempotency_key, submitted_by, created_at)
	VALUES (:id, :site, :observed_at, :plate, :jurisdiction, :vehicle_id, :parking_position_id,
	 :position_type, :position_assigned_vehicle, :idempotency_key, :submitted_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, observation); err != nil {
		return fmt.Errorf("create observation: %w", err)
	}

	const evidenceQuery = `INSERT INTO evidence_items
	(id, observation_id, kind, storage_key, intent, text, captured_at, created_at)
	VALUES (:id, :observation_id, :kind, :storage_key, :intent, :text, :captured_at, :created_at)`
	for i := range evidence {
		item := &evidence[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.ObservationID = observation.ID
		if item.CreatedAt.IsZero() {
			item.CreatedAt = observation.CreatedAt
		}
		if item.CapturedAt.IsZero() {
			item.CapturedAt = observation.ObservedAt
		}
		if _, err := tx.NamedExecContext(ctx, evidenceQuery, item); err != nil {
			return fmt.Errorf("create evidence item: %w", err)
		}
	}
	return nil
}

// GetByID fetches an observation, excluding soft-deleted rows.
func (r *ObservationRepository) GetByID(ctx context.Context, id string) (*models.Observation, error) {
	const query = `SELECT id, site, observed_at, plate, jurisdiction, vehicle_id, parking_position_id,
	 position_type, position_assigned_vehicle, idempotency_key, submitted_by, created_at, deleted_at
	FROM observations WHERE id = $1 AND deleted_at IS NULL`
	var observation models.Observation
	if err := r.db.GetContext(ctx, &observation, query, id); err != nil {
		return nil, err
	}
	return &observation, nil
}

// ListEvidence returns the evidence trail for one observation.
func (r *ObservationRepository) ListEvidence(ctx context.Context, observationID string) ([]models.EvidenceItem, error) {
	const query = `SELECT id, observation_id, kind, storage_key, intent, text, captured_at, created_at
	FROM evidence_items WHERE observation_id = $1 ORDER BY captured_at ASC`
	var items []models.EvidenceItem
	if err := r.db.SelectContext(ctx, &items, query, observationID); err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	return items, nil
}
