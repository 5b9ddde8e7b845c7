package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
)

// ViolationRepository persists violations, their append-only event log, and
// the observation link table. Status is only ever written together with an
// event append, inside the caller's transaction.
type ViolationRepository struct {
	db *sqlx.DB
}

// NewViolationRepository constructs the repository.
func NewViolationRepository(db *sqlx.DB) *ViolationRepository {
	return &ViolationRepository{db: db}
}

// Begin opens a transaction for a state-machine write.
func (r *ViolationRepository) Begin(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin violation tx: %w", err)
	}
	return tx, nil
}

// CreateTx inserts a new violation row inside the caller's transaction.
func (r *ViolationRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, violation *models.Violation) error {
	if violation.ID == "" {
		violation.ID = uuid.NewString()
	}
	if violation.Status == "" {
		violation.Status = models.StatusDetected
	}
	if violation.CreatedAt.IsZero() {
		violation.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO violations
	(id, category, status, vehicle_id, parking_position_id, detected_at, resolved_at, dismissed_at, created_at)
	VALUES (:id, :category, :status, :vehicle_id, :parking_position_id, :detected_at, :resolved_at, :dismissed_at, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, violation); err != nil {
		return fmt.Errorf("create violation: %w", err)
	}
	return nil
}

// GetByID fetches a violation.
func (r *ViolationRepository) GetByID(ctx context.Context, id string) (*models.Violation, error) {
	const query = `SELECT id, category, status, vehicle_id, parking_position_id, detected_at, resolved_at, dismissed_at, created_at
	FROM violations WHERE id = $1`
	var violation models.Violation
	if err := r.db.GetContext(ctx, &violation, query, id); err != nil {
		return nil, err
	}
	return &violation, nil
}

// GetByIDForUpdateTx locks the violation row for the duration of the caller's
// transaction so concurrent writers serialize on it.
func (r *ViolationRepository) GetByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Violation, error) {
	const query = `SELECT id, category, status, vehicle_id, parking_position_id, detected_at, resolved_at, dismissed_at, created_at
	FROM violations WHERE id = $1 FOR UPDATE`
	var violation models.Violation
	if err := tx.GetContext(ctx, &violation, query, id); err != nil {
		return nil, err
	}
	return &violation, nil
}

// AppendEventTx appends one immutable event row.
func (r *ViolationRepository) AppendEventTx(ctx context.Context, tx *sqlx.Tx, event *models.ViolationEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	const query = `INSERT INTO violation_events
	(id, violation_id, type, observation_id, notice_id, notes, performed_by, data, occurred_at)
	VALUES (:id, :violation_id, :type, :observation_id, :notice_id, :notes, :performed_by, :data, :occurred_at)`
	if _, err := tx.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("append violation event: %w", err)
	}
	return nil
}

// UpdateStatusTx refreshes the status projection. Must run in the same
// transaction as the event append that justifies it.
func (r *ViolationRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status models.ViolationStatus, resolvedAt, dismissedAt *time.Time) error {
	const query = `UPDATE violations
	SET status = $1,
	    resolved_at = COALESCE(resolved_at, $2),
	    dismissed_at = COALESCE(dismissed_at, $3)
	WHERE id = $4`
	if _, err := tx.ExecContext(ctx, query, status, resolvedAt, dismissedAt, id); err != nil {
		return fmt.Errorf("update violation status: %w", err)
	}
	return nil
}

// LinkObservationTx records the observation-to-violation join in the same
// transaction as the violation write it belongs to.
func (r *ViolationRepository) LinkObservationTx(ctx context.Context, tx *sqlx.Tx, violationID, observationID string) error {
	const query = `INSERT INTO violation_observations (id, violation_id, observation_id, created_at)
	VALUES ($1, $2, $3, $4) ON CONFLICT (violation_id, observation_id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, query, uuid.NewString(), violationID, observationID, time.Now().UTC()); err != nil {
		return fmt.Errorf("link observation: %w", err)
	}
	return nil
}

// ListEvents returns the full event log for a violation, oldest first.
func (r *ViolationRepository) ListEvents(ctx context.Context, violationID string) ([]models.ViolationEvent, error) {
	const query = `SELECT id, violation_id, type, observation_id, notice_id, notes, performed_by, data, occurred_at
	FROM violation_events WHERE violation_id = $1 ORDER BY occurred_at ASC, id ASC`
	var events []models.ViolationEvent
	if err := r.db.SelectContext(ctx, &events, query, violationID); err != nil {
		return nil, fmt.Errorf("list violation events: %w", err)
	}
	return events, nil
}

// HasEventOfTypeTx reports whether an event of the given type was already
// recorded. Used as the guard replacing an application-level lock.
func (r *ViolationRepository) HasEventOfTypeTx(ctx context.Context, tx *sqlx.Tx, violationID string, eventType models.ViolationEventType) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM violation_events WHERE violation_id = $1 AND type = $2)`
	var exists bool
	if err := tx.GetContext(ctx, &exists, query, violationID, eventType); err != nil {
		return false, fmt.Errorf("check violation event: %w", err)
	}
	return exists, nil
}

// LatestEventOfTypeTx is the in-transaction variant of LatestEventOfType.
func (r *ViolationRepository) LatestEventOfTypeTx(ctx context.Context, tx *sqlx.Tx, violationID string, eventType models.ViolationEventType) (*models.ViolationEvent, error) {
	const query = `SELECT id, violation_id, type, observation_id, notice_id, notes, performed_by, data, occurred_at
	FROM violation_events WHERE violation_id = $1 AND type = $2
	ORDER BY occurred_at DESC LIMIT 1`
	var event models.ViolationEvent
	if err := tx.GetContext(ctx, &event, query, violationID, eventType); err != nil {
		return nil, err
	}
	return &event, nil
}

// LatestEventOfType returns the most recent event of a type, or sql.ErrNoRows.
func (r *ViolationRepository) LatestEventOfType(ctx context.Context, violationID string, eventType models.ViolationEventType) (*models.ViolationEvent, error) {
	const query = `SELECT id, violation_id, type, observation_id, notice_id, notes, performed_by, data, occurred_at
	FROM violation_events WHERE violation_id = $1 AND type = $2
	ORDER BY occurred_at DESC LIMIT 1`
	var event models.ViolationEvent
	if err := r.db.GetContext(ctx, &event, query, violationID, eventType); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListOpenByVehiclePosition returns still-open violations for a (vehicle,
// position) pair; the deriver consults this set.
func (r *ViolationRepository) ListOpenByVehiclePosition(ctx context.Context, vehicleID, positionID string) ([]models.Violation, error) {
	const query = `SELECT id, category, status, vehicle_id, parking_position_id, detected_at, resolved_at, dismissed_at, created_at
	FROM violations
	WHERE vehicle_id = $1 AND parking_position_id = $2
	  AND status NOT IN ($3, $4)
	ORDER BY detected_at ASC`
	var violations []models.Violation
	if err := r.db.SelectContext(ctx, &violations, query, vehicleID, positionID, models.StatusResolved, models.StatusDismissed); err != nil {
		return nil, fmt.Errorf("list open violations: %w", err)
	}
	return violations, nil
}

// ListOpenForEvaluation returns open violations for a timeline sweep.
func (r *ViolationRepository) ListOpenForEvaluation(ctx context.Context, limit int) ([]models.Violation, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `SELECT id, category, status, vehicle_id, parking_position_id, detected_at, resolved_at, dismissed_at, created_at
	FROM violations
	WHERE status NOT IN ($1, $2) AND resolved_at IS NULL
	ORDER BY detected_at ASC LIMIT $3`
	var violations []models.Violation
	if err := r.db.SelectContext(ctx, &violations, query, models.StatusResolved, models.StatusDismissed, limit); err != nil {
		return nil, fmt.Errorf("list violations for evaluation: %w", err)
	}
	return violations, nil
}

// List returns violations matching the filter (latest first).
func (r *ViolationRepository) List(ctx context.Context, filter models.ViolationFilter) ([]models.Violation, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT id, category, status, vehicle_id, parking_position_id, detected_at, resolved_at, dismissed_at, created_at
	FROM violations`)

	conditions := make([]string, 0, 4)
	if filter.VehicleID != "" {
		args = append(args, filter.VehicleID)
		conditions = append(conditions, fmt.Sprintf("vehicle_id = $%d", len(args)))
	}
	if filter.PositionID != "" {
		args = append(args, filter.PositionID)
		conditions = append(conditions, fmt.Sprintf("parking_position_id = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.OpenOnly {
		args = append(args, models.StatusResolved)
		resolved := len(args)
		args = append(args, models.StatusDismissed)
		dismissed := len(args)
		conditions = append(conditions, fmt.Sprintf("status NOT IN ($%d, $%d)", resolved, dismissed))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY detected_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var violations []models.Violation
	if err := r.db.SelectContext(ctx, &violations, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	return violations, nil
}
