package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
)

// PositionRepository persists parking positions. Geometry edits are not
// supported here on purpose: past observations keep their own snapshot.
type PositionRepository struct {
	db *sqlx.DB
}

// NewPositionRepository constructs the repository.
func NewPositionRepository(db *sqlx.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new position row.
func (r *PositionRepository) Create(ctx context.Context, position *models.ParkingPosition) error {
	if position.ID == "" {
		position.ID = uuid.NewString()
	}
	if position.CreatedAt.IsZero() {
		position.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO parking_positions
	(id, site, label, type, center_lat, center_lng, radius_meters, assigned_vehicle_id, created_at)
	VALUES (:id, :site, :label, :type, :center_lat, :center_lng, :radius_meters, :assigned_vehicle_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, position); err != nil {
		return fmt.Errorf("create position: %w", err)
	}
	return nil
}

// GetByID fetches a position, excluding soft-deleted rows.
func (r *PositionRepository) GetByID(ctx context.Context, id string) (*models.ParkingPosition, error) {
	const query = `SELECT id, site, label, type, center_lat, center_lng, radius_meters, assigned_vehicle_id, created_at, deleted_at
	FROM parking_positions WHERE id = $1 AND deleted_at IS NULL`
	var position models.ParkingPosition
	if err := r.db.GetContext(ctx, &position, query, id); err != nil {
		return nil, err
	}
	return &position, nil
}

// GetByIDTx is the transactional variant used while capturing a submit-time
// snapshot.
func (r *PositionRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.ParkingPosition, error) {
	const query = `SELECT id, site, label, type, center_lat, center_lng, radius_meters, assigned_vehicle_id, created_at, deleted_at
	FROM parking_positions WHERE id = $1 AND deleted_at IS NULL`
	var position models.ParkingPosition
	if err := tx.GetContext(ctx, &position, query, id); err != nil {
		return nil, err
	}
	return &position, nil
}

// List returns positions matching the filter.
func (r *PositionRepository) List(ctx context.Context, filter models.PositionFilter) ([]models.ParkingPosition, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 2)
	builder.WriteString(`SELECT id, site, label, type, center_lat, center_lng, radius_meters, assigned_vehicle_id, created_at, deleted_at
	FROM parking_positions WHERE deleted_at IS NULL`)

	if filter.Site != "" {
		args = append(args, filter.Site)
		builder.WriteString(fmt.Sprintf(" AND site = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		builder.WriteString(fmt.Sprintf(" AND type = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY label ASC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var positions []models.ParkingPosition
	if err := r.db.SelectContext(ctx, &positions, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return positions, nil
}

// SoftDelete marks the position deleted without touching history.
func (r *PositionRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE parking_positions SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("soft delete position: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check position delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
