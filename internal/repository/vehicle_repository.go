package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
)

// VehicleRepository stores vehicle identities keyed by (plate, jurisdiction).
type VehicleRepository struct {
	db *sqlx.DB
}

// NewVehicleRepository constructs the repository.
func NewVehicleRepository(db *sqlx.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// UpsertTx creates the vehicle on first sighting or appends a newer
// last-observed timestamp. The unique (plate, jurisdiction) constraint makes
// concurrent first sightings converge on one row.
func (r *VehicleRepository) UpsertTx(ctx context.Context, tx *sqlx.Tx, plate, jurisdiction string, observedAt time.Time) (*models.Vehicle, error) {
	const query = `INSERT INTO vehicles (id, plate, jurisdiction, first_observed, last_observed_at, created_at)
	VALUES ($1, $2, $3, $4, $4, $5)
	ON CONFLICT (plate, jurisdiction)
	DO UPDATE SET last_observed_at = GREATEST(vehicles.last_observed_at, EXCLUDED.last_observed_at)
	RETURNING id, plate, jurisdiction, first_observed, last_observed_at, created_at`
	var vehicle models.Vehicle
	if err := tx.GetContext(ctx, &vehicle, query, uuid.NewString(), plate, jurisdiction, observedAt, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("upsert vehicle: %w", err)
	}
	return &vehicle, nil
}

// GetByPlate fetches a vehicle by its identity pair.
func (r *VehicleRepository) GetByPlate(ctx context.Context, plate, jurisdiction string) (*models.Vehicle, error) {
	const query = `SELECT id, plate, jurisdiction, first_observed, last_observed_at, created_at
	FROM vehicles WHERE plate = $1 AND jurisdiction = $2`
	var vehicle models.Vehicle
	if err := r.db.GetContext(ctx, &vehicle, query, plate, jurisdiction); err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// GetByID fetches a vehicle by identifier.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*models.Vehicle, error) {
	const query = `SELECT id, plate, jurisdiction, first_observed, last_observed_at, created_at
	FROM vehicles WHERE id = $1`
	var vehicle models.Vehicle
	if err := r.db.GetContext(ctx, &vehicle, query, id); err != nil {
		return nil, err
	}
	return &vehicle, nil
}
