package models

import "time"

// EvidenceKind distinguishes photo evidence from free-text notes.
type EvidenceKind string

const (
	EvidenceKindPhoto EvidenceKind = "PHOTO"
	EvidenceKindNote  EvidenceKind = "NOTE"
)

// Evidence intent tags recognised by the violation deriver.
const (
	IntentHandicappedPlacard  = "handicapped-placard"
	IntentFireLane            = "fire-lane"
	IntentExpiredRegistration = "expired-registration"
)

// Observation is an immutable record of an enforcement encounter. Rows are
// never updated or hard-deleted after creation; position fields are a snapshot
// captured at submit time so later geometry edits never reinterpret history.
type Observation struct {
	ID                string    `db:"id" json:"id"`
	Site              string    `db:"site" json:"site"`
	ObservedAt        time.Time `db:"observed_at" json:"observedAt"`
	Plate             *string   `db:"plate" json:"plate,omitempty"`
	Jurisdiction      *string   `db:"jurisdiction" json:"jurisdiction,omitempty"`
	VehicleID         *string   `db:"vehicle_id" json:"vehicleId,omitempty"`
	ParkingPositionID *string   `db:"parking_position_id" json:"parkingPositionId,omitempty"`

	// Snapshot of the referenced position at observation time.
	PositionType            *PositionType `db:"position_type" json:"positionType,omitempty"`
	PositionAssignedVehicle *string       `db:"position_assigned_vehicle" json:"positionAssignedVehicle,omitempty"`

	IdempotencyKey string     `db:"idempotency_key" json:"idempotencyKey"`
	SubmittedBy    string     `db:"submitted_by" json:"submittedBy"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	DeletedAt      *time.Time `db:"deleted_at" json:"-"`
}

// EvidenceItem belongs to exactly one observation and is append-only.
type EvidenceItem struct {
	ID            string       `db:"id" json:"id"`
	ObservationID string       `db:"observation_id" json:"observationId"`
	Kind          EvidenceKind `db:"kind" json:"kind"`
	StorageKey    *string      `db:"storage_key" json:"storageKey,omitempty"`
	Intent        *string      `db:"intent" json:"intent,omitempty"`
	Text          *string      `db:"text" json:"text,omitempty"`
	CapturedAt    time.Time    `db:"captured_at" json:"capturedAt"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
}

// HasIntent reports whether any evidence item carries the given intent tag.
func HasIntent(items []EvidenceItem, intent string) bool {
	for _, item := range items {
		if item.Intent != nil && *item.Intent == intent {
			return true
		}
	}
	return false
}
