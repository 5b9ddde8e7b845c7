package dto

import (
	"time"

	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
)

// EvidenceInput describes one evidence item attached to a submission.
type EvidenceInput struct {
	Kind       models.EvidenceKind `json:"kind" binding:"required"`
	StorageKey string              `json:"storageKey"`
	Intent     string              `json:"intent"`
	Text       string              `json:"text"`
	CapturedAt time.Time           `json:"capturedAt"`
}

// SubmitObservationRequest payload for recording an enforcement encounter.
type SubmitObservationRequest struct {
	IdempotencyKey    string          `json:"idempotencyKey" binding:"required"`
	Site              string          `json:"site" binding:"required"`
	ObservedAt        time.Time       `json:"observedAt"`
	Plate             string          `json:"plate"`
	Jurisdiction      string          `json:"jurisdiction"`
	ParkingPositionID string          `json:"parkingPositionId"`
	Evidence          []EvidenceInput `json:"evidence"`
}

// SubmitObservationResult is the ledger-stored outcome of the first execution.
type SubmitObservationResult struct {
	ObservationID string `json:"observationId"`
}

// SubmitObservationResponse is returned to the caller; Created distinguishes a
// true creation from an idempotent replay.
type SubmitObservationResponse struct {
	ObservationID string `json:"observationId"`
	Created       bool   `json:"created"`
}

// ObservationResponse aggregates an observation with its evidence trail.
type ObservationResponse struct {
	Observation *models.Observation   `json:"observation"`
	Evidence    []models.EvidenceItem `json:"evidence"`
}
