package dto

import "github.com/bonjohen/cedar-terrace-sub001/internal/models"

// ApplyEventRequest payload for a manual violation event.
type ApplyEventRequest struct {
	EventType     models.ViolationEventType `json:"eventType" binding:"required"`
	Notes         string                    `json:"notes"`
	ObservationID string                    `json:"observationId"`
	NoticeID      string                    `json:"noticeId"`
}

// ViolationResponse aggregates a violation with its full event history.
type ViolationResponse struct {
	Violation *models.Violation       `json:"violation"`
	Events    []models.ViolationEvent `json:"events"`
}

// ViolationQuery mirrors supported listing filters.
type ViolationQuery struct {
	VehicleID  string
	PositionID string
	Category   models.ViolationCategory
	Status     []models.ViolationStatus
	OpenOnly   bool
	Limit      int
	Offset     int
}

// EvaluateResponse reports the outcome of an on-demand timeline pass.
type EvaluateResponse struct {
	ViolationID string `json:"violationId"`
	Transition  string `json:"transition,omitempty"`
	Applied     bool   `json:"applied"`
}
