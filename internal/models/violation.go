package models

import (
	"encoding/json"
	"time"
)

// ViolationCategory classifies a violation and selects its timeline rule set.
type ViolationCategory string

const (
	CategoryHandicappedNoPermit   ViolationCategory = "HANDICAPPED_NO_PERMIT"
	CategoryPurchasedUnauthorized ViolationCategory = "PURCHASED_UNAUTHORIZED"
	CategoryReservedUnauthorized  ViolationCategory = "RESERVED_UNAUTHORIZED"
	CategoryFireLane              ViolationCategory = "FIRE_LANE"
	CategoryExpiredRegistration   ViolationCategory = "EXPIRED_REGISTRATION"
)

// AllCategories lists every category the engine can derive. Timeline rule
// completeness is validated against this set at startup.
var AllCategories = []ViolationCategory{
	CategoryHandicappedNoPermit,
	CategoryPurchasedUnauthorized,
	CategoryReservedUnauthorized,
	CategoryFireLane,
	CategoryExpiredRegistration,
}

// ViolationStatus is the cached projection of the violation's event log.
type ViolationStatus string

const (
	StatusDetected       ViolationStatus = "DETECTED"
	StatusNoticeEligible ViolationStatus = "NOTICE_ELIGIBLE"
	StatusNoticeIssued   ViolationStatus = "NOTICE_ISSUED"
	StatusEscalated      ViolationStatus = "ESCALATED"
	StatusTowEligible    ViolationStatus = "TOW_ELIGIBLE"
	StatusResolved       ViolationStatus = "RESOLVED"
	StatusDismissed      ViolationStatus = "DISMISSED"
)

var statusRanks = map[ViolationStatus]int{
	StatusDetected:       0,
	StatusNoticeEligible: 1,
	StatusNoticeIssued:   2,
	StatusEscalated:      3,
	StatusTowEligible:    4,
}

// Rank returns the status position along the linear eligibility path.
// Terminal statuses have no rank.
func (s ViolationStatus) Rank() (int, bool) {
	rank, ok := statusRanks[s]
	return rank, ok
}

// Terminal reports whether the status locks further transitions.
func (s ViolationStatus) Terminal() bool {
	return s == StatusResolved || s == StatusDismissed
}

// ViolationEventType names an entry in a violation's append-only log.
type ViolationEventType string

const (
	EventDetected         ViolationEventType = "DETECTED"
	EventNoticeEligible   ViolationEventType = "NOTICE_ELIGIBLE"
	EventNoticeIssued     ViolationEventType = "NOTICE_ISSUED"
	EventEscalated        ViolationEventType = "ESCALATED"
	EventTowEligible      ViolationEventType = "TOW_ELIGIBLE"
	EventResolved         ViolationEventType = "RESOLVED"
	EventDismissed        ViolationEventType = "DISMISSED"
	EventObservationAdded ViolationEventType = "OBSERVATION_ADDED"
)

// TargetStatus returns the status this event type projects to. Non-transition
// events (OBSERVATION_ADDED) return ok=false.
func (t ViolationEventType) TargetStatus() (ViolationStatus, bool) {
	switch t {
	case EventDetected:
		return StatusDetected, true
	case EventNoticeEligible:
		return StatusNoticeEligible, true
	case EventNoticeIssued:
		return StatusNoticeIssued, true
	case EventEscalated:
		return StatusEscalated, true
	case EventTowEligible:
		return StatusTowEligible, true
	case EventResolved:
		return StatusResolved, true
	case EventDismissed:
		return StatusDismissed, true
	}
	return "", false
}

// SystemActor marks events applied by the engine rather than a human.
const SystemActor = "SYSTEM"

// Violation holds the canonical status projection; everything else about its
// history lives in the event log.
type Violation struct {
	ID                string            `db:"id" json:"id"`
	Category          ViolationCategory `db:"category" json:"category"`
	Status            ViolationStatus   `db:"status" json:"status"`
	VehicleID         string            `db:"vehicle_id" json:"vehicleId"`
	ParkingPositionID string            `db:"parking_position_id" json:"parkingPositionId"`
	DetectedAt        time.Time         `db:"detected_at" json:"detectedAt"`
	ResolvedAt        *time.Time        `db:"resolved_at" json:"resolvedAt,omitempty"`
	DismissedAt       *time.Time        `db:"dismissed_at" json:"dismissedAt,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"createdAt"`
}

// Open reports whether the violation still participates in derivation and
// timeline evaluation.
func (v *Violation) Open() bool {
	return !v.Status.Terminal()
}

// ViolationEvent is immutable and ordered by occurrence time. It is the single
// source of truth for violation history.
type ViolationEvent struct {
	ID            string             `db:"id" json:"id"`
	ViolationID   string             `db:"violation_id" json:"violationId"`
	Type          ViolationEventType `db:"type" json:"type"`
	ObservationID *string            `db:"observation_id" json:"observationId,omitempty"`
	NoticeID      *string            `db:"notice_id" json:"noticeId,omitempty"`
	Notes         string             `db:"notes" json:"notes"`
	PerformedBy   string             `db:"performed_by" json:"performedBy"`
	Data          json.RawMessage    `db:"data" json:"data,omitempty"`
	OccurredAt    time.Time          `db:"occurred_at" json:"occurredAt"`
}

// Typed event payloads. Each transition event carries the variant for its
// type; the free-form notes column stays available for audit commentary.

// EscalationData records why a timeline transition fired.
type EscalationData struct {
	DaysSinceNotice int `json:"daysSinceNotice"`
	ThresholdDays   int `json:"thresholdDays"`
}

// ObservationAddedData links an attached observation.
type ObservationAddedData struct {
	ObservationID string `json:"observationId"`
}

// NoticeIssuedData links the notice created by an issuance.
type NoticeIssuedData struct {
	NoticeID string `json:"noticeId"`
}

// ViolationFilter constrains violation listing queries.
type ViolationFilter struct {
	VehicleID  string
	PositionID string
	Category   ViolationCategory
	Status     []ViolationStatus
	OpenOnly   bool
	Limit      int
	Offset     int
}
