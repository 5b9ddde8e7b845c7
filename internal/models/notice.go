package models

import (
	"encoding/json"
	"time"
)

// Notice is an issued document referencing a violation. The payload is frozen
// at issuance; reprints render from the stored bytes and never regenerate it.
type Notice struct {
	ID          string          `db:"id" json:"id"`
	ViolationID string          `db:"violation_id" json:"violationId"`
	QRToken     string          `db:"qr_token" json:"qrToken"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	IssuedBy    string          `db:"issued_by" json:"issuedBy"`
	IssuedAt    time.Time       `db:"issued_at" json:"issuedAt"`
}

// NoticePayload is the structured violation summary serialized into a notice.
type NoticePayload struct {
	NoticeID           string            `json:"noticeId"`
	ViolationID        string            `json:"violationId"`
	Category           ViolationCategory `json:"category"`
	Site               string            `json:"site"`
	PositionLabel      string            `json:"positionLabel"`
	Plate              string            `json:"plate"`
	Jurisdiction       string            `json:"jurisdiction"`
	DetectedAt         time.Time         `json:"detectedAt"`
	IssuedAt           time.Time         `json:"issuedAt"`
	EscalationDeadline time.Time         `json:"escalationDeadline"`
	TowDeadline        time.Time         `json:"towDeadline"`
	Instructions       string            `json:"instructions"`
}
