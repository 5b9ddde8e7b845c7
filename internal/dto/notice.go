package dto

import "encoding/json"

// IssueNoticeRequest payload for idempotent notice issuance.
type IssueNoticeRequest struct {
	ViolationID    string `json:"violationId" binding:"required"`
	IdempotencyKey string `json:"idempotencyKey" binding:"required"`
}

// IssueNoticeResult is the ledger-stored outcome of the first issuance.
type IssueNoticeResult struct {
	NoticeID    string          `json:"noticeId"`
	QRToken     string          `json:"qrToken"`
	TextPayload json.RawMessage `json:"textPayload"`
}

// IssueNoticeResponse adds the creation flag for the caller.
type IssueNoticeResponse struct {
	NoticeID    string          `json:"noticeId"`
	QRToken     string          `json:"qrToken"`
	TextPayload json.RawMessage `json:"textPayload"`
	Created     bool            `json:"created"`
}
