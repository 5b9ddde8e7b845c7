package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/bonjohen/cedar-terrace-sub001/internal/dto"
	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
	appErrors "github.com/bonjohen/cedar-terrace-sub001/pkg/errors"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/export"
)

type noticeRepoStub struct {
	created *models.Notice
}

func (s *noticeRepoStub) CreateTx(_ context.Context, _ *sqlx.Tx, notice *models.Notice) error {
	s.created = notice
	return nil
}

func (s *noticeRepoStub) GetByID(_ context.Context, id string) (*models.Notice, error) {
	if s.created == nil || s.created.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.created, nil
}

func (s *noticeRepoStub) GetByQRToken(_ context.Context, token string) (*models.Notice, error) {
	if s.created == nil || s.created.QRToken != token {
		return nil, sql.ErrNoRows
	}
	return s.created, nil
}

type noticeVioRepoStub struct {
	violation *models.Violation
	hasNotice bool
}

func (s *noticeVioRepoStub) GetByIDForUpdateTx(_ context.Context, _ *sqlx.Tx, id string) (*models.Violation, error) {
	if s.violation == nil || s.violation.ID != id {
		return nil, sql.ErrNoRows
	}
	v := *s.violation
	return &v, nil
}

func (s *noticeVioRepoStub) HasEventOfTypeTx(_ context.Context, _ *sqlx.Tx, _ string, eventType models.ViolationEventType) (bool, error) {
	return eventType == models.EventNoticeIssued && s.hasNotice, nil
}

func newNoticeServiceTest(violation *models.Violation, hasPriorNotice bool) (*NoticeService, *noticeRepoStub, *applierStub, *ledgerStub) {
	notices := &noticeRepoStub{}
	violations := &noticeVioRepoStub{violation: violation, hasNotice: hasPriorNotice}
	assigned := "veh-owner"
	positions := &positionRepoStub{position: &models.ParkingPosition{
		ID:                "pos-1",
		Site:              "cedar-terrace",
		Label:             "H-1",
		Type:              models.PositionTypeHandicapped,
		AssignedVehicleID: &assigned,
	}}
	vehicles := &vehicleRepoStub{upserted: &models.Vehicle{ID: "veh-1", Plate: "ABC123", Jurisdiction: "WA"}}
	applier := &applierStub{}
	ledger := &ledgerStub{}

	svc := NewNoticeService(
		notices, violations, positions, vehicles, applier, ledger,
		export.NewNoticeRenderer(), defaultRules(),
		"Contact the site office.", nil, nil, nil,
	)
	return svc, notices, applier, ledger
}

func eligibleViolation() *models.Violation {
	return &models.Violation{
		ID:                "vio-1",
		Category:          models.CategoryHandicappedNoPermit,
		Status:            models.StatusNoticeEligible,
		VehicleID:         "veh-1",
		ParkingPositionID: "pos-1",
		DetectedAt:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestIssueFirstNotice(t *testing.T) {
	svc, notices, applier, _ := newNoticeServiceTest(eligibleViolation(), false)

	resp, err := svc.Issue(context.Background(), dto.IssueNoticeRequest{ViolationID: "vio-1", IdempotencyKey: "key-1"}, "enf-1")
	require.NoError(t, err)
	require.True(t, resp.Created)
	require.NotEmpty(t, resp.NoticeID)
	require.NotEmpty(t, resp.QRToken)

	require.NotNil(t, notices.created)
	require.Equal(t, "vio-1", notices.created.ViolationID)
	require.Equal(t, "enf-1", notices.created.IssuedBy)

	var payload models.NoticePayload
	require.NoError(t, json.Unmarshal(notices.created.Payload, &payload))
	require.Equal(t, "cedar-terrace", payload.Site)
	require.Equal(t, "H-1", payload.PositionLabel)
	require.Equal(t, "ABC123", payload.Plate)
	require.Equal(t, models.CategoryHandicappedNoPermit, payload.Category)
	require.Equal(t, payload.IssuedAt.Add(3*24*time.Hour), payload.EscalationDeadline)
	require.Equal(t, payload.IssuedAt.Add(7*24*time.Hour), payload.TowDeadline)
	require.Equal(t, "Contact the site office.", payload.Instructions)

	require.Len(t, applier.applied, 1)
	require.Equal(t, models.EventNoticeIssued, applier.applied[0].Type)
	require.Equal(t, notices.created.ID, *applier.applied[0].NoticeID)
	require.Equal(t, []string{"vio-1"}, applier.invalidated)
}

func TestIssueFirstNoticeRequiresEligibility(t *testing.T) {
	violation := eligibleViolation()
	violation.Status = models.StatusDetected
	svc, notices, _, _ := newNoticeServiceTest(violation, false)

	_, err := svc.Issue(context.Background(), dto.IssueNoticeRequest{ViolationID: "vio-1", IdempotencyKey: "key-1"}, "enf-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotEligible.Code, appErrors.FromError(err).Code)
	require.Nil(t, notices.created)
}

func TestIssueSubsequentNoticeFromEscalated(t *testing.T) {
	violation := eligibleViolation()
	violation.Status = models.StatusEscalated
	svc, notices, applier, _ := newNoticeServiceTest(violation, true)

	resp, err := svc.Issue(context.Background(), dto.IssueNoticeRequest{ViolationID: "vio-1", IdempotencyKey: "key-2"}, "enf-1")
	require.NoError(t, err)
	require.True(t, resp.Created)
	require.NotNil(t, notices.created)
	require.Len(t, applier.applied, 1)
}

func TestIssueRejectsTerminalViolation(t *testing.T) {
	violation := eligibleViolation()
	violation.Status = models.StatusDismissed
	svc, notices, _, _ := newNoticeServiceTest(violation, true)

	_, err := svc.Issue(context.Background(), dto.IssueNoticeRequest{ViolationID: "vio-1", IdempotencyKey: "key-3"}, "enf-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrTerminalState.Code, appErrors.FromError(err).Code)
	require.Nil(t, notices.created)
}

func TestIssueReplayReturnsStoredResult(t *testing.T) {
	svc, notices, applier, ledger := newNoticeServiceTest(eligibleViolation(), false)
	ledger.stored = json.RawMessage(`{"noticeId":"not-1","qrToken":"qr-1","textPayload":{}}`)

	resp, err := svc.Issue(context.Background(), dto.IssueNoticeRequest{ViolationID: "vio-1", IdempotencyKey: "key-1"}, "enf-1")
	require.NoError(t, err)
	require.False(t, resp.Created)
	require.Equal(t, "not-1", resp.NoticeID)
	require.Equal(t, "qr-1", resp.QRToken)
	require.Nil(t, notices.created)
	require.Empty(t, applier.applied)
}

func TestRenderDocumentUsesFrozenPayload(t *testing.T) {
	svc, notices, _, _ := newNoticeServiceTest(eligibleViolation(), false)

	resp, err := svc.Issue(context.Background(), dto.IssueNoticeRequest{ViolationID: "vio-1", IdempotencyKey: "key-1"}, "enf-1")
	require.NoError(t, err)

	doc, err := svc.RenderDocument(context.Background(), resp.NoticeID)
	require.NoError(t, err)
	require.NotEmpty(t, doc)
	require.Equal(t, "%PDF", string(doc[:4]))

	// Reprints render the same stored payload.
	again, err := svc.RenderDocument(context.Background(), resp.NoticeID)
	require.NoError(t, err)
	require.Equal(t, len(doc), len(again))

	found, err := svc.GetByQRToken(context.Background(), notices.created.QRToken)
	require.NoError(t, err)
	require.Equal(t, resp.NoticeID, found.ID)
}
