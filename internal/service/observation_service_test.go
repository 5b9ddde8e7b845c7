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
	"github.com/bonjohen/cedar-terrace-sub001/pkg/jobs"
)

type ledgerStub struct {
	stored     json.RawMessage
	builderRan bool
}

func (l *ledgerStub) ExecuteOnce(_ context.Context, _, key string, builder func(tx *sqlx.Tx) (interface{}, error)) (json.RawMessage, bool, error) {
	if key == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "idempotency key is required")
	}
	if l.stored != nil {
		return l.stored, false, nil
	}
	l.builderRan = true
	result, err := builder(nil)
	if err != nil {
		return nil, false, err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

type obsRepoStub struct {
	created  *models.Observation
	evidence []models.EvidenceItem
}

func (s *obsRepoStub) CreateTx(_ context.Context, _ *sqlx.Tx, observation *models.Observation, evidence []models.EvidenceItem) error {
	s.created = observation
	s.evidence = evidence
	return nil
}

func (s *obsRepoStub) GetByID(_ context.Context, id string) (*models.Observation, error) {
	if s.created == nil || s.created.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.created, nil
}

func (s *obsRepoStub) ListEvidence(_ context.Context, _ string) ([]models.EvidenceItem, error) {
	return s.evidence, nil
}

type vehicleRepoStub struct {
	upserted *models.Vehicle
}

func (s *vehicleRepoStub) UpsertTx(_ context.Context, _ *sqlx.Tx, plate, jurisdiction string, observedAt time.Time) (*models.Vehicle, error) {
	s.upserted = &models.Vehicle{ID: "veh-1", Plate: plate, Jurisdiction: jurisdiction, LastObservedAt: observedAt}
	return s.upserted, nil
}

func (s *vehicleRepoStub) GetByID(_ context.Context, id string) (*models.Vehicle, error) {
	if s.upserted == nil || s.upserted.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.upserted, nil
}

func (s *vehicleRepoStub) GetByPlate(_ context.Context, plate, jurisdiction string) (*models.Vehicle, error) {
	if s.upserted == nil || s.upserted.Plate != plate || s.upserted.Jurisdiction != jurisdiction {
		return nil, sql.ErrNoRows
	}
	return s.upserted, nil
}

type positionRepoStub struct {
	position *models.ParkingPosition
}

func (s *positionRepoStub) GetByIDTx(_ context.Context, _ *sqlx.Tx, id string) (*models.ParkingPosition, error) {
	if s.position == nil || s.position.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.position, nil
}

type queueStub struct {
	tasks []jobs.Task
}

func (s *queueStub) Enqueue(task jobs.Task) error {
	s.tasks = append(s.tasks, task)
	return nil
}

func newObservationServiceTest(position *models.ParkingPosition) (*ObservationService, *obsRepoStub, *vehicleRepoStub, *ledgerStub, *queueStub) {
	obsRepo := &obsRepoStub{}
	vehRepo := &vehicleRepoStub{}
	posRepo := &positionRepoStub{position: position}
	ledger := &ledgerStub{}
	queue := &queueStub{}
	svc := NewObservationService(obsRepo, vehRepo, posRepo, ledger, queue, nil)
	return svc, obsRepo, vehRepo, ledger, queue
}

func validSubmission() dto.SubmitObservationRequest {
	return dto.SubmitObservationRequest{
		IdempotencyKey:    "key-1",
		Site:              "cedar-terrace",
		Plate:             "abc 123",
		Jurisdiction:      "wa",
		ParkingPositionID: "pos-1",
		Evidence: []dto.EvidenceInput{
			{Kind: models.EvidenceKindPhoto, StorageKey: "2026/03/10/photo.jpg"},
			{Kind: models.EvidenceKindNote, Text: "parked across the line"},
		},
	}
}

func handicappedPosition() *models.ParkingPosition {
	assigned := "veh-owner"
	return &models.ParkingPosition{
		ID:                "pos-1",
		Site:              "cedar-terrace",
		Label:             "H-1",
		Type:              models.PositionTypeHandicapped,
		AssignedVehicleID: &assigned,
	}
}

func TestSubmitCreatesObservationWithSnapshot(t *testing.T) {
	svc, obsRepo, vehRepo, _, queue := newObservationServiceTest(handicappedPosition())

	resp, err := svc.Submit(context.Background(), validSubmission(), "enf-1")
	require.NoError(t, err)
	require.True(t, resp.Created)
	require.NotEmpty(t, resp.ObservationID)

	created := obsRepo.created
	require.NotNil(t, created)
	require.Equal(t, "ABC123", *created.Plate, "plate is normalized")
	require.Equal(t, "WA", *created.Jurisdiction)
	require.Equal(t, "enf-1", created.SubmittedBy)
	require.Equal(t, models.PositionTypeHandicapped, *created.PositionType)
	require.Equal(t, "veh-owner", *created.PositionAssignedVehicle)
	require.Len(t, obsRepo.evidence, 2)

	require.NotNil(t, vehRepo.upserted)
	require.Equal(t, "ABC123", vehRepo.upserted.Plate)

	require.Len(t, queue.tasks, 1)
	require.Equal(t, TopicDeriveViolations, queue.tasks[0].Topic)
	payload := queue.tasks[0].Payload.(DeriveTaskPayload)
	require.Equal(t, resp.ObservationID, payload.ObservationID)
}

func TestSubmitReplayDoesNotEnqueue(t *testing.T) {
	svc, obsRepo, _, ledger, queue := newObservationServiceTest(handicappedPosition())
	ledger.stored = json.RawMessage(`{"observationId":"obs-original"}`)

	resp, err := svc.Submit(context.Background(), validSubmission(), "enf-1")
	require.NoError(t, err)
	require.False(t, resp.Created)
	require.Equal(t, "obs-original", resp.ObservationID)
	require.False(t, ledger.builderRan)
	require.Nil(t, obsRepo.created)
	require.Empty(t, queue.tasks, "replays must not re-trigger derivation")
}

func TestSubmitValidation(t *testing.T) {
	svc, _, _, ledger, _ := newObservationServiceTest(handicappedPosition())

	cases := []struct {
		name   string
		mutate func(*dto.SubmitObservationRequest)
	}{
		{"blank idempotency key", func(r *dto.SubmitObservationRequest) { r.IdempotencyKey = " " }},
		{"blank site", func(r *dto.SubmitObservationRequest) { r.Site = "" }},
		{"no evidence", func(r *dto.SubmitObservationRequest) { r.Evidence = nil }},
		{"plate without jurisdiction", func(r *dto.SubmitObservationRequest) { r.Jurisdiction = "" }},
		{"photo without storage key", func(r *dto.SubmitObservationRequest) {
			r.Evidence = []dto.EvidenceInput{{Kind: models.EvidenceKindPhoto}}
		}},
		{"note without text", func(r *dto.SubmitObservationRequest) {
			r.Evidence = []dto.EvidenceInput{{Kind: models.EvidenceKindNote}}
		}},
		{"unknown evidence kind", func(r *dto.SubmitObservationRequest) {
			r.Evidence = []dto.EvidenceInput{{Kind: models.EvidenceKind("VIDEO")}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validSubmission()
			tc.mutate(&req)
			_, err := svc.Submit(context.Background(), req, "enf-1")
			require.Error(t, err)
			require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
	require.False(t, ledger.builderRan)
}

func TestSubmitRejectsUnknownPosition(t *testing.T) {
	svc, _, _, _, queue := newObservationServiceTest(nil)

	_, err := svc.Submit(context.Background(), validSubmission(), "enf-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.Empty(t, queue.tasks)
}

func TestSubmitWithoutVehicleOrPosition(t *testing.T) {
	svc, obsRepo, vehRepo, _, _ := newObservationServiceTest(nil)

	req := validSubmission()
	req.Plate = ""
	req.Jurisdiction = ""
	req.ParkingPositionID = ""

	resp, err := svc.Submit(context.Background(), req, "enf-1")
	require.NoError(t, err)
	require.True(t, resp.Created)
	require.Nil(t, obsRepo.created.VehicleID)
	require.Nil(t, obsRepo.created.ParkingPositionID)
	require.Nil(t, vehRepo.upserted)
}

func TestGetVehicleByPlateNormalizesIdentity(t *testing.T) {
	svc, _, vehRepo, _, _ := newObservationServiceTest(nil)
	vehRepo.upserted = &models.Vehicle{ID: "veh-1", Plate: "ABC123", Jurisdiction: "WA"}

	vehicle, err := svc.GetVehicleByPlate(context.Background(), " abc 123 ", "wa")
	require.NoError(t, err)
	require.Equal(t, "veh-1", vehicle.ID)

	_, err = svc.GetVehicleByPlate(context.Background(), "", "WA")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.GetVehicleByPlate(context.Background(), "ZZZ999", "WA")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
