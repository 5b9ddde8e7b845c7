package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
)

func strPtr(s string) *string { return &s }

func posTypePtr(t models.PositionType) *models.PositionType { return &t }

func baseObservation(positionType models.PositionType) models.Observation {
	return models.Observation{
		ID:                "obs-1",
		Site:              "cedar-terrace",
		VehicleID:         strPtr("veh-1"),
		ParkingPositionID: strPtr("pos-1"),
		PositionType:      posTypePtr(positionType),
	}
}

func intentEvidence(intent string) []models.EvidenceItem {
	return []models.EvidenceItem{{ID: "ev-1", Kind: models.EvidenceKindPhoto, Intent: strPtr(intent)}}
}

func TestDeriveSkipsWithoutVehicleOrPosition(t *testing.T) {
	obs := baseObservation(models.PositionTypeHandicapped)
	obs.VehicleID = nil
	require.Empty(t, Derive(DeriveInput{Observation: obs}))

	obs = baseObservation(models.PositionTypeHandicapped)
	obs.ParkingPositionID = nil
	require.Empty(t, Derive(DeriveInput{Observation: obs}))
}

func TestDeriveHandicappedWithoutPlacard(t *testing.T) {
	decisions := Derive(DeriveInput{Observation: baseObservation(models.PositionTypeHandicapped)})
	require.Len(t, decisions, 1)
	require.Equal(t, ActionCreate, decisions[0].Action)
	require.Equal(t, models.CategoryHandicappedNoPermit, decisions[0].Category)
}

func TestDeriveHandicappedWithPlacardEvidence(t *testing.T) {
	decisions := Derive(DeriveInput{
		Observation: baseObservation(models.PositionTypeHandicapped),
		Evidence:    intentEvidence(models.IntentHandicappedPlacard),
	})
	require.Empty(t, decisions)
}

func TestDeriveHandicappedAttachesToOpenViolation(t *testing.T) {
	open := []models.Violation{{ID: "vio-1", Category: models.CategoryHandicappedNoPermit, Status: models.StatusNoticeIssued}}

	// A repeat sighting attaches rather than opening a duplicate.
	decisions := Derive(DeriveInput{Observation: baseObservation(models.PositionTypeHandicapped), OpenViolations: open})
	require.Len(t, decisions, 1)
	require.Equal(t, ActionAttach, decisions[0].Action)
	require.Equal(t, "vio-1", decisions[0].ViolationID)

	// Placard clarification also attaches; the evidence belongs on the
	// open case rather than vanishing.
	decisions = Derive(DeriveInput{
		Observation:    baseObservation(models.PositionTypeHandicapped),
		Evidence:       intentEvidence(models.IntentHandicappedPlacard),
		OpenViolations: open,
	})
	require.Len(t, decisions, 1)
	require.Equal(t, ActionAttach, decisions[0].Action)
}

func TestDerivePurchasedAuthorization(t *testing.T) {
	obs := baseObservation(models.PositionTypePurchased)
	obs.PositionAssignedVehicle = strPtr("veh-1")
	require.Empty(t, Derive(DeriveInput{Observation: obs}))

	obs.PositionAssignedVehicle = strPtr("veh-2")
	decisions := Derive(DeriveInput{Observation: obs})
	require.Len(t, decisions, 1)
	require.Equal(t, models.CategoryPurchasedUnauthorized, decisions[0].Category)

	obs.PositionAssignedVehicle = nil
	decisions = Derive(DeriveInput{Observation: obs})
	require.Len(t, decisions, 1)
	require.Equal(t, models.CategoryPurchasedUnauthorized, decisions[0].Category)
}

func TestDeriveReservedAuthorization(t *testing.T) {
	obs := baseObservation(models.PositionTypeReserved)
	obs.PositionAssignedVehicle = strPtr("veh-9")
	decisions := Derive(DeriveInput{Observation: obs})
	require.Len(t, decisions, 1)
	require.Equal(t, models.CategoryReservedUnauthorized, decisions[0].Category)
}

func TestDeriveEvidenceCategoriesAreIndependent(t *testing.T) {
	obs := baseObservation(models.PositionTypePurchased)
	obs.PositionAssignedVehicle = strPtr("veh-2")
	evidence := append(intentEvidence(models.IntentFireLane), intentEvidence(models.IntentExpiredRegistration)...)

	decisions := Derive(DeriveInput{Observation: obs, Evidence: evidence})
	require.Len(t, decisions, 3)

	categories := make(map[models.ViolationCategory]DecisionAction)
	for _, d := range decisions {
		categories[d.Category] = d.Action
	}
	require.Equal(t, ActionCreate, categories[models.CategoryPurchasedUnauthorized])
	require.Equal(t, ActionCreate, categories[models.CategoryFireLane])
	require.Equal(t, ActionCreate, categories[models.CategoryExpiredRegistration])
}

func TestDeriveOpenPositionDerivesNothingWithoutIntents(t *testing.T) {
	decisions := Derive(DeriveInput{Observation: baseObservation(models.PositionTypeOpen)})
	require.Empty(t, decisions)
}

func TestDeriveAttachesEvidenceCategoryToOpenViolation(t *testing.T) {
	open := []models.Violation{{ID: "vio-fl", Category: models.CategoryFireLane, Status: models.StatusDetected}}
	decisions := Derive(DeriveInput{
		Observation:    baseObservation(models.PositionTypeOpen),
		Evidence:       intentEvidence(models.IntentFireLane),
		OpenViolations: open,
	})
	require.Len(t, decisions, 1)
	require.Equal(t, ActionAttach, decisions[0].Action)
	require.Equal(t, "vio-fl", decisions[0].ViolationID)
}

type derivationRepoStub struct {
	db        *sqlx.DB
	rows      []models.Violation
	openQueue [][]models.Violation
	createErr error
	created   []*models.Violation
	events    []*models.ViolationEvent
	linked    [][2]string
}

func (r *derivationRepoStub) Begin(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

func (r *derivationRepoStub) CreateTx(_ context.Context, _ *sqlx.Tx, violation *models.Violation) error {
	if r.createErr != nil {
		err := r.createErr
		r.createErr = nil
		return err
	}
	r.created = append(r.created, violation)
	return nil
}

func (r *derivationRepoStub) GetByIDForUpdateTx(_ context.Context, _ *sqlx.Tx, id string) (*models.Violation, error) {
	for i := range r.rows {
		if r.rows[i].ID == id {
			found := r.rows[i]
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *derivationRepoStub) AppendEventTx(_ context.Context, _ *sqlx.Tx, event *models.ViolationEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *derivationRepoStub) LinkObservationTx(_ context.Context, _ *sqlx.Tx, violationID, observationID string) error {
	r.linked = append(r.linked, [2]string{violationID, observationID})
	return nil
}

func (r *derivationRepoStub) ListOpenByVehiclePosition(_ context.Context, _, _ string) ([]models.Violation, error) {
	if len(r.openQueue) == 0 {
		return nil, nil
	}
	batch := r.openQueue[0]
	r.openQueue = r.openQueue[1:]
	return batch, nil
}

type derivationObsStub struct {
	obs      *models.Observation
	evidence []models.EvidenceItem
}

func (o *derivationObsStub) GetByID(_ context.Context, id string) (*models.Observation, error) {
	if o.obs == nil || o.obs.ID != id {
		return nil, sql.ErrNoRows
	}
	return o.obs, nil
}

func (o *derivationObsStub) ListEvidence(_ context.Context, _ string) ([]models.EvidenceItem, error) {
	return o.evidence, nil
}

func TestDeriveFromObservationLosesCreateRaceAndAttaches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	winner := models.Violation{
		ID:                "vio-winner",
		Category:          models.CategoryHandicappedNoPermit,
		Status:            models.StatusDetected,
		VehicleID:         "veh-1",
		ParkingPositionID: "pos-1",
	}
	errDup := errors.New("duplicate open violation")
	obs := baseObservation(models.PositionTypeHandicapped)
	repo := &derivationRepoStub{
		db:   sqlx.NewDb(db, "sqlmock"),
		rows: []models.Violation{winner},
		// Empty when the deriver first looks, the winner's row on re-read.
		openQueue: [][]models.Violation{nil, {winner}},
		createErr: errDup,
	}
	svc := NewDerivationService(repo, &derivationObsStub{obs: &obs}, nil, nil,
		func(err error) bool { return errors.Is(err, errDup) }, nil)

	require.NoError(t, svc.DeriveFromObservation(context.Background(), "obs-1", "worker"))

	require.Empty(t, repo.created)
	require.Len(t, repo.events, 1)
	require.Equal(t, models.EventObservationAdded, repo.events[0].Type)
	require.Equal(t, "vio-winner", repo.events[0].ViolationID)
	require.Equal(t, [][2]string{{"vio-winner", "obs-1"}}, repo.linked)
	require.NoError(t, mock.ExpectationsWereMet())
}
