package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bonjohen/cedar-terrace-sub001/internal/dto"
	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
	appErrors "github.com/bonjohen/cedar-terrace-sub001/pkg/errors"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/jobs"
)

type observationRepository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, observation *models.Observation, evidence []models.EvidenceItem) error
	GetByID(ctx context.Context, id string) (*models.Observation, error)
	ListEvidence(ctx context.Context, observationID string) ([]models.EvidenceItem, error)
}

type observationVehicleRepository interface {
	UpsertTx(ctx context.Context, tx *sqlx.Tx, plate, jurisdiction string, observedAt time.Time) (*models.Vehicle, error)
	GetByID(ctx context.Context, id string) (*models.Vehicle, error)
	GetByPlate(ctx context.Context, plate, jurisdiction string) (*models.Vehicle, error)
}

type observationPositionRepository interface {
	GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.ParkingPosition, error)
}

type idempotentExecutor interface {
	ExecuteOnce(ctx context.Context, operationType, key string, builder func(tx *sqlx.Tx) (interface{}, error)) (json.RawMessage, bool, error)
}

type taskEnqueuer interface {
	Enqueue(task jobs.Task) error
}

// ObservationService records enforcement encounters and hands true creations
// to the derivation queue.
type ObservationService struct {
	observations observationRepository
	vehicles     observationVehicleRepository
	positions    observationPositionRepository
	ledger       idempotentExecutor
	queue        taskEnqueuer
	logger       *zap.Logger
}

// NewObservationService constructs the service.
func NewObservationService(
	observations observationRepository,
	vehicles observationVehicleRepository,
	positions observationPositionRepository,
	ledger idempotentExecutor,
	queue taskEnqueuer,
	logger *zap.Logger,
) *ObservationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObservationService{
		observations: observations,
		vehicles:     vehicles,
		positions:    positions,
		ledger:       ledger,
		queue:        queue,
		logger:       logger,
	}
}

// Submit records an observation exactly once per idempotency key. The
// observation, its evidence, the lazy vehicle upsert, and the position
// snapshot commit atomically; replays return the original observation id
// without re-running any of it.
func (s *ObservationService) Submit(ctx context.Context, req dto.SubmitObservationRequest, actor string) (*dto.SubmitObservationResponse, error) {
	if err := validateSubmission(req); err != nil {
		return nil, err
	}

	observedAt := req.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	stored, created, err := s.ledger.ExecuteOnce(ctx, models.OpSubmitObservation, req.IdempotencyKey, func(tx *sqlx.Tx) (interface{}, error) {
		observation := &models.Observation{
			ID:             uuid.NewString(),
			Site:           req.Site,
			ObservedAt:     observedAt,
			IdempotencyKey: req.IdempotencyKey,
			SubmittedBy:    actor,
		}

		if req.Plate != "" {
			plate := normalizePlate(req.Plate)
			jurisdiction := strings.ToUpper(strings.TrimSpace(req.Jurisdiction))
			vehicle, err := s.vehicles.UpsertTx(ctx, tx, plate, jurisdiction, observedAt)
			if err != nil {
				return nil, fmt.Errorf("upsert vehicle: %w", err)
			}
			observation.Plate = &plate
			observation.Jurisdiction = &jurisdiction
			observation.VehicleID = &vehicle.ID
		}

		if req.ParkingPositionID != "" {
			position, err := s.positions.GetByIDTx(ctx, tx, req.ParkingPositionID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrValidation, "parking position not found")
				}
				return nil, fmt.Errorf("load position: %w", err)
			}
			observation.ParkingPositionID = &position.ID
			observation.PositionType = &position.Type
			observation.PositionAssignedVehicle = position.AssignedVehicleID
		}

		evidence := make([]models.EvidenceItem, 0, len(req.Evidence))
		for _, in := range req.Evidence {
			item := models.EvidenceItem{
				ID:         uuid.NewString(),
				Kind:       in.Kind,
				CapturedAt: in.CapturedAt,
			}
			if item.CapturedAt.IsZero() {
				item.CapturedAt = observedAt
			}
			if in.StorageKey != "" {
				key := in.StorageKey
				item.StorageKey = &key
			}
			if in.Intent != "" {
				intent := in.Intent
				item.Intent = &intent
			}
			if in.Text != "" {
				text := in.Text
				item.Text = &text
			}
			evidence = append(evidence, item)
		}

		if err := s.observations.CreateTx(ctx, tx, observation, evidence); err != nil {
			return nil, fmt.Errorf("create observation: %w", err)
		}

		return dto.SubmitObservationResult{ObservationID: observation.ID}, nil
	})
	if err != nil {
		return nil, err
	}

	var result dto.SubmitObservationResult
	if err := json.Unmarshal(stored, &result); err != nil {
		return nil, fmt.Errorf("decode submission result: %w", err)
	}

	if created {
		s.enqueueDerivation(result.ObservationID, actor)
	}

	return &dto.SubmitObservationResponse{ObservationID: result.ObservationID, Created: created}, nil
}

// GetByID returns an observation with its evidence trail.
func (s *ObservationService) GetByID(ctx context.Context, id string) (*dto.ObservationResponse, error) {
	observation, err := s.observations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "observation not found")
		}
		return nil, fmt.Errorf("get observation: %w", err)
	}

	evidence, err := s.observations.ListEvidence(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}

	return &dto.ObservationResponse{Observation: observation, Evidence: evidence}, nil
}

// GetVehicle looks up a vehicle profile by id.
func (s *ObservationService) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	vehicle, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "vehicle not found")
		}
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return vehicle, nil
}

// GetVehicleByPlate resolves a vehicle by its identity pair. The plate is
// normalized the same way Submit normalizes it, so field lookups match.
func (s *ObservationService) GetVehicleByPlate(ctx context.Context, plate, jurisdiction string) (*models.Vehicle, error) {
	plate = normalizePlate(plate)
	jurisdiction = strings.ToUpper(strings.TrimSpace(jurisdiction))
	if plate == "" || jurisdiction == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "plate and jurisdiction are required")
	}

	vehicle, err := s.vehicles.GetByPlate(ctx, plate, jurisdiction)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "vehicle not found")
		}
		return nil, fmt.Errorf("get vehicle by plate: %w", err)
	}
	return vehicle, nil
}

func (s *ObservationService) enqueueDerivation(observationID, actor string) {
	if s.queue == nil {
		return
	}
	task := jobs.Task{
		ID:    uuid.NewString(),
		Topic: TopicDeriveViolations,
		Payload: DeriveTaskPayload{
			ObservationID: observationID,
			Actor:         actor,
		},
	}
	if err := s.queue.Enqueue(task); err != nil {
		s.logger.Sugar().Errorw("failed to enqueue derivation", "observation_id", observationID, "error", err)
	}
}

func validateSubmission(req dto.SubmitObservationRequest) error {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "idempotency key is required")
	}
	if strings.TrimSpace(req.Site) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "site is required")
	}
	if len(req.Evidence) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "at least one evidence item is required")
	}
	if (req.Plate == "") != (req.Jurisdiction == "") {
		return appErrors.Clone(appErrors.ErrValidation, "plate and jurisdiction must be provided together")
	}
	for _, in := range req.Evidence {
		switch in.Kind {
		case models.EvidenceKindPhoto:
			if in.StorageKey == "" {
				return appErrors.Clone(appErrors.ErrValidation, "photo evidence requires a storage key")
			}
		case models.EvidenceKindNote:
			if strings.TrimSpace(in.Text) == "" {
				return appErrors.Clone(appErrors.ErrValidation, "note evidence requires text")
			}
		default:
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown evidence kind %q", in.Kind))
		}
	}
	return nil
}

func normalizePlate(plate string) string {
	return strings.ToUpper(strings.Join(strings.Fields(plate), ""))
}
