package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
	"github.com/bonjohen/cedar-terrace-sub001/internal/notify"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/jobs"
)

// TopicDeriveViolations is the queue topic for derivation work.
const TopicDeriveViolations = "violation.derive"

// DeriveTaskPayload is the task body enqueued per newly created observation.
type DeriveTaskPayload struct {
	ObservationID string `json:"observationId"`
	Actor         string `json:"actor"`
}

// DecisionAction distinguishes the two derivation outcomes.
type DecisionAction string

const (
	ActionCreate DecisionAction = "CREATE"
	ActionAttach DecisionAction = "ATTACH"
)

// Decision is one derivation outcome: open a new violation of a category, or
// attach the observation to an already-open one.
type Decision struct {
	Action      DecisionAction
	Category    models.ViolationCategory
	ViolationID string
}

// DeriveInput carries everything the pure deriver consults. Position facts
// come from the observation's snapshot, never the live position row.
type DeriveInput struct {
	Observation    models.Observation
	Evidence       []models.EvidenceItem
	OpenViolations []models.Violation
}

type derivationViolationRepository interface {
	Begin(ctx context.Context) (*sqlx.Tx, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, violation *models.Violation) error
	GetByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Violation, error)
	AppendEventTx(ctx context.Context, tx *sqlx.Tx, event *models.ViolationEvent) error
	LinkObservationTx(ctx context.Context, tx *sqlx.Tx, violationID, observationID string) error
	ListOpenByVehiclePosition(ctx context.Context, vehicleID, positionID string) ([]models.Violation, error)
}

type derivationObservationRepository interface {
	GetByID(ctx context.Context, id string) (*models.Observation, error)
	ListEvidence(ctx context.Context, observationID string) ([]models.EvidenceItem, error)
}

// DerivationService turns observations into violations. Derive itself is pure
// so the rules stay testable without storage; Execute applies each decision in
// its own transaction.
type DerivationService struct {
	violations   derivationViolationRepository
	observations derivationObservationRepository
	sender       notify.Sender
	metrics      *MetricsService
	isUniqueErr  uniqueViolationFunc
	logger       *zap.Logger
}

// NewDerivationService constructs the service.
func NewDerivationService(
	violations derivationViolationRepository,
	observations derivationObservationRepository,
	sender notify.Sender,
	metrics *MetricsService,
	isUniqueErr uniqueViolationFunc,
	logger *zap.Logger,
) *DerivationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DerivationService{
		violations:   violations,
		observations: observations,
		sender:       sender,
		metrics:      metrics,
		isUniqueErr:  isUniqueErr,
		logger:       logger,
	}
}

// Derive computes derivation decisions for an observation. It is pure: no
// storage access, no clock. Observations without both a vehicle and a
// position derive nothing; enforcement needs someone to hold accountable
// somewhere concrete.
func Derive(input DeriveInput) []Decision {
	obs := input.Observation
	if obs.VehicleID == nil || obs.ParkingPositionID == nil || obs.PositionType == nil {
		return nil
	}

	openByCategory := make(map[models.ViolationCategory]string, len(input.OpenViolations))
	for _, v := range input.OpenViolations {
		if _, seen := openByCategory[v.Category]; !seen {
			openByCategory[v.Category] = v.ID
		}
	}

	var decisions []Decision
	emit := func(category models.ViolationCategory) {
		if id, open := openByCategory[category]; open {
			decisions = append(decisions, Decision{Action: ActionAttach, Category: category, ViolationID: id})
			return
		}
		decisions = append(decisions, Decision{Action: ActionCreate, Category: category})
	}

	// Position authorization.
	switch *obs.PositionType {
	case models.PositionTypeHandicapped:
		if id, open := openByCategory[models.CategoryHandicappedNoPermit]; open {
			// An open case absorbs every later sighting, placard evidence
			// included; the clarification belongs on the existing record.
			decisions = append(decisions, Decision{
				Action:      ActionAttach,
				Category:    models.CategoryHandicappedNoPermit,
				ViolationID: id,
			})
		} else if !models.HasIntent(input.Evidence, models.IntentHandicappedPlacard) {
			emit(models.CategoryHandicappedNoPermit)
		}
	case models.PositionTypePurchased:
		if !vehicleAuthorized(obs) {
			emit(models.CategoryPurchasedUnauthorized)
		}
	case models.PositionTypeReserved:
		if !vehicleAuthorized(obs) {
			emit(models.CategoryReservedUnauthorized)
		}
	}

	// Evidence sufficiency, independent of position authorization.
	if models.HasIntent(input.Evidence, models.IntentFireLane) {
		emit(models.CategoryFireLane)
	}
	if models.HasIntent(input.Evidence, models.IntentExpiredRegistration) {
		emit(models.CategoryExpiredRegistration)
	}

	return decisions
}

func vehicleAuthorized(obs models.Observation) bool {
	return obs.PositionAssignedVehicle != nil &&
		obs.VehicleID != nil &&
		*obs.PositionAssignedVehicle == *obs.VehicleID
}

// Handler consumes derivation tasks from the queue.
func (s *DerivationService) Handler(ctx context.Context, task jobs.Task) error {
	payload, err := decodeDerivePayload(task.Payload)
	if err != nil {
		return err
	}
	return s.DeriveFromObservation(ctx, payload.ObservationID, payload.Actor)
}

// DeriveFromObservation loads an observation, derives decisions, and applies
// them. Safe to re-run: attaches land on the violations the first run opened.
func (s *DerivationService) DeriveFromObservation(ctx context.Context, observationID, actor string) error {
	observation, err := s.observations.GetByID(ctx, observationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Sugar().Warnw("derivation skipped, observation missing", "observation_id", observationID)
			return nil
		}
		return fmt.Errorf("load observation: %w", err)
	}

	if observation.VehicleID == nil || observation.ParkingPositionID == nil {
		return nil
	}

	evidence, err := s.observations.ListEvidence(ctx, observationID)
	if err != nil {
		return fmt.Errorf("load evidence: %w", err)
	}

	open, err := s.violations.ListOpenByVehiclePosition(ctx, *observation.VehicleID, *observation.ParkingPositionID)
	if err != nil {
		return fmt.Errorf("load open violations: %w", err)
	}

	decisions := Derive(DeriveInput{Observation: *observation, Evidence: evidence, OpenViolations: open})
	if actor == "" {
		actor = models.SystemActor
	}

	for _, decision := range decisions {
		switch decision.Action {
		case ActionCreate:
			if err := s.createViolation(ctx, observation, decision.Category, actor); err != nil {
				return err
			}
		case ActionAttach:
			if err := s.attachObservation(ctx, decision.ViolationID, observation.ID, actor); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *DerivationService) createViolation(ctx context.Context, observation *models.Observation, category models.ViolationCategory, actor string) error {
	tx, err := s.violations.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin derivation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	violation := &models.Violation{
		ID:                uuid.NewString(),
		Category:          category,
		Status:            models.StatusDetected,
		VehicleID:         *observation.VehicleID,
		ParkingPositionID: *observation.ParkingPositionID,
		DetectedAt:        observation.ObservedAt,
	}
	if err := s.violations.CreateTx(ctx, tx, violation); err != nil {
		if s.isUniqueErr != nil && s.isUniqueErr(err) {
			// Another worker opened the same open violation between our
			// list and this insert. The partial unique index on
			// (vehicle_id, parking_position_id, category) for open rows
			// arbitrates the race; attach to the winner's row instead.
			_ = tx.Rollback()
			return s.attachToExistingOpen(ctx, observation, category, actor)
		}
		return fmt.Errorf("create violation: %w", err)
	}

	event := &models.ViolationEvent{
		ID:            uuid.NewString(),
		ViolationID:   violation.ID,
		Type:          models.EventDetected,
		ObservationID: &observation.ID,
		PerformedBy:   actor,
		OccurredAt:    observation.ObservedAt,
	}
	if err := s.violations.AppendEventTx(ctx, tx, event); err != nil {
		return fmt.Errorf("append detected event: %w", err)
	}

	if err := s.violations.LinkObservationTx(ctx, tx, violation.ID, observation.ID); err != nil {
		return fmt.Errorf("link observation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit derivation tx: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ViolationDerived(category)
	}
	if s.sender != nil {
		plate := ""
		if observation.Plate != nil {
			plate = *observation.Plate
		}
		s.sender.Send(ctx, notify.Message{
			Kind:        notify.KindViolationDetected,
			ViolationID: violation.ID,
			Site:        observation.Site,
			Plate:       plate,
			Detail:      string(category),
		})
	}

	s.logger.Sugar().Infow("violation derived",
		"violation_id", violation.ID,
		"category", category,
		"observation_id", observation.ID,
	)
	return nil
}

func (s *DerivationService) attachToExistingOpen(ctx context.Context, observation *models.Observation, category models.ViolationCategory, actor string) error {
	open, err := s.violations.ListOpenByVehiclePosition(ctx, *observation.VehicleID, *observation.ParkingPositionID)
	if err != nil {
		return fmt.Errorf("reload open violations: %w", err)
	}
	for _, v := range open {
		if v.Category == category {
			return s.attachObservation(ctx, v.ID, observation.ID, actor)
		}
	}
	// The winner's row closed before we could read it back. The sighting is
	// still recorded as an observation, so there is nothing left to attach.
	s.logger.Sugar().Warnw("concurrent violation already closed",
		"observation_id", observation.ID,
		"category", category,
	)
	return nil
}

func (s *DerivationService) attachObservation(ctx context.Context, violationID, observationID, actor string) error {
	tx, err := s.violations.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin attach tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	violation, err := s.violations.GetByIDForUpdateTx(ctx, tx, violationID)
	if err != nil {
		return fmt.Errorf("lock violation: %w", err)
	}
	if !violation.Open() {
		// Closed between derivation and apply; the sighting is already
		// recorded as an observation, nothing more to do.
		return nil
	}

	data, err := json.Marshal(models.ObservationAddedData{ObservationID: observationID})
	if err != nil {
		return fmt.Errorf("marshal attach data: %w", err)
	}

	event := &models.ViolationEvent{
		ID:            uuid.NewString(),
		ViolationID:   violationID,
		Type:          models.EventObservationAdded,
		ObservationID: &observationID,
		PerformedBy:   actor,
		Data:          data,
		OccurredAt:    time.Now().UTC(),
	}
	if err := s.violations.AppendEventTx(ctx, tx, event); err != nil {
		return fmt.Errorf("append observation event: %w", err)
	}

	if err := s.violations.LinkObservationTx(ctx, tx, violationID, observationID); err != nil {
		return fmt.Errorf("link observation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attach tx: %w", err)
	}

	s.logger.Sugar().Infow("observation attached", "violation_id", violationID, "observation_id", observationID)
	return nil
}

func decodeDerivePayload(raw interface{}) (DeriveTaskPayload, error) {
	switch p := raw.(type) {
	case DeriveTaskPayload:
		return p, nil
	case []byte:
		var payload DeriveTaskPayload
		if err := json.Unmarshal(p, &payload); err != nil {
			return DeriveTaskPayload{}, fmt.Errorf("decode derive payload: %w", err)
		}
		return payload, nil
	default:
		return DeriveTaskPayload{}, fmt.Errorf("unexpected derive payload type %T", raw)
	}
}
