package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bonjohen/cedar-terrace-sub001/internal/dto"
	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
	"github.com/bonjohen/cedar-terrace-sub001/internal/repository"
	appErrors "github.com/bonjohen/cedar-terrace-sub001/pkg/errors"
)

type violationRepository interface {
	Begin(ctx context.Context) (*sqlx.Tx, error)
	GetByID(ctx context.Context, id string) (*models.Violation, error)
	GetByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Violation, error)
	AppendEventTx(ctx context.Context, tx *sqlx.Tx, event *models.ViolationEvent) error
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status models.ViolationStatus, resolvedAt, dismissedAt *time.Time) error
	ListEvents(ctx context.Context, violationID string) ([]models.ViolationEvent, error)
	List(ctx context.Context, filter models.ViolationFilter) ([]models.Violation, error)
}

type violationCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ViolationService owns the violation state machine: every status change is
// an appended event plus a projection update in one transaction, applied
// under a row lock.
type ViolationService struct {
	repo     violationRepository
	cache    violationCache
	metrics  *MetricsService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewViolationService constructs the service.
func NewViolationService(repo violationRepository, cache violationCache, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *ViolationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ViolationService{repo: repo, cache: cache, metrics: metrics, cacheTTL: cacheTTL, logger: logger}
}

// ApplyEvent appends an event to a violation's log and advances its status
// projection, all in one transaction under a row lock.
func (s *ViolationService) ApplyEvent(ctx context.Context, violationID string, req dto.ApplyEventRequest, actor string) (*models.ViolationEvent, error) {
	if actor == "" {
		actor = models.SystemActor
	}

	event := &models.ViolationEvent{
		ID:          uuid.NewString(),
		ViolationID: violationID,
		Type:        req.EventType,
		Notes:       req.Notes,
		PerformedBy: actor,
		OccurredAt:  time.Now().UTC(),
	}
	if req.ObservationID != "" {
		id := req.ObservationID
		event.ObservationID = &id
	}
	if req.NoticeID != "" {
		id := req.NoticeID
		event.NoticeID = &id
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin event tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	violation, err := s.repo.GetByIDForUpdateTx(ctx, tx, violationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "violation not found")
		}
		return nil, fmt.Errorf("lock violation: %w", err)
	}

	if err := s.ApplyEventTx(ctx, tx, violation, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit event tx: %w", err)
	}

	s.afterApply(ctx, violationID, event)
	return event, nil
}

// ApplyEventTx validates the transition and writes the event plus projection
// inside the caller's transaction. The caller must hold the violation's row
// lock and must call afterApply (or invalidate the cache) on commit.
func (s *ViolationService) ApplyEventTx(ctx context.Context, tx *sqlx.Tx, violation *models.Violation, event *models.ViolationEvent) error {
	if violation.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrTerminalState,
			fmt.Sprintf("violation is %s and accepts no further events", violation.Status))
	}

	target, transitions := event.Type.TargetStatus()
	if transitions {
		currentRank, _ := violation.Status.Rank()
		targetRank, ranked := target.Rank()

		switch {
		case target.Terminal():
			// Resolution and dismissal close out from any non-terminal status.
		case !ranked:
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("unknown target status %s", target))
		case targetRank > currentRank:
			// Forward along the eligibility path, jumps included.
		case event.Type == models.EventNoticeIssued:
			// A subsequent notice records the event without moving the
			// projection backward; the violation stays where escalation
			// already put it.
			transitions = false
		default:
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot move %s violation to %s", violation.Status, target))
		}
	}

	if err := s.repo.AppendEventTx(ctx, tx, event); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	if transitions {
		var resolvedAt, dismissedAt *time.Time
		switch event.Type {
		case models.EventResolved:
			resolvedAt = &event.OccurredAt
		case models.EventDismissed:
			dismissedAt = &event.OccurredAt
		}
		if err := s.repo.UpdateStatusTx(ctx, tx, violation.ID, target, resolvedAt, dismissedAt); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		violation.Status = target
	}

	return nil
}

// GetWithEvents returns a violation and its full event log, read through the
// cache.
func (s *ViolationService) GetWithEvents(ctx context.Context, id string) (*dto.ViolationResponse, error) {
	cacheKey := violationCacheKey(id)

	if s.cache != nil {
		var cached dto.ViolationResponse
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		} else if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Sugar().Warnw("violation cache read failed", "violation_id", id, "error", err)
		}
		s.metrics.RecordCacheOperation(false)
	}

	violation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "violation not found")
		}
		return nil, fmt.Errorf("get violation: %w", err)
	}

	events, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	resp := &dto.ViolationResponse{Violation: violation, Events: events}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, resp, s.cacheTTL); err != nil {
			s.logger.Sugar().Warnw("violation cache write failed", "violation_id", id, "error", err)
		}
	}
	return resp, nil
}

// List returns violations matching the filter.
func (s *ViolationService) List(ctx context.Context, q dto.ViolationQuery) ([]models.Violation, error) {
	filter := models.ViolationFilter{
		VehicleID:  q.VehicleID,
		PositionID: q.PositionID,
		Category:   q.Category,
		Status:     q.Status,
		OpenOnly:   q.OpenOnly,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	violations, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	return violations, nil
}

// InvalidateCache drops the cached detail for a violation. Other services
// call this after committing events through their own transactions.
func (s *ViolationService) InvalidateCache(ctx context.Context, violationID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, violationCacheKey(violationID)); err != nil {
		s.logger.Sugar().Warnw("violation cache invalidation failed", "violation_id", violationID, "error", err)
	}
}

func (s *ViolationService) afterApply(ctx context.Context, violationID string, event *models.ViolationEvent) {
	s.InvalidateCache(ctx, violationID)
	s.metrics.ViolationEventApplied(event.Type)
	s.logger.Sugar().Infow("violation event applied",
		"violation_id", violationID,
		"event_type", event.Type,
		"performed_by", event.PerformedBy,
	)
}

func violationCacheKey(id string) string {
	return "violation:" + id
}
