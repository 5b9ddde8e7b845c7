package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bonjohen/cedar-terrace-sub001/internal/dto"
	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
	"github.com/bonjohen/cedar-terrace-sub001/internal/notify"
	appErrors "github.com/bonjohen/cedar-terrace-sub001/pkg/errors"
)

type timelineRepository interface {
	Begin(ctx context.Context) (*sqlx.Tx, error)
	GetByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Violation, error)
	HasEventOfTypeTx(ctx context.Context, tx *sqlx.Tx, violationID string, eventType models.ViolationEventType) (bool, error)
	LatestEventOfTypeTx(ctx context.Context, tx *sqlx.Tx, violationID string, eventType models.ViolationEventType) (*models.ViolationEvent, error)
	ListOpenForEvaluation(ctx context.Context, limit int) ([]models.Violation, error)
}

type eventApplier interface {
	ApplyEventTx(ctx context.Context, tx *sqlx.Tx, violation *models.Violation, event *models.ViolationEvent) error
	InvalidateCache(ctx context.Context, violationID string)
}

// TimelineService advances noticed violations on a clock. A sweep runs at
// startup and then on every poll tick; each violation is evaluated in its own
// transaction under a row lock, so a concurrent evaluator or manual event
// simply wins or loses the lock and the loser re-checks.
type TimelineService struct {
	repo    timelineRepository
	applier eventApplier
	rules   models.RuleSet
	sender  notify.Sender
	metrics *MetricsService
	logger  *zap.Logger

	pollInterval time.Duration
	sweepLimit   int
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewTimelineService constructs the evaluator. Rules must already be
// validated for category completeness.
func NewTimelineService(
	repo timelineRepository,
	applier eventApplier,
	rules models.RuleSet,
	pollInterval time.Duration,
	sweepLimit int,
	sender notify.Sender,
	metrics *MetricsService,
	logger *zap.Logger,
) *TimelineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 15 * time.Minute
	}
	if sweepLimit <= 0 {
		sweepLimit = 500
	}
	return &TimelineService{
		repo:         repo,
		applier:      applier,
		rules:        rules,
		sender:       sender,
		metrics:      metrics,
		logger:       logger,
		pollInterval: pollInterval,
		sweepLimit:   sweepLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Start runs an immediate sweep, then sweeps on every poll interval until
// Stop or context cancellation.
func (s *TimelineService) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.Sweep(runCtx)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.Sweep(runCtx)
			}
		}
	}()
}

// Stop halts the background loop and waits for an in-flight sweep.
func (s *TimelineService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

// Sweep evaluates every open violation in the eligible window. Per-violation
// failures are logged and do not stop the pass.
func (s *TimelineService) Sweep(ctx context.Context) {
	violations, err := s.repo.ListOpenForEvaluation(ctx, s.sweepLimit)
	if err != nil {
		s.logger.Sugar().Errorw("timeline sweep failed to list violations", "error", err)
		return
	}

	var applied int
	for _, v := range violations {
		if ctx.Err() != nil {
			return
		}
		result, err := s.EvaluateViolation(ctx, v.ID)
		if err != nil {
			s.logger.Sugar().Errorw("timeline evaluation failed", "violation_id", v.ID, "error", err)
			continue
		}
		if result.Applied {
			applied++
		}
	}

	s.logger.Sugar().Infow("timeline sweep complete", "evaluated", len(violations), "applied", applied)
}

// EvaluateViolation applies at most one automatic transition to a violation.
// Tow eligibility is checked before escalation so a long-overdue violation
// jumps straight to TOW_ELIGIBLE rather than stepping through ESCALATED on
// the same pass.
func (s *TimelineService) EvaluateViolation(ctx context.Context, violationID string) (*dto.EvaluateResponse, error) {
	resp := &dto.EvaluateResponse{ViolationID: violationID}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin evaluation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	violation, err := s.repo.GetByIDForUpdateTx(ctx, tx, violationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "violation not found")
		}
		return nil, fmt.Errorf("lock violation: %w", err)
	}

	if violation.Status != models.StatusNoticeIssued && violation.Status != models.StatusEscalated {
		return resp, nil
	}

	rule, ok := s.rules[violation.Category]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnknownCategory,
			fmt.Sprintf("no timeline rule for category %s", violation.Category))
	}

	notice, err := s.repo.LatestEventOfTypeTx(ctx, tx, violationID, models.EventNoticeIssued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return resp, nil
		}
		return nil, fmt.Errorf("load notice event: %w", err)
	}

	elapsedDays := s.now().Sub(notice.OccurredAt).Hours() / 24

	var transition models.ViolationEventType
	var threshold int
	switch {
	case elapsedDays >= float64(rule.TowEligibleDays):
		transition, threshold = models.EventTowEligible, rule.TowEligibleDays
	case violation.Status == models.StatusNoticeIssued && elapsedDays >= float64(rule.EscalationDays):
		transition, threshold = models.EventEscalated, rule.EscalationDays
	default:
		return resp, nil
	}

	// Re-check under the lock; a concurrent evaluator may have applied the
	// same transition between listing and locking.
	already, err := s.repo.HasEventOfTypeTx(ctx, tx, violationID, transition)
	if err != nil {
		return nil, fmt.Errorf("check prior transition: %w", err)
	}
	if already {
		return resp, nil
	}

	data, err := json.Marshal(models.EscalationData{
		DaysSinceNotice: int(math.Floor(elapsedDays)),
		ThresholdDays:   threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal transition data: %w", err)
	}

	event := &models.ViolationEvent{
		ID:          uuid.NewString(),
		ViolationID: violationID,
		Type:        transition,
		PerformedBy: models.SystemActor,
		Data:        data,
		OccurredAt:  s.now(),
	}
	if err := s.applier.ApplyEventTx(ctx, tx, violation, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit evaluation tx: %w", err)
	}

	s.applier.InvalidateCache(ctx, violationID)
	s.metrics.TimelineTransition(transition)
	s.notifyTransition(ctx, violation, transition)
	s.logger.Sugar().Infow("timeline transition applied",
		"violation_id", violationID,
		"transition", transition,
		"days_since_notice", int(math.Floor(elapsedDays)),
	)

	resp.Transition = string(transition)
	resp.Applied = true
	return resp, nil
}

func (s *TimelineService) notifyTransition(ctx context.Context, violation *models.Violation, transition models.ViolationEventType) {
	if s.sender == nil {
		return
	}
	kind := notify.KindEscalated
	if transition == models.EventTowEligible {
		kind = notify.KindTowEligible
	}
	s.sender.Send(ctx, notify.Message{
		Kind:        kind,
		ViolationID: violation.ID,
		Detail:      string(violation.Category),
	})
}
