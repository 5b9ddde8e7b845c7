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

	"github.com/bonjohen/cedar-terrace-sub001/internal/dto"
	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
	"github.com/bonjohen/cedar-terrace-sub001/internal/notify"
	appErrors "github.com/bonjohen/cedar-terrace-sub001/pkg/errors"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/export"
)

type noticeRepository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, notice *models.Notice) error
	GetByID(ctx context.Context, id string) (*models.Notice, error)
	GetByQRToken(ctx context.Context, token string) (*models.Notice, error)
}

type noticeViolationRepository interface {
	GetByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Violation, error)
	HasEventOfTypeTx(ctx context.Context, tx *sqlx.Tx, violationID string, eventType models.ViolationEventType) (bool, error)
}

type noticePositionRepository interface {
	GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.ParkingPosition, error)
}

type noticeVehicleRepository interface {
	GetByID(ctx context.Context, id string) (*models.Vehicle, error)
}

// NoticeService issues notices exactly once per idempotency key and serves
// reprints from the payload frozen at issuance.
type NoticeService struct {
	notices      noticeRepository
	violations   noticeViolationRepository
	positions    noticePositionRepository
	vehicles     noticeVehicleRepository
	applier      eventApplier
	ledger       idempotentExecutor
	renderer     *export.NoticeRenderer
	rules        models.RuleSet
	instructions string
	sender       notify.Sender
	metrics      *MetricsService
	logger       *zap.Logger
	now          func() time.Time
}

// NewNoticeService constructs the service.
func NewNoticeService(
	notices noticeRepository,
	violations noticeViolationRepository,
	positions noticePositionRepository,
	vehicles noticeVehicleRepository,
	applier eventApplier,
	ledger idempotentExecutor,
	renderer *export.NoticeRenderer,
	rules models.RuleSet,
	instructions string,
	sender notify.Sender,
	metrics *MetricsService,
	logger *zap.Logger,
) *NoticeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoticeService{
		notices:      notices,
		violations:   violations,
		positions:    positions,
		vehicles:     vehicles,
		applier:      applier,
		ledger:       ledger,
		renderer:     renderer,
		rules:        rules,
		instructions: instructions,
		sender:       sender,
		metrics:      metrics,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a notice exactly once per idempotency key. The first notice
// for a violation requires NOTICE_ELIGIBLE status; once a notice exists,
// reissues are allowed from any non-terminal status without moving the
// projection backward. The notice row, the NOTICE_ISSUED event, and the
// ledger entry commit together.
func (s *NoticeService) Issue(ctx context.Context, req dto.IssueNoticeRequest, actor string) (*dto.IssueNoticeResponse, error) {
	if actor == "" {
		actor = models.SystemActor
	}

	stored, created, err := s.ledger.ExecuteOnce(ctx, models.OpIssueNotice, req.IdempotencyKey, func(tx *sqlx.Tx) (interface{}, error) {
		violation, err := s.violations.GetByIDForUpdateTx(ctx, tx, req.ViolationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "violation not found")
			}
			return nil, fmt.Errorf("lock violation: %w", err)
		}

		if violation.Status.Terminal() {
			return nil, appErrors.Clone(appErrors.ErrTerminalState,
				fmt.Sprintf("violation is %s, no notice can be issued", violation.Status))
		}

		hasPrior, err := s.violations.HasEventOfTypeTx(ctx, tx, violation.ID, models.EventNoticeIssued)
		if err != nil {
			return nil, fmt.Errorf("check prior notices: %w", err)
		}
		if !hasPrior && violation.Status != models.StatusNoticeEligible {
			return nil, appErrors.Clone(appErrors.ErrNotEligible,
				fmt.Sprintf("first notice requires NOTICE_ELIGIBLE status, violation is %s", violation.Status))
		}

		payload, err := s.buildPayload(ctx, tx, violation)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal notice payload: %w", err)
		}

		notice := &models.Notice{
			ID:          payload.NoticeID,
			ViolationID: violation.ID,
			QRToken:     uuid.NewString(),
			Payload:     raw,
			IssuedBy:    actor,
			IssuedAt:    payload.IssuedAt,
		}
		if err := s.notices.CreateTx(ctx, tx, notice); err != nil {
			return nil, fmt.Errorf("create notice: %w", err)
		}

		data, err := json.Marshal(models.NoticeIssuedData{NoticeID: notice.ID})
		if err != nil {
			return nil, fmt.Errorf("marshal event data: %w", err)
		}
		event := &models.ViolationEvent{
			ID:          uuid.NewString(),
			ViolationID: violation.ID,
			Type:        models.EventNoticeIssued,
			NoticeID:    &notice.ID,
			PerformedBy: actor,
			Data:        data,
			OccurredAt:  notice.IssuedAt,
		}
		if err := s.applier.ApplyEventTx(ctx, tx, violation, event); err != nil {
			return nil, err
		}

		return dto.IssueNoticeResult{NoticeID: notice.ID, QRToken: notice.QRToken, TextPayload: raw}, nil
	})
	if err != nil {
		return nil, err
	}

	var result dto.IssueNoticeResult
	if err := json.Unmarshal(stored, &result); err != nil {
		return nil, fmt.Errorf("decode issuance result: %w", err)
	}

	if created {
		s.applier.InvalidateCache(ctx, req.ViolationID)
		s.metrics.NoticeIssued()
		if s.sender != nil {
			s.sender.Send(ctx, notify.Message{
				Kind:        notify.KindNoticeIssued,
				ViolationID: req.ViolationID,
				Detail:      result.NoticeID,
			})
		}
		s.logger.Sugar().Infow("notice issued", "notice_id", result.NoticeID, "violation_id", req.ViolationID)
	} else {
		s.metrics.IdempotentReplay(models.OpIssueNotice)
	}

	return &dto.IssueNoticeResponse{
		NoticeID:    result.NoticeID,
		QRToken:     result.QRToken,
		TextPayload: result.TextPayload,
		Created:     created,
	}, nil
}

// GetByID returns a stored notice.
func (s *NoticeService) GetByID(ctx context.Context, id string) (*models.Notice, error) {
	notice, err := s.notices.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notice not found")
		}
		return nil, fmt.Errorf("get notice: %w", err)
	}
	return notice, nil
}

// GetByQRToken resolves a scanned QR token to its notice.
func (s *NoticeService) GetByQRToken(ctx context.Context, token string) (*models.Notice, error) {
	notice, err := s.notices.GetByQRToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notice not found")
		}
		return nil, fmt.Errorf("get notice by token: %w", err)
	}
	return notice, nil
}

// RenderDocument produces the printable PDF from the payload frozen at
// issuance. Reprints never regenerate content.
func (s *NoticeService) RenderDocument(ctx context.Context, id string) ([]byte, error) {
	notice, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var payload models.NoticePayload
	if err := json.Unmarshal(notice.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode stored payload: %w", err)
	}

	doc, err := s.renderer.Render(payload, notice.QRToken)
	if err != nil {
		return nil, fmt.Errorf("render notice: %w", err)
	}
	return doc, nil
}

func (s *NoticeService) buildPayload(ctx context.Context, tx *sqlx.Tx, violation *models.Violation) (models.NoticePayload, error) {
	issuedAt := s.now()

	position, err := s.positions.GetByIDTx(ctx, tx, violation.ParkingPositionID)
	if err != nil {
		return models.NoticePayload{}, fmt.Errorf("load position: %w", err)
	}

	vehicle, err := s.vehicles.GetByID(ctx, violation.VehicleID)
	if err != nil {
		return models.NoticePayload{}, fmt.Errorf("load vehicle: %w", err)
	}

	rule, ok := s.rules[violation.Category]
	if !ok {
		return models.NoticePayload{}, appErrors.Clone(appErrors.ErrUnknownCategory,
			fmt.Sprintf("no timeline rule for category %s", violation.Category))
	}

	return models.NoticePayload{
		NoticeID:           uuid.NewString(),
		ViolationID:        violation.ID,
		Category:           violation.Category,
		Site:               position.Site,
		PositionLabel:      position.Label,
		Plate:              vehicle.Plate,
		Jurisdiction:       vehicle.Jurisdiction,
		DetectedAt:         violation.DetectedAt,
		IssuedAt:           issuedAt,
		EscalationDeadline: issuedAt.Add(time.Duration(rule.EscalationDays) * 24 * time.Hour),
		TowDeadline:        issuedAt.Add(time.Duration(rule.TowEligibleDays) * 24 * time.Hour),
		Instructions:       s.instructions,
	}, nil
}
