package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bonjohen/cedar-terrace-sub001/internal/dto"
	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
	appErrors "github.com/bonjohen/cedar-terrace-sub001/pkg/errors"
)

type positionRepository interface {
	Create(ctx context.Context, position *models.ParkingPosition) error
	GetByID(ctx context.Context, id string) (*models.ParkingPosition, error)
	List(ctx context.Context, filter models.PositionFilter) ([]models.ParkingPosition, error)
	SoftDelete(ctx context.Context, id string) error
}

// PositionService manages the parking position registry.
type PositionService struct {
	repo      positionRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPositionService constructs the service.
func NewPositionService(repo positionRepository, validate *validator.Validate, logger *zap.Logger) *PositionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &PositionService{repo: repo, validator: validate, logger: logger}
	_ = svc.validator.RegisterValidation("position_type", func(fl validator.FieldLevel) bool {
		return models.PositionType(fl.Field().String()).Valid()
	})
	return svc
}

// Create registers a new parking position.
func (s *PositionService) Create(ctx context.Context, req dto.CreatePositionRequest) (*models.ParkingPosition, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid position payload: %v", err))
	}
	if strings.TrimSpace(req.Site) == "" || strings.TrimSpace(req.Label) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "site and label are required")
	}
	if req.AssignedVehicleID != "" && req.Type != models.PositionTypePurchased && req.Type != models.PositionTypeReserved {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only purchased and reserved positions take an assigned vehicle")
	}

	position := &models.ParkingPosition{
		ID:           uuid.NewString(),
		Site:         req.Site,
		Label:        req.Label,
		Type:         req.Type,
		CenterLat:    req.CenterLat,
		CenterLng:    req.CenterLng,
		RadiusMeters: req.RadiusMeters,
	}
	if req.AssignedVehicleID != "" {
		id := req.AssignedVehicleID
		position.AssignedVehicleID = &id
	}

	if err := s.repo.Create(ctx, position); err != nil {
		return nil, fmt.Errorf("create position: %w", err)
	}

	s.logger.Sugar().Infow("position created", "position_id", position.ID, "site", position.Site, "label", position.Label)
	return position, nil
}

// GetByID returns a position.
func (s *PositionService) GetByID(ctx context.Context, id string) (*models.ParkingPosition, error) {
	position, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "position not found")
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return position, nil
}

// List returns positions matching the filter.
func (s *PositionService) List(ctx context.Context, filter models.PositionFilter) ([]models.ParkingPosition, error) {
	positions, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return positions, nil
}

// Locate finds the first position on a site containing the given point.
// Field devices use this when an enforcer records coordinates instead of
// selecting a position by hand.
func (s *PositionService) Locate(ctx context.Context, site string, lat, lng float64) (*models.ParkingPosition, error) {
	positions, err := s.repo.List(ctx, models.PositionFilter{Site: site})
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	for i := range positions {
		if positions[i].Contains(lat, lng) {
			return &positions[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "no position contains the given point")
}

// Delete soft-deletes a position. History keyed to it stays intact because
// observations carry their own snapshot.
func (s *PositionService) Delete(ctx context.Context, id string) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "position not found")
		}
		return fmt.Errorf("delete position: %w", err)
	}
	s.logger.Sugar().Infow("position deleted", "position_id", id)
	return nil
}
