package dto

import "github.com/bonjohen/cedar-terrace-sub001/internal/models"

// CreatePositionRequest payload for registering a parking position.
type CreatePositionRequest struct {
	Site              string              `json:"site" binding:"required" validate:"required"`
	Label             string              `json:"label" binding:"required" validate:"required"`
	Type              models.PositionType `json:"type" binding:"required" validate:"required,position_type"`
	CenterLat         float64             `json:"centerLat" validate:"min=-90,max=90"`
	CenterLng         float64             `json:"centerLng" validate:"min=-180,max=180"`
	RadiusMeters      float64             `json:"radiusMeters" validate:"gt=0"`
	AssignedVehicleID string              `json:"assignedVehicleId"`
}

// UploadEvidenceResponse returns the opaque storage key for an uploaded photo.
type UploadEvidenceResponse struct {
	StorageKey string `json:"storageKey"`
	PhotoToken string `json:"photoToken"`
}
