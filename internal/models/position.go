package models

import (
	"math"
	"time"
)

// PositionType classifies a parking position's authorization model.
type PositionType string

const (
	PositionTypeOpen        PositionType = "OPEN"
	PositionTypePurchased   PositionType = "PURCHASED"
	PositionTypeReserved    PositionType = "RESERVED"
	PositionTypeHandicapped PositionType = "HANDICAPPED"
)

// Valid reports whether the type is one of the known position types.
func (t PositionType) Valid() bool {
	switch t {
	case PositionTypeOpen, PositionTypePurchased, PositionTypeReserved, PositionTypeHandicapped:
		return true
	}
	return false
}

// ParkingPosition is the authoritative spatial anchor: a center point with a
// containment radius. Soft-deletable; geometry edits never retroactively
// reinterpret past observations (those carry their own snapshot).
type ParkingPosition struct {
	ID                string       `db:"id" json:"id"`
	Site              string       `db:"site" json:"site"`
	Label             string       `db:"label" json:"label"`
	Type              PositionType `db:"type" json:"type"`
	CenterLat         float64      `db:"center_lat" json:"centerLat"`
	CenterLng         float64      `db:"center_lng" json:"centerLng"`
	RadiusMeters      float64      `db:"radius_meters" json:"radiusMeters"`
	AssignedVehicleID *string      `db:"assigned_vehicle_id" json:"assignedVehicleId,omitempty"`
	CreatedAt         time.Time    `db:"created_at" json:"createdAt"`
	DeletedAt         *time.Time   `db:"deleted_at" json:"-"`
}

const earthRadiusMeters = 6371000.0

// Contains reports whether the point falls within the position's radius.
func (p *ParkingPosition) Contains(lat, lng float64) bool {
	return haversineMeters(p.CenterLat, p.CenterLng, lat, lng) <= p.RadiusMeters
}

func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}

// PositionFilter constrains position listing queries.
type PositionFilter struct {
	Site   string
	Type   PositionType
	Limit  int
	Offset int
}
