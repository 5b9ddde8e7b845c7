package models

import "time"

// Vehicle is identity keyed by (plate, jurisdiction), created lazily on first
// sighting. The only mutation ever applied is appending a newer last-observed
// timestamp.
type Vehicle struct {
	ID             string    `db:"id" json:"id"`
	Plate          string    `db:"plate" json:"plate"`
	Jurisdiction   string    `db:"jurisdiction" json:"jurisdiction"`
	FirstObserved  time.Time `db:"first_observed" json:"firstObserved"`
	LastObservedAt time.Time `db:"last_observed_at" json:"lastObservedAt"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}
