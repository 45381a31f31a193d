package domain

import "time"

// Event is the local catalog entry of an authority event
type Event struct {
	ID             string
	ExternalID     string
	Name           string
	UnitPriceCents int64
	StartsAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
