package dto

import (
	"time"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
)

// UpsertEventRequest registers or updates a mirrored authority event
type UpsertEventRequest struct {
	Name           string     `json:"name"`
	UnitPriceCents int64      `json:"unit_price_cents" binding:"min=0"`
	StartsAt       *time.Time `json:"starts_at,omitempty"`
}

// EventResponse represents an event in API response
type EventResponse struct {
	ID             string     `json:"id"`
	ExternalID     string     `json:"external_id"`
	Name           string     `json:"name"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	StartsAt       *time.Time `json:"starts_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// EventFromDomain converts a domain Event to EventResponse
func EventFromDomain(e *domain.Event) *EventResponse {
	return &EventResponse{
		ID:             e.ID,
		ExternalID:     e.ExternalID,
		Name:           e.Name,
		UnitPriceCents: e.UnitPriceCents,
		StartsAt:       e.StartsAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}
