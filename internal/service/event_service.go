package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/internal/dto"
	"github.com/prohmpiriya/ticket-broker/internal/repository"
)

// EventService registers events mirrored from the authority
type EventService interface {
	// UpsertEvent creates or updates an event keyed by its authority id
	UpsertEvent(ctx context.Context, externalID string, req *dto.UpsertEventRequest) (*domain.Event, error)
}

type eventService struct {
	events repository.EventRepository
}

// NewEventService creates a new event service
func NewEventService(events repository.EventRepository) EventService {
	return &eventService{events: events}
}

// UpsertEvent creates or updates an event keyed by its authority id
func (s *eventService) UpsertEvent(ctx context.Context, externalID string, req *dto.UpsertEventRequest) (*domain.Event, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, domain.ErrInvalidEventID
	}
	if req == nil || req.UnitPriceCents < 0 {
		return nil, domain.ErrInvalidPrice
	}

	event := &domain.Event{
		ID:             uuid.NewString(),
		ExternalID:     externalID,
		Name:           strings.TrimSpace(req.Name),
		UnitPriceCents: req.UnitPriceCents,
		StartsAt:       req.StartsAt,
	}
	if err := s.events.Upsert(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}
