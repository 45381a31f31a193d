package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/internal/repository"
	"github.com/prohmpiriya/ticket-broker/pkg/logger"
	"github.com/prohmpiriya/ticket-broker/pkg/telemetry"
)

// ReservationResult is the per-seat outcome of a reservation plus the
// session state it left behind
type ReservationResult struct {
	Session *domain.Session
	Results []domain.SeatResult
}

// SessionService defines the interface for purchase session logic
type SessionService interface {
	// Start opens a purchase session for an event
	Start(ctx context.Context, userID, externalEventID string) (*domain.Session, error)

	// Get loads a session and slides its TTL
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// ReserveSeats locks seats for the session and records the selection
	ReserveSeats(ctx context.Context, eventID, sessionID string, seatIDs []string) (*ReservationResult, error)

	// ReleaseSeats frees every seat the session holds for the event
	ReleaseSeats(ctx context.Context, eventID, sessionID string) (int, error)
}

// sessionService implements SessionService
type sessionService struct {
	sessions    repository.SessionRepository
	coordinator *ReservationCoordinator
	locks       *SeatLockRegistry
	now         func() time.Time
	log         *logger.Logger
}

// NewSessionService creates a new session service
func NewSessionService(
	sessions repository.SessionRepository,
	coordinator *ReservationCoordinator,
	locks *SeatLockRegistry,
) SessionService {
	return &sessionService{
		sessions:    sessions,
		coordinator: coordinator,
		locks:       locks,
		now:         time.Now,
		log:         logger.Get().With(zap.String("component", "session-service")),
	}
}

// Start opens a purchase session for an event
func (s *sessionService) Start(ctx context.Context, userID, externalEventID string) (*domain.Session, error) {
	externalEventID = strings.TrimSpace(externalEventID)
	if externalEventID == "" {
		return nil, domain.ErrInvalidEventID
	}

	session := domain.NewSession(strings.TrimSpace(userID), externalEventID, s.now())
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	s.log.Info("purchase session started",
		zap.String("session_id", session.ID),
		zap.String("external_event_id", externalEventID),
	)
	return session, nil
}

// Get loads a session and slides its TTL
func (s *sessionService) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.ErrInvalidSessionID
	}
	return s.sessions.Get(ctx, sessionID)
}

// ReserveSeats locks seats for the session and records the selection
func (s *sessionService) ReserveSeats(ctx context.Context, eventID, sessionID string, seatIDs []string) (result *ReservationResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.session.reserve_seats")
	defer func() { telemetry.End(span, err) }()
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("session_id", sessionID),
	)

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ExternalEventID != "" && session.ExternalEventID != eventID {
		return nil, domain.ErrSessionEventMismatch
	}

	results, err := s.coordinator.ReserveSeats(ctx, eventID, sessionID, seatIDs)
	if err != nil {
		return nil, err
	}

	requested := make([]string, 0, len(results))
	for _, r := range results {
		if r.Outcome != domain.SeatInvalid {
			requested = append(requested, r.SeatID)
		}
	}
	session.ExternalEventID = eventID
	session.RecordReservation(requested, results, s.now())
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	s.log.Info("seats reserved",
		zap.String("session_id", sessionID),
		zap.String("event_id", eventID),
		zap.Int("requested", len(seatIDs)),
		zap.Int("locked", domain.CountOutcome(results, domain.SeatOK)),
		zap.Int("conflicts", domain.CountOutcome(results, domain.SeatConflict)),
	)
	return &ReservationResult{Session: session, Results: results}, nil
}

// ReleaseSeats frees every seat the session holds for the event
func (s *sessionService) ReleaseSeats(ctx context.Context, eventID, sessionID string) (int, error) {
	if strings.TrimSpace(eventID) == "" {
		return 0, domain.ErrInvalidEventID
	}
	if strings.TrimSpace(sessionID) == "" {
		return 0, domain.ErrInvalidSessionID
	}

	released, err := s.locks.ReleaseAll(ctx, eventID, sessionID)
	if err != nil {
		return released, err
	}

	session, err := s.sessions.Get(ctx, sessionID)
	switch {
	case err == nil && session.ExternalEventID == eventID && session.Step != domain.StepConfirmed:
		session.SelectedSeats = []string{}
		session.HadAuthorityLocks = false
		session.Step = domain.StepSelecting
		session.UpdatedAt = s.now()
		if err := s.sessions.Save(ctx, session); err != nil {
			return released, err
		}
	case err != nil && !domain.IsNotFoundError(err):
		return released, err
	}

	s.log.Info("session seats released",
		zap.String("session_id", sessionID),
		zap.String("event_id", eventID),
		zap.Int("released", released),
	)
	return released, nil
}
