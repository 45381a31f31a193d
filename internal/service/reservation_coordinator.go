package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/prohmpiriya/ticket-broker/internal/authority"
	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/internal/metrics"
	"github.com/prohmpiriya/ticket-broker/pkg/logger"
	"github.com/prohmpiriya/ticket-broker/pkg/telemetry"
)

// SeatBlocker forwards block requests to the authority. Credential refresh
// on 401 happens inside the implementation.
type SeatBlocker interface {
	BlockSeats(ctx context.Context, sessionID, externalEventID string, seats []domain.SeatPosition) (*authority.BlockSeatsResponse, error)
}

// ReservationCoordinator resolves a batch of seat requests against the
// local locks and the authority
type ReservationCoordinator struct {
	locks     *SeatLockRegistry
	authority SeatBlocker
	log       *logger.Logger
}

// NewReservationCoordinator creates a new ReservationCoordinator
func NewReservationCoordinator(locks *SeatLockRegistry, blocker SeatBlocker) *ReservationCoordinator {
	return &ReservationCoordinator{
		locks:     locks,
		authority: blocker,
		log:       logger.Get().With(zap.String("component", "reservation-coordinator")),
	}
}

// ReserveSeats returns exactly one result per requested id, in request
// order. Per-seat failures are outcomes, not errors; an error is returned
// only for a missing event or session or an empty request.
func (c *ReservationCoordinator) ReserveSeats(ctx context.Context, eventID, sessionID string, seatIDs []string) (results []domain.SeatResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.reserve_seats")
	defer func() { telemetry.End(span, err) }()

	if strings.TrimSpace(eventID) == "" {
		return nil, domain.ErrInvalidEventID
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.ErrInvalidSessionID
	}
	if len(seatIDs) == 0 {
		return nil, domain.ErrNoSeatsRequested
	}
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("session_id", sessionID),
		attribute.Int("requested", len(seatIDs)),
	)

	results = make([]domain.SeatResult, len(seatIDs))
	// first index of each canonical id; repeats copy its outcome at the end
	first := make(map[string]int, len(seatIDs))
	var candidates []domain.SeatPosition
	candidateIdx := make(map[string]int)

	for i, raw := range seatIDs {
		pos, perr := domain.ParseSeatID(raw)
		if perr != nil {
			results[i] = domain.SeatResult{SeatID: raw, Outcome: domain.SeatInvalid, Message: "malformed seat id"}
			continue
		}
		id := pos.ID()
		results[i].SeatID = id
		if _, dup := first[id]; dup {
			continue
		}
		first[id] = i

		owner, held, lerr := c.locks.OwnerOf(ctx, eventID, id)
		switch {
		case lerr != nil:
			results[i] = seatError(id, lerr)
		case held && owner == sessionID:
			results[i] = c.commit(ctx, eventID, sessionID, id, "already held by this session")
		case held:
			results[i] = domain.SeatResult{SeatID: id, Outcome: domain.SeatConflict, Message: "held by another session"}
		default:
			candidateIdx[id] = i
			candidates = append(candidates, pos)
		}
	}

	if len(candidates) > 0 {
		c.resolveWithAuthority(ctx, eventID, sessionID, candidates, candidateIdx, results)
	}

	for i, raw := range seatIDs {
		if results[i].Outcome != "" {
			continue
		}
		if j, ok := first[domain.CanonicalSeatID(raw)]; ok && j != i {
			results[i] = results[j]
		}
	}

	metrics.RecordSeatOutcomes(ctx, eventID, results)
	span.SetAttributes(attribute.Int("locked", domain.CountOutcome(results, domain.SeatOK)))
	return results, nil
}

// resolveWithAuthority sends every free seat in one batch and commits the
// ones the authority blocked
func (c *ReservationCoordinator) resolveWithAuthority(
	ctx context.Context,
	eventID, sessionID string,
	candidates []domain.SeatPosition,
	idx map[string]int,
	results []domain.SeatResult,
) {
	resp, err := c.authority.BlockSeats(ctx, sessionID, eventID, candidates)
	if err != nil {
		c.log.Warn("authority block request failed",
			zap.String("event_id", eventID),
			zap.String("session_id", sessionID),
			zap.Int("seats", len(candidates)),
			zap.Error(err),
		)
		for _, pos := range candidates {
			results[idx[pos.ID()]] = seatError(pos.ID(), err)
		}
		return
	}

	states := make(map[string]string, len(resp.Seats))
	for _, s := range resp.Seats {
		states[domain.SeatPosition{Row: s.Row, Column: s.Column}.ID()] = s.State
	}

	missing := "no answer from authority for this seat"
	if d := strings.TrimSpace(resp.Description); d != "" {
		missing = d
	}

	for _, pos := range candidates {
		id := pos.ID()
		i := idx[id]
		state, ok := states[id]
		if !ok {
			results[i] = domain.SeatResult{SeatID: id, Outcome: domain.SeatError, Message: missing}
			continue
		}

		outcome := authority.ClassifySeatState(state)
		if outcome != domain.SeatOK {
			results[i] = domain.SeatResult{SeatID: id, Outcome: outcome, Message: state}
			continue
		}
		results[i] = c.commit(ctx, eventID, sessionID, id, state)
	}
}

// commit takes the local lock for a seat the session is entitled to. Losing
// the race yields CONFLICT.
func (c *ReservationCoordinator) commit(ctx context.Context, eventID, sessionID, seatID, message string) domain.SeatResult {
	ok, err := c.locks.Acquire(ctx, eventID, sessionID, seatID)
	if err != nil {
		return seatError(seatID, err)
	}
	if !ok {
		return domain.SeatResult{SeatID: seatID, Outcome: domain.SeatConflict, Message: "taken by another session"}
	}
	return domain.SeatResult{SeatID: seatID, Outcome: domain.SeatOK, Message: message}
}

func seatError(seatID string, err error) domain.SeatResult {
	return domain.SeatResult{SeatID: seatID, Outcome: domain.SeatError, Message: describeError(err)}
}
