package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/internal/repository"
	"github.com/prohmpiriya/ticket-broker/pkg/logger"
)

// DefaultSeatLockTTL is how long a seat lock lives after each acquire
const DefaultSeatLockTTL = 5 * time.Minute

// SeatLockKey is the LockStore key holding the owner of one seat
func SeatLockKey(eventID, seatID string) string {
	return fmt.Sprintf("lock:%s:%s", eventID, domain.CanonicalSeatID(seatID))
}

// SessionIndexKey is the set of seats a session holds for an event
func SessionIndexKey(sessionID, eventID string) string {
	return fmt.Sprintf("session:%s:event:%s", sessionID, eventID)
}

// SeatLockRegistry maps (event, seat) to the session holding it. The lock
// keys are authoritative; the per-session index only speeds up ReleaseAll.
type SeatLockRegistry struct {
	store repository.LockStore
	ttl   time.Duration
	log   *logger.Logger
}

// NewSeatLockRegistry creates a new SeatLockRegistry
func NewSeatLockRegistry(store repository.LockStore, ttl time.Duration) *SeatLockRegistry {
	if ttl <= 0 {
		ttl = DefaultSeatLockTTL
	}
	return &SeatLockRegistry{
		store: store,
		ttl:   ttl,
		log:   logger.Get().With(zap.String("component", "seat-lock-registry")),
	}
}

// TTL returns the lock lifetime
func (r *SeatLockRegistry) TTL() time.Duration {
	return r.ttl
}

// OwnerOf returns the session holding a seat
func (r *SeatLockRegistry) OwnerOf(ctx context.Context, eventID, seatID string) (string, bool, error) {
	return r.store.Get(ctx, SeatLockKey(eventID, seatID))
}

// Acquire locks a seat for sessionID. Re-acquiring an owned seat extends it.
// Returns false without side effects when another session holds the seat.
func (r *SeatLockRegistry) Acquire(ctx context.Context, eventID, sessionID, seatID string) (bool, error) {
	status, err := r.store.AcquireOrExtend(ctx, SeatLockKey(eventID, seatID), sessionID, r.ttl)
	if err != nil {
		return false, err
	}
	if !status.Granted() {
		return false, nil
	}

	seat := domain.CanonicalSeatID(seatID)
	if err := r.store.IndexAdd(ctx, SessionIndexKey(sessionID, eventID), seat, r.ttl); err != nil {
		r.log.Warn("failed to index seat lock",
			zap.String("event_id", eventID),
			zap.String("session_id", sessionID),
			zap.String("seat_id", seat),
			zap.Error(err),
		)
	}
	return true, nil
}

// ReleaseIfOwner frees a seat only when sessionID holds it
func (r *SeatLockRegistry) ReleaseIfOwner(ctx context.Context, eventID, sessionID, seatID string) (bool, error) {
	return r.store.ReleaseIfOwner(ctx, SeatLockKey(eventID, seatID), sessionID)
}

// ReleaseAll frees every seat indexed for the session and drops the index.
// Seats that expired or changed hands are skipped.
func (r *SeatLockRegistry) ReleaseAll(ctx context.Context, eventID, sessionID string) (int, error) {
	indexKey := SessionIndexKey(sessionID, eventID)
	seats, err := r.store.IndexMembers(ctx, indexKey)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, seat := range seats {
		ok, err := r.ReleaseIfOwner(ctx, eventID, sessionID, seat)
		if err != nil {
			r.log.Warn("failed to release seat lock",
				zap.String("event_id", eventID),
				zap.String("session_id", sessionID),
				zap.String("seat_id", seat),
				zap.Error(err),
			)
			continue
		}
		if ok {
			released++
		}
	}

	if err := r.store.IndexDelete(ctx, indexKey); err != nil {
		return released, err
	}
	return released, nil
}
