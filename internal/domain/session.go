package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStep tracks where a purchase session is in the flow
type SessionStep string

const (
	StepSelecting   SessionStep = "SELECTING"
	StepSeatsLocked SessionStep = "SEATS_LOCKED"
	StepConfirmed   SessionStep = "CONFIRMED"
)

// Session is the shared purchase state of one client session
type Session struct {
	ID                string      `json:"session_id"`
	UserID            string      `json:"user_id,omitempty"`
	ExternalEventID   string      `json:"external_event_id"`
	SelectedSeats     []string    `json:"selected_seats"`
	Step              SessionStep `json:"step"`
	HadAuthorityLocks bool        `json:"had_authority_locks"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// NewSession starts a session for an event
func NewSession(userID, externalEventID string, now time.Time) *Session {
	return &Session{
		ID:              uuid.NewString(),
		UserID:          userID,
		ExternalEventID: externalEventID,
		SelectedSeats:   []string{},
		Step:            StepSelecting,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// RecordReservation stores the outcome of a reservation. Seats that came
// back OK become the selection. When none did, the requested seats are kept
// so confirmation can still leave a PENDING sale.
func (s *Session) RecordReservation(requested []string, results []SeatResult, now time.Time) {
	ok := make([]string, 0, len(results))
	for _, r := range results {
		if r.Outcome == SeatOK {
			ok = append(ok, CanonicalSeatID(r.SeatID))
		}
	}

	if len(ok) > 0 {
		s.SelectedSeats = ok
		s.HadAuthorityLocks = true
	} else {
		s.SelectedSeats = UniqueSeatIDs(requested)
		s.HadAuthorityLocks = false
	}
	s.Step = StepSeatsLocked
	s.UpdatedAt = now
}
