package dto

import (
	"time"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
)

// StartSessionRequest represents request to start a purchase session
type StartSessionRequest struct {
	ExternalEventID string `json:"external_event_id" binding:"required"`
	UserID          string `json:"user_id,omitempty"`
}

// SessionResponse represents a purchase session in API response
type SessionResponse struct {
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id,omitempty"`
	ExternalEventID   string    `json:"external_event_id"`
	SelectedSeats     []string  `json:"selected_seats"`
	Step              string    `json:"step"`
	HadAuthorityLocks bool      `json:"had_authority_locks"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SessionFromDomain converts a domain Session to SessionResponse
func SessionFromDomain(s *domain.Session) *SessionResponse {
	seats := s.SelectedSeats
	if seats == nil {
		seats = []string{}
	}
	return &SessionResponse{
		SessionID:         s.ID,
		UserID:            s.UserID,
		ExternalEventID:   s.ExternalEventID,
		SelectedSeats:     seats,
		Step:              string(s.Step),
		HadAuthorityLocks: s.HadAuthorityLocks,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}
