package dto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
)

// ReserveSeatsRequest accepts either a bare JSON array of seat ids or an
// object with a seat_ids field
type ReserveSeatsRequest struct {
	SeatIDs []string `json:"seat_ids"`
}

// UnmarshalJSON implements json.Unmarshaler
func (r *ReserveSeatsRequest) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &r.SeatIDs)
	}

	var obj struct {
		SeatIDs []string `json:"seat_ids"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return fmt.Errorf("seat list must be an array or {\"seat_ids\": [...]}: %w", err)
	}
	r.SeatIDs = obj.SeatIDs
	return nil
}

// ReserveSeatsResponse carries one outcome per requested seat, in request order
type ReserveSeatsResponse struct {
	SessionID       string              `json:"session_id"`
	ExternalEventID string              `json:"external_event_id"`
	Results         []domain.SeatResult `json:"results"`
	Locked          int                 `json:"locked"`
	Session         *SessionResponse    `json:"session,omitempty"`
}

// ReleaseSeatsResponse represents response after releasing a session's seats
type ReleaseSeatsResponse struct {
	SessionID       string `json:"session_id"`
	ExternalEventID string `json:"external_event_id"`
	Released        int    `json:"released"`
}
