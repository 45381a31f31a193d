package dto

import (
	"time"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
)

// ConfirmSaleRequest represents request to confirm the session's sale
type ConfirmSaleRequest struct {
	BuyerEmail    string   `json:"buyer_email,omitempty"`
	OccupantNames []string `json:"occupant_names,omitempty"`
}

// SaleResponse represents a sale in API response
type SaleResponse struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"session_id"`
	ExternalEventID string     `json:"external_event_id"`
	SeatIDs         []string   `json:"seat_ids"`
	BuyerEmail      string     `json:"buyer_email,omitempty"`
	OccupantNames   []string   `json:"occupant_names"`
	Quantity        int        `json:"quantity"`
	TotalCents      int64      `json:"total_cents"`
	Status          string     `json:"status"`
	Attempts        int        `json:"attempts"`
	LastError       string     `json:"last_error,omitempty"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SaleFromDomain converts a domain Sale to SaleResponse
func SaleFromDomain(s *domain.Sale) *SaleResponse {
	occupants := s.OccupantNames
	if occupants == nil {
		occupants = []string{}
	}
	return &SaleResponse{
		ID:              s.ID,
		SessionID:       s.SessionID,
		ExternalEventID: s.ExternalEventID,
		SeatIDs:         s.SeatIDs,
		BuyerEmail:      s.BuyerEmail,
		OccupantNames:   occupants,
		Quantity:        s.Quantity,
		TotalCents:      s.TotalCents,
		Status:          string(s.Status),
		Attempts:        s.Attempts,
		LastError:       s.LastError,
		NextRetryAt:     s.NextRetryAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// SalesFromDomain converts a list of sales
func SalesFromDomain(sales []*domain.Sale) []*SaleResponse {
	out := make([]*SaleResponse, 0, len(sales))
	for _, s := range sales {
		out = append(out, SaleFromDomain(s))
	}
	return out
}

// ListSalesQuery holds the filters for listing sales
type ListSalesQuery struct {
	EventID    string `form:"event_id"`
	BuyerEmail string `form:"buyer_email"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// Normalize applies paging defaults
func (q *ListSalesQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
}

// Offset returns the row offset for the current page
func (q *ListSalesQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// SweepResponse summarizes one retry sweep
type SweepResponse struct {
	Claimed     int `json:"claimed"`
	Confirmed   int `json:"confirmed"`
	Rescheduled int `json:"rescheduled"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
}
