package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SaleStatus is the notification state of a sale
type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "PENDING"
	SaleStatusConfirmed SaleStatus = "CONFIRMED"
	SaleStatusError     SaleStatus = "ERROR"
)

// MaxLastErrorLength bounds the persisted failure description
const MaxLastErrorLength = 500

// IsTerminal reports whether no transition may leave this status
func (s SaleStatus) IsTerminal() bool {
	return s == SaleStatusConfirmed || s == SaleStatusError
}

// Sale is a purchase for one session and event, notified to the authority
type Sale struct {
	ID              string
	SessionID       string
	ExternalEventID string
	SeatIDs         []string
	BuyerEmail      string
	OccupantNames   []string
	Quantity        int
	TotalCents      int64
	Status          SaleStatus
	Attempts        int
	LastError       string
	NextRetryAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewSale builds a PENDING sale for the given seats. Duplicate seat ids are
// collapsed. The total is unitPriceCents times the seat count.
func NewSale(sessionID, externalEventID string, seatIDs []string, unitPriceCents int64, now time.Time) (*Sale, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSessionID
	}
	if strings.TrimSpace(externalEventID) == "" {
		return nil, ErrInvalidEventID
	}
	if unitPriceCents < 0 {
		return nil, ErrInvalidPrice
	}

	seats := UniqueSeatIDs(seatIDs)
	if len(seats) == 0 {
		return nil, ErrEmptySeatSelection
	}

	return &Sale{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		ExternalEventID: externalEventID,
		SeatIDs:         seats,
		OccupantNames:   []string{},
		Quantity:        len(seats),
		TotalCents:      unitPriceCents * int64(len(seats)),
		Status:          SaleStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// ApplyBuyerInfo refreshes the buyer contact and occupant names. Blank
// values leave the current ones in place.
func (s *Sale) ApplyBuyerInfo(email string, occupants []string) {
	if e := strings.TrimSpace(email); e != "" {
		s.BuyerEmail = e
	}
	if len(occupants) > 0 {
		s.OccupantNames = append([]string(nil), occupants...)
	}
}

// BeginAttempt counts a notification attempt
func (s *Sale) BeginAttempt() {
	s.Attempts++
}

// MarkConfirmed moves a PENDING sale to CONFIRMED
func (s *Sale) MarkConfirmed(now time.Time) error {
	if s.Status != SaleStatusPending {
		return ErrInvalidStatusTransition
	}
	s.Status = SaleStatusConfirmed
	s.LastError = ""
	s.NextRetryAt = nil
	s.UpdatedAt = now
	return nil
}

// MarkFailed records a failed attempt. The sale goes to ERROR once
// maxAttempts is reached, otherwise it stays PENDING until now+backoff.
func (s *Sale) MarkFailed(cause string, now time.Time, backoff time.Duration, maxAttempts int) error {
	if s.Status != SaleStatusPending {
		return ErrInvalidStatusTransition
	}
	s.LastError = TruncateError(cause)
	s.UpdatedAt = now
	if s.Attempts >= maxAttempts {
		s.Status = SaleStatusError
		s.NextRetryAt = nil
		return nil
	}
	next := now.Add(backoff)
	s.NextRetryAt = &next
	return nil
}

// IsDue reports whether a PENDING sale's retry deadline has passed
func (s *Sale) IsDue(now time.Time) bool {
	return s.Status == SaleStatusPending && s.NextRetryAt != nil && s.NextRetryAt.Before(now)
}

// TruncateError clips msg to MaxLastErrorLength runes
func TruncateError(msg string) string {
	r := []rune(msg)
	if len(r) <= MaxLastErrorLength {
		return msg
	}
	return string(r[:MaxLastErrorLength])
}

// UniqueSeatIDs canonicalizes ids and drops blanks and repeats, keeping
// first-seen order
func UniqueSeatIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		c := CanonicalSeatID(id)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
