package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SeatOutcome is the per-seat result of a reservation request
type SeatOutcome string

const (
	SeatOK       SeatOutcome = "OK"
	SeatConflict SeatOutcome = "CONFLICT"
	SeatInvalid  SeatOutcome = "INVALID"
	SeatError    SeatOutcome = "ERROR"
	SeatUnknown  SeatOutcome = "UNKNOWN"
)

var seatIDPattern = regexp.MustCompile(`(?i)^r(\d+)c(\d+)$`)

// SeatPosition is a seat addressed by row and column, both 1-based
type SeatPosition struct {
	Row    int `json:"fila"`
	Column int `json:"columna"`
}

// ID renders the canonical seat id, e.g. "r3c12"
func (p SeatPosition) ID() string {
	return fmt.Sprintf("r%dc%d", p.Row, p.Column)
}

// ParseSeatID parses "r<row>c<col>" case-insensitively
func ParseSeatID(id string) (SeatPosition, error) {
	m := seatIDPattern.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return SeatPosition{}, fmt.Errorf("%w: %q", ErrInvalidSeatID, id)
	}
	row, err := strconv.Atoi(m[1])
	if err != nil || row <= 0 {
		return SeatPosition{}, fmt.Errorf("%w: %q", ErrInvalidSeatID, id)
	}
	col, err := strconv.Atoi(m[2])
	if err != nil || col <= 0 {
		return SeatPosition{}, fmt.Errorf("%w: %q", ErrInvalidSeatID, id)
	}
	return SeatPosition{Row: row, Column: col}, nil
}

// CanonicalSeatID normalizes a seat id for use as a lock key. Ids that do
// not parse are returned trimmed and lowercased.
func CanonicalSeatID(id string) string {
	if p, err := ParseSeatID(id); err == nil {
		return p.ID()
	}
	return strings.ToLower(strings.TrimSpace(id))
}

// SeatResult is the outcome for one requested seat
type SeatResult struct {
	SeatID  string      `json:"seat_id"`
	Outcome SeatOutcome `json:"outcome"`
	Message string      `json:"message,omitempty"`
}

// CountOutcome returns how many results carry the given outcome
func CountOutcome(results []SeatResult, outcome SeatOutcome) int {
	n := 0
	for _, r := range results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}
