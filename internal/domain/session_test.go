package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_RecordReservation_KeepsOKSeats(t *testing.T) {
	s := NewSession("u1", "7", testNow)
	s.RecordReservation([]string{"r1c1", "r1c2"}, []SeatResult{
		{SeatID: "R1C1", Outcome: SeatOK},
		{SeatID: "r1c2", Outcome: SeatConflict},
	}, testNow)

	assert.Equal(t, []string{"r1c1"}, s.SelectedSeats)
	assert.True(t, s.HadAuthorityLocks)
	assert.Equal(t, StepSeatsLocked, s.Step)
}

func TestSession_RecordReservation_FallsBackToRequested(t *testing.T) {
	s := NewSession("u1", "7", testNow)
	s.RecordReservation([]string{"r2c1", "r2c2"}, []SeatResult{
		{SeatID: "r2c1", Outcome: SeatError},
		{SeatID: "r2c2", Outcome: SeatUnknown},
	}, testNow)

	assert.Equal(t, []string{"r2c1", "r2c2"}, s.SelectedSeats)
	assert.False(t, s.HadAuthorityLocks)
}
