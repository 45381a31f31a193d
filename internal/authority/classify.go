package authority

import (
	"strings"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
)

// stateRule maps a substring of the authority's seat state to an outcome
type stateRule struct {
	match   string
	outcome domain.SeatOutcome
	exact   bool
}

// stateRules is evaluated in order against the trimmed, upper-cased state.
// Occupied and held-by-another are checked before the blocked rows so
// "OCUPADO/BLOQUEADO" and "YA_BLOQUEADO_OTRO" conflict, and an unblock
// acknowledgement never counts as a hold.
var stateRules = []stateRule{
	{match: "OCUP", outcome: domain.SeatConflict},
	{match: "OCCUP", outcome: domain.SeatConflict},
	{match: "SOLD", outcome: domain.SeatConflict},
	{match: "VENDID", outcome: domain.SeatConflict},
	{match: "NOVAL", outcome: domain.SeatInvalid},
	{match: "INVAL", outcome: domain.SeatInvalid},
	{match: "NO VAL", outcome: domain.SeatInvalid},
	{match: "OTRO", outcome: domain.SeatConflict},
	{match: "OTHER", outcome: domain.SeatConflict},
	{match: "DESBLOQ", outcome: domain.SeatUnknown},
	{match: "UNBLOCK", outcome: domain.SeatUnknown},
	{match: "BLOQ", outcome: domain.SeatOK},
	{match: "BLOCK", outcome: domain.SeatOK},
	{match: "RESERV", outcome: domain.SeatOK},
	{match: "OK", outcome: domain.SeatOK, exact: true},
}

// ClassifySeatState maps an authority seat state to a seat outcome.
// Anything not covered by the table is UNKNOWN.
func ClassifySeatState(state string) domain.SeatOutcome {
	s := strings.ToUpper(strings.TrimSpace(state))
	if s == "" {
		return domain.SeatUnknown
	}
	for _, r := range stateRules {
		if r.exact {
			if s == r.match {
				return r.outcome
			}
			continue
		}
		if strings.Contains(s, r.match) {
			return r.outcome
		}
	}
	return domain.SeatUnknown
}
