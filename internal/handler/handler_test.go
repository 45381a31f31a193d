package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/internal/dto"
	"github.com/prohmpiriya/ticket-broker/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doRequest(t *testing.T, router http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func sampleSale(status domain.SaleStatus) *domain.Sale {
	return &domain.Sale{
		ID:              "11111111-1111-1111-1111-111111111111",
		SessionID:       "S1",
		ExternalEventID: "7",
		SeatIDs:         []string{"r1c1", "r1c2"},
		Quantity:        2,
		TotalCents:      5000,
		Status:          status,
		Attempts:        1,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
}

func TestStartSession(t *testing.T) {
	sessions := &MockSessionService{
		StartFunc: func(ctx context.Context, userID, eventID string) (*domain.Session, error) {
			assert.Equal(t, "u1", userID)
			return domain.NewSession(userID, eventID, time.Now()), nil
		},
	}
	router := setupTestRouter(sessions, &MockSaleService{}, &MockEventService{})

	w, env := doRequest(t, router, http.MethodPost, "/api/v1/sessions", `{"external_event_id":"7","user_id":"u1"}`, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, w.Header().Get(SessionHeader))

	var s dto.SessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, "7", s.ExternalEventID)
	assert.Equal(t, "SELECTING", s.Step)

	w, _ = doRequest(t, router, http.MethodPost, "/api/v1/sessions", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSession_NotFound(t *testing.T) {
	router := setupTestRouter(&MockSessionService{}, &MockSaleService{}, &MockEventService{})
	w, env := doRequest(t, router, http.MethodGet, "/api/v1/sessions/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
}

func TestReserveSeats(t *testing.T) {
	var gotSeats []string
	sessions := &MockSessionService{
		ReserveSeatsFunc: func(ctx context.Context, eventID, sessionID string, seatIDs []string) (*service.ReservationResult, error) {
			assert.Equal(t, "7", eventID)
			assert.Equal(t, "S1", sessionID)
			gotSeats = seatIDs
			s := domain.NewSession("", eventID, time.Now())
			s.SelectedSeats = []string{"r1c1"}
			return &service.ReservationResult{
				Session: s,
				Results: []domain.SeatResult{
					{SeatID: "r1c1", Outcome: domain.SeatOK},
					{SeatID: "r1c2", Outcome: domain.SeatConflict, Message: "held by another session"},
				},
			}, nil
		},
	}
	router := setupTestRouter(sessions, &MockSaleService{}, &MockEventService{})

	tests := []struct {
		name string
		body string
	}{
		{"array body", `["r1c1","r1c2"]`},
		{"object body", `{"seat_ids":["r1c1","r1c2"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := doRequest(t, router, http.MethodPost, "/api/v1/events/7/reservations", tt.body, map[string]string{SessionHeader: "S1"})
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, []string{"r1c1", "r1c2"}, gotSeats)

			var resp dto.ReserveSeatsResponse
			require.NoError(t, json.Unmarshal(env.Data, &resp))
			require.Len(t, resp.Results, 2)
			assert.Equal(t, domain.SeatConflict, resp.Results[1].Outcome)
			assert.Equal(t, 1, resp.Locked)
		})
	}
}

func TestReserveSeats_FallbackSelectionIsNotCountedAsLocked(t *testing.T) {
	sessions := &MockSessionService{
		ReserveSeatsFunc: func(ctx context.Context, eventID, sessionID string, seatIDs []string) (*service.ReservationResult, error) {
			results := []domain.SeatResult{
				{SeatID: "r1c1", Outcome: domain.SeatError, Message: "authority unavailable"},
				{SeatID: "r1c2", Outcome: domain.SeatUnknown, Message: "???"},
			}
			s := domain.NewSession("", eventID, time.Now())
			s.RecordReservation(seatIDs, results, time.Now())
			return &service.ReservationResult{Session: s, Results: results}, nil
		},
	}
	router := setupTestRouter(sessions, &MockSaleService{}, &MockEventService{})

	w, env := doRequest(t, router, http.MethodPost, "/api/v1/events/7/reservations", `["r1c1","r1c2"]`, map[string]string{SessionHeader: "S1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ReserveSeatsResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 0, resp.Locked)
	assert.Equal(t, []string{"r1c1", "r1c2"}, resp.Session.SelectedSeats)
}

func TestReserveSeats_Errors(t *testing.T) {
	sessions := &MockSessionService{
		ReserveSeatsFunc: func(ctx context.Context, eventID, sessionID string, seatIDs []string) (*service.ReservationResult, error) {
			if eventID == "8" {
				return nil, domain.ErrSessionEventMismatch
			}
			return nil, domain.ErrNoSeatsRequested
		},
	}
	router := setupTestRouter(sessions, &MockSaleService{}, &MockEventService{})

	w, _ := doRequest(t, router, http.MethodPost, "/api/v1/events/7/reservations", `["r1c1"]`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing session header")

	w, _ = doRequest(t, router, http.MethodPost, "/api/v1/events/7/reservations", `"r1c1"`, map[string]string{SessionHeader: "S1"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "malformed body")

	w, env := doRequest(t, router, http.MethodPost, "/api/v1/events/8/reservations", `["r1c1"]`, map[string]string{SessionHeader: "S1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SESSION_EVENT_MISMATCH", env.Error.Code)

	w, env = doRequest(t, router, http.MethodPost, "/api/v1/events/7/reservations", `[]`, map[string]string{SessionHeader: "S1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestReleaseSeats(t *testing.T) {
	sessions := &MockSessionService{
		ReleaseSeatsFunc: func(ctx context.Context, eventID, sessionID string) (int, error) {
			return 3, nil
		},
	}
	router := setupTestRouter(sessions, &MockSaleService{}, &MockEventService{})

	w, env := doRequest(t, router, http.MethodDelete, "/api/v1/events/7/reservations", "", map[string]string{SessionHeader: "S1"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.ReleaseSeatsResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 3, resp.Released)
}

func TestConfirmSale_ReturnsSaleWhateverItsStatus(t *testing.T) {
	for _, status := range []domain.SaleStatus{domain.SaleStatusConfirmed, domain.SaleStatusPending, domain.SaleStatusError} {
		t.Run(string(status), func(t *testing.T) {
			sales := &MockSaleService{
				ConfirmSaleFunc: func(ctx context.Context, sessionID string, req *dto.ConfirmSaleRequest) (*domain.Sale, error) {
					assert.Equal(t, "S1", sessionID)
					assert.Equal(t, "ana@example.com", req.BuyerEmail)
					return sampleSale(status), nil
				},
			}
			router := setupTestRouter(&MockSessionService{}, sales, &MockEventService{})

			w, env := doRequest(t, router, http.MethodPost, "/api/v1/sales/confirm", `{"buyer_email":"ana@example.com"}`, map[string]string{SessionHeader: "S1"})
			require.Equal(t, http.StatusOK, w.Code)
			var sale dto.SaleResponse
			require.NoError(t, json.Unmarshal(env.Data, &sale))
			assert.Equal(t, string(status), sale.Status)
			assert.Equal(t, int64(5000), sale.TotalCents)
		})
	}
}

func TestConfirmSale_EmptyBodyAllowed(t *testing.T) {
	sales := &MockSaleService{
		ConfirmSaleFunc: func(ctx context.Context, sessionID string, req *dto.ConfirmSaleRequest) (*domain.Sale, error) {
			assert.Empty(t, req.BuyerEmail)
			return sampleSale(domain.SaleStatusPending), nil
		},
	}
	router := setupTestRouter(&MockSessionService{}, sales, &MockEventService{})

	w, _ := doRequest(t, router, http.MethodPost, "/api/v1/sales/confirm", "", map[string]string{SessionHeader: "S1"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConfirmSale_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrConfirmationInProgress, http.StatusConflict, "CONFIRMATION_IN_PROGRESS"},
		{domain.ErrNoAuthorityLocks, http.StatusUnprocessableEntity, "NO_AUTHORITY_LOCKS"},
		{domain.ErrEmptySeatSelection, http.StatusUnprocessableEntity, "EMPTY_SEAT_SELECTION"},
		{domain.ErrInvalidEmail, http.StatusBadRequest, "VALIDATION_ERROR"},
		{domain.ErrSessionNotFound, http.StatusNotFound, "NOT_FOUND"},
		{errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			sales := &MockSaleService{
				ConfirmSaleFunc: func(context.Context, string, *dto.ConfirmSaleRequest) (*domain.Sale, error) {
					return nil, tt.err
				},
			}
			router := setupTestRouter(&MockSessionService{}, sales, &MockEventService{})

			w, env := doRequest(t, router, http.MethodPost, "/api/v1/sales/confirm", `{}`, map[string]string{SessionHeader: "S1"})
			assert.Equal(t, tt.status, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}

	router := setupTestRouter(&MockSessionService{}, &MockSaleService{}, &MockEventService{})
	w, _ := doRequest(t, router, http.MethodPost, "/api/v1/sales/confirm", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaleQueries(t *testing.T) {
	sales := &MockSaleService{
		GetSaleFunc: func(ctx context.Context, id string) (*domain.Sale, error) {
			return sampleSale(domain.SaleStatusConfirmed), nil
		},
		ListSalesFunc: func(ctx context.Context, q *dto.ListSalesQuery) ([]*domain.Sale, error) {
			assert.Equal(t, "7", q.EventID)
			return []*domain.Sale{sampleSale(domain.SaleStatusPending)}, nil
		},
	}
	router := setupTestRouter(&MockSessionService{}, sales, &MockEventService{})

	w, _ := doRequest(t, router, http.MethodGet, "/api/v1/sales/11111111-1111-1111-1111-111111111111", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := doRequest(t, router, http.MethodGet, "/api/v1/sales?event_id=7", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []dto.SaleResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	w, _ = doRequest(t, router, http.MethodGet, "/api/v1/sales", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	sales := &MockSaleService{
		ListPendingFunc: func(ctx context.Context, limit int) ([]*domain.Sale, error) {
			assert.Equal(t, 10, limit)
			return []*domain.Sale{sampleSale(domain.SaleStatusPending)}, nil
		},
		RunRetrySweepFunc: func(ctx context.Context) (*service.SweepResult, error) {
			return &service.SweepResult{Claimed: 3, Confirmed: 2, Rescheduled: 1}, nil
		},
	}
	events := &MockEventService{
		UpsertEventFunc: func(ctx context.Context, externalID string, req *dto.UpsertEventRequest) (*domain.Event, error) {
			assert.Equal(t, "7", externalID)
			return &domain.Event{ID: "e1", ExternalID: externalID, Name: req.Name, UnitPriceCents: req.UnitPriceCents}, nil
		},
	}
	router := setupTestRouter(&MockSessionService{}, sales, events)

	w, _ := doRequest(t, router, http.MethodGet, "/api/v1/admin/sales/pending?limit=10", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = doRequest(t, router, http.MethodGet, "/api/v1/admin/sales/pending?limit=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := doRequest(t, router, http.MethodPost, "/api/v1/admin/sales/retry-sweep", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sweep dto.SweepResponse
	require.NoError(t, json.Unmarshal(env.Data, &sweep))
	assert.Equal(t, dto.SweepResponse{Claimed: 3, Confirmed: 2, Rescheduled: 1}, sweep)

	w, env = doRequest(t, router, http.MethodPut, "/api/v1/admin/events/7", `{"name":"Gala","unit_price_cents":2500}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ev dto.EventResponse
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, int64(2500), ev.UnitPriceCents)

	w, _ = doRequest(t, router, http.MethodPut, "/api/v1/admin/events/7", `{"unit_price_cents":-5}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
