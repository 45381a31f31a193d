package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/internal/dto"
	"github.com/prohmpiriya/ticket-broker/internal/service"
	"github.com/prohmpiriya/ticket-broker/pkg/response"
	"github.com/prohmpiriya/ticket-broker/pkg/telemetry"
)

// SessionHandler handles purchase session and seat reservation requests
type SessionHandler struct {
	sessions service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// StartSession handles POST /sessions
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "external_event_id is required")
		return
	}

	session, err := h.sessions.Start(c.Request.Context(), req.UserID, req.ExternalEventID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.Header(SessionHeader, session.ID)
	response.Created(c, dto.SessionFromDomain(session))
}

// GetSession handles GET /sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.SessionFromDomain(session))
}

// ReserveSeats handles POST /events/:eventId/reservations
func (h *SessionHandler) ReserveSeats(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.session.reserve_seats")
	defer span.End()

	eventID := c.Param("eventId")
	sessionID := c.GetHeader(SessionHeader)
	if sessionID == "" {
		response.BadRequest(c, SessionHeader+" header is required")
		return
	}
	span.SetAttributes(attribute.String("event_id", eventID), attribute.String("session_id", sessionID))

	var req dto.ReserveSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid seat list", err.Error())
		return
	}

	result, err := h.sessions.ReserveSeats(ctx, eventID, sessionID, req.SeatIDs)
	if err != nil {
		telemetry.End(span, err)
		handleError(c, err)
		return
	}

	response.Success(c, &dto.ReserveSeatsResponse{
		SessionID:       sessionID,
		ExternalEventID: eventID,
		Results:         result.Results,
		Locked:          domain.CountOutcome(result.Results, domain.SeatOK),
		Session:         dto.SessionFromDomain(result.Session),
	})
}

// ReleaseSeats handles DELETE /events/:eventId/reservations
func (h *SessionHandler) ReleaseSeats(c *gin.Context) {
	eventID := c.Param("eventId")
	sessionID := c.GetHeader(SessionHeader)
	if sessionID == "" {
		response.BadRequest(c, SessionHeader+" header is required")
		return
	}

	released, err := h.sessions.ReleaseSeats(c.Request.Context(), eventID, sessionID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, &dto.ReleaseSeatsResponse{
		SessionID:       sessionID,
		ExternalEventID: eventID,
		Released:        released,
	})
}
