package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/pkg/response"
)

// SessionHeader carries the purchase session id
const SessionHeader = "X-Session-Id"

// handleError maps service errors to HTTP responses
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrConfirmationInProgress):
		response.Conflict(c, "CONFIRMATION_IN_PROGRESS", err.Error())
	case errors.Is(err, domain.ErrSessionEventMismatch):
		response.Conflict(c, "SESSION_EVENT_MISMATCH", err.Error())
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		response.Conflict(c, "INVALID_STATUS_TRANSITION", err.Error())
	case domain.IsConflictError(err):
		response.Conflict(c, "CONFLICT", err.Error())
	case errors.Is(err, domain.ErrNoAuthorityLocks):
		response.Error(c, http.StatusUnprocessableEntity, "NO_AUTHORITY_LOCKS", err.Error(), "")
	case errors.Is(err, domain.ErrEmptySeatSelection):
		response.Error(c, http.StatusUnprocessableEntity, "EMPTY_SEAT_SELECTION", err.Error(), "")
	case domain.IsValidationError(err):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), "")
	case domain.IsNotFoundError(err):
		response.NotFound(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
