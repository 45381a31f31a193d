package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/ticket-broker/internal/dto"
	"github.com/prohmpiriya/ticket-broker/internal/service"
	"github.com/prohmpiriya/ticket-broker/pkg/response"
)

// AdminHandler handles operational endpoints
type AdminHandler struct {
	sales  service.SaleService
	events service.EventService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sales service.SaleService, events service.EventService) *AdminHandler {
	return &AdminHandler{sales: sales, events: events}
}

// ListPendingSales handles GET /admin/sales/pending?limit=
func (h *AdminHandler) ListPendingSales(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		response.BadRequest(c, "limit must be a number")
		return
	}

	sales, err := h.sales.ListPending(c.Request.Context(), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.SalesFromDomain(sales))
}

// RunRetrySweep handles POST /admin/sales/retry-sweep
func (h *AdminHandler) RunRetrySweep(c *gin.Context) {
	res, err := h.sales.RunRetrySweep(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, &dto.SweepResponse{
		Claimed:     res.Claimed,
		Confirmed:   res.Confirmed,
		Rescheduled: res.Rescheduled,
		Failed:      res.Failed,
		Skipped:     res.Skipped,
	})
}

// UpsertEvent handles PUT /admin/events/:externalId
func (h *AdminHandler) UpsertEvent(c *gin.Context) {
	var req dto.UpsertEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid event", err.Error())
		return
	}

	event, err := h.events.UpsertEvent(c.Request.Context(), c.Param("externalId"), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.EventFromDomain(event))
}
