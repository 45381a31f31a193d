package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/prohmpiriya/ticket-broker/internal/dto"
	"github.com/prohmpiriya/ticket-broker/internal/service"
	"github.com/prohmpiriya/ticket-broker/pkg/response"
	"github.com/prohmpiriya/ticket-broker/pkg/telemetry"
)

// SaleHandler handles sale confirmation and queries
type SaleHandler struct {
	sales service.SaleService
}

// NewSaleHandler creates a new sale handler
func NewSaleHandler(sales service.SaleService) *SaleHandler {
	return &SaleHandler{sales: sales}
}

// ConfirmSale handles POST /sales/confirm. The answer is always the sale;
// callers branch on its status.
func (h *SaleHandler) ConfirmSale(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.sale.confirm")
	defer span.End()

	sessionID := c.GetHeader(SessionHeader)
	if sessionID == "" {
		response.BadRequest(c, SessionHeader+" header is required")
		return
	}

	var req dto.ConfirmSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", err.Error())
		return
	}

	sale, err := h.sales.ConfirmSale(ctx, sessionID, &req)
	if err != nil {
		telemetry.End(span, err)
		handleError(c, err)
		return
	}
	span.SetAttributes(
		attribute.String("sale_id", sale.ID),
		attribute.String("status", string(sale.Status)),
	)
	response.Success(c, dto.SaleFromDomain(sale))
}

// GetSale handles GET /sales/:id
func (h *SaleHandler) GetSale(c *gin.Context) {
	sale, err := h.sales.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.SaleFromDomain(sale))
}

// ListSales handles GET /sales?event_id=&buyer_email=
func (h *SaleHandler) ListSales(c *gin.Context) {
	var q dto.ListSalesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "invalid query")
		return
	}
	if q.EventID == "" && q.BuyerEmail == "" {
		response.BadRequest(c, "event_id or buyer_email is required")
		return
	}

	sales, err := h.sales.ListSales(c.Request.Context(), &q)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Paged(c, dto.SalesFromDomain(sales), response.PageMeta{
		Page:     q.Page,
		PageSize: q.PageSize,
		Count:    len(sales),
	})
}
