package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/cashflow"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// CashFlowHandler serves cash-flow reports.
type CashFlowHandler struct {
	*BaseHandler
	service *cashflow.Service
	now     func() time.Time
}

// NewCashFlowHandler creates a new cash-flow handler.
func NewCashFlowHandler(base *BaseHandler, service *cashflow.Service) *CashFlowHandler {
	return &CashFlowHandler{BaseHandler: base, service: service, now: time.Now}
}

// Get handles GET /cashflow?q=2025-01 or GET /cashflow?from=2025-01-01&to=2025-01-31
func (h *CashFlowHandler) Get(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	var req dto.CashFlowRequest
	if !h.BindQuery(c, &req) {
		return
	}
	q, err := req.ToQuery(h.now())
	if err != nil {
		h.Error(c, err)
		return
	}

	report, err := h.service.GetCashFlow(c.Request.Context(), scope, q)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}
