package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	*BaseHandler
	service *ledger.PaymentService
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(base *BaseHandler, service *ledger.PaymentService) *PaymentHandler {
	return &PaymentHandler{BaseHandler: base, service: service}
}

// Record handles POST /payments
func (h *PaymentHandler) Record(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	var req dto.RecordPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.RecordPayment(c.Request.Context(), scope, in, h.LedgerOptions(c)...)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, result)
}

// Update handles PATCH /payments/:id
func (h *PaymentHandler) Update(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	paymentID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.EditPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.EditPayment(c.Request.Context(), scope, paymentID, in, h.LedgerOptions(c)...)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Delete handles DELETE /payments/:id
func (h *PaymentHandler) Delete(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	paymentID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	status, err := h.service.DeletePayment(c.Request.Context(), scope, paymentID, h.LedgerOptions(c)...)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, status)
}

// ListForMovement handles GET /movements/:id/payments
func (h *PaymentHandler) ListForMovement(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	movementID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	list, err := h.service.ListPayments(c.Request.Context(), scope, movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, list)
}
