package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// MovementHandler handles HTTP requests for movements and designation chains.
type MovementHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewMovementHandler creates a new movement handler.
func NewMovementHandler(base *BaseHandler, service *ledger.Service) *MovementHandler {
	return &MovementHandler{BaseHandler: base, service: service}
}

// Create handles POST /movements
func (h *MovementHandler) Create(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	var req dto.CreateMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.CreateMovement(c.Request.Context(), scope, in, h.LedgerOptions(c)...)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, result)
}

// Get handles GET /movements/:id
func (h *MovementHandler) Get(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	movementID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	m, err := h.service.GetMovement(c.Request.Context(), scope, movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, m)
}

// Update handles PATCH /movements/:id
func (h *MovementHandler) Update(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	movementID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.EditMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.EditMovement(c.Request.Context(), scope, movementID, in, h.LedgerOptions(c)...)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Delete handles DELETE /movements/:id
func (h *MovementHandler) Delete(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	movementID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	result, err := h.service.DeleteMovement(c.Request.Context(), scope, movementID, h.LedgerOptions(c)...)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Chain handles GET /designations/:id/chain
func (h *MovementHandler) Chain(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	designationID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	chain, err := h.service.ListChain(c.Request.Context(), scope, designationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, chain)
}

// Rebuild handles POST /designations/:id/rebuild
func (h *MovementHandler) Rebuild(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}
	designationID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	report, err := h.service.RebuildChain(c.Request.Context(), scope, designationID, h.LedgerOptions(c)...)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}
