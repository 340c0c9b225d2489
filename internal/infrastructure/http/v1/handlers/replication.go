package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/replication"
)

// ReplicationHandler exposes mirror repair and diagnostics.
type ReplicationHandler struct {
	*BaseHandler
	mirror *replication.Mirror
}

// NewReplicationHandler creates a new replication handler.
func NewReplicationHandler(base *BaseHandler, mirror *replication.Mirror) *ReplicationHandler {
	return &ReplicationHandler{BaseHandler: base, mirror: mirror}
}

// Repair handles POST /replication/repair for the caller's scope.
func (h *ReplicationHandler) Repair(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	report, err := h.mirror.Repair(c.Request.Context(), scope)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// DiagnosticsResponse lists recent replication failures of the caller's scope.
type DiagnosticsResponse struct {
	Pending  int                 `json:"pending"`
	Total    uint64              `json:"total"`
	Capacity int                 `json:"capacity"`
	Entries  []replication.Entry `json:"entries"`
}

// Diagnostics handles GET /replication/diagnostics
func (h *ReplicationHandler) Diagnostics(c *gin.Context) {
	scope, ok := h.Scope(c)
	if !ok {
		return
	}

	d := h.mirror.Diagnostics()
	h.OK(c, DiagnosticsResponse{
		Pending:  h.mirror.Pending(),
		Total:    d.TotalFor(scope.Key()),
		Capacity: d.Capacity(),
		Entries:  d.EntriesFor(scope.Key()),
	})
}
