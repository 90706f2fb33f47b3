package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kitemc/verifyd/internal/models"
	"github.com/kitemc/verifyd/internal/registry"
	"github.com/kitemc/verifyd/internal/store"
	"github.com/kitemc/verifyd/pkg/response"
)

// AuditHandler exposes the append-only audit trail to reviewers.
type AuditHandler struct {
	svc *registry.Service
}

func NewAuditHandler(svc *registry.Service) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	var filter store.AuditFilter
	filter.AccountID = c.Query("account_id")
	filter.Actor = c.Query("actor")
	filter.Action = models.AuditAction(c.Query("action"))

	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filter.Since = &t
		}
	}
	if u := c.Query("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filter.Until = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	entries, err := h.svc.ListAudit(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, entries, &response.Meta{Total: len(entries)})
}
