package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelgate/internal/db"
)

// AuditStore lists the auth audit trail. db.Audit satisfies it.
type AuditStore interface {
	ListAuditLogs(ctx context.Context, action string, limit int) ([]*db.AuditLog, error)
}

type ListAuditQuery struct {
	Action string `form:"action"`
	Limit  int    `form:"limit" binding:"omitempty,min=1"`
}

type AuditHandler struct {
	store AuditStore
}

func NewAuditHandler(store AuditStore) *AuditHandler {
	return &AuditHandler{store: store}
}

func (h *AuditHandler) ListAuditLogs(c *gin.Context) {
	var query ListAuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
		return
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 100 {
		query.Limit = 100
	}

	logs, err := h.store.ListAuditLogs(c.Request.Context(), query.Action, query.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to retrieve audit log"})
		return
	}
	if logs == nil {
		logs = []*db.AuditLog{}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": logs,
		"limit":   query.Limit,
	})
}
