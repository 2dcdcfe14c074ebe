package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelgate/internal/db"
)

// DispatchStore is the read side of the dispatch audit trail. db.Dispatches satisfies it.
type DispatchStore interface {
	GetDispatch(ctx context.Context, id string) (*db.DispatchRecord, error)
	ListDispatches(ctx context.Context, filter db.DispatchFilter) ([]*db.DispatchRecord, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
}

type ListDispatchesQuery struct {
	Status    string `form:"status" binding:"omitempty,oneof=accepted sent failed"`
	Transport string `form:"transport"`
	Limit     int    `form:"limit" binding:"omitempty,min=1"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}

type DispatchResponse struct {
	*db.DispatchRecord
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type DispatchHandler struct {
	store DispatchStore
}

func NewDispatchHandler(store DispatchStore) *DispatchHandler {
	return &DispatchHandler{store: store}
}

func toDispatchResponse(r *db.DispatchRecord) DispatchResponse {
	resp := DispatchResponse{DispatchRecord: r}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		resp.CompletedAt = &t
	}
	return resp
}

func (h *DispatchHandler) ListDispatches(c *gin.Context) {
	var query ListDispatchesQuery
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

	records, err := h.store.ListDispatches(c.Request.Context(), db.DispatchFilter{
		Status:    query.Status,
		Transport: query.Transport,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to retrieve dispatches"})
		return
	}

	out := make([]DispatchResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toDispatchResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{
		"dispatches": out,
		"limit":      query.Limit,
		"offset":     query.Offset,
	})
}

func (h *DispatchHandler) GetDispatch(c *gin.Context) {
	r, err := h.store.GetDispatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "dispatch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to get dispatch"})
		return
	}
	c.JSON(http.StatusOK, toDispatchResponse(r))
}

func (h *DispatchHandler) Stats(c *gin.Context) {
	stats := make(map[string]int64, 3)
	for _, status := range []string{db.DispatchAccepted, db.DispatchSent, db.DispatchFailed} {
		n, err := h.store.CountByStatus(c.Request.Context(), status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to count dispatches"})
			return
		}
		stats[status] = n
	}
	c.JSON(http.StatusOK, stats)
}
