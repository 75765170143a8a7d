// Package handlers – sync status and manual resolution endpoints.
//
// Permanently failed pending operations must be surfaced to the user, who
// decides between retry (clear the flag so the next drain attempts it
// again) and discard (remove it from the log). These endpoints are that
// surface, plus a manual drain trigger and a status read for dashboards.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lmarques/go-backoffice-sync/internal/connectivity"
	"github.com/lmarques/go-backoffice-sync/internal/store"
	"github.com/lmarques/go-backoffice-sync/internal/syncengine"
	"github.com/lmarques/go-backoffice-sync/internal/utils"
)

// Drainer triggers one drain pass. Satisfied by *syncengine.Engine.
type Drainer interface {
	Drain(ctx context.Context) syncengine.Summary
}

// SyncHandler serves the sync-facing admin endpoints.
type SyncHandler struct {
	oplog  *store.OpLog
	oracle connectivity.Oracle
	engine Drainer
}

// NewSyncHandler builds the handler.
func NewSyncHandler(oplog *store.OpLog, oracle connectivity.Oracle, engine Drainer) *SyncHandler {
	return &SyncHandler{oplog: oplog, oracle: oracle, engine: engine}
}

// Register mounts the sync routes under rg.
func (h *SyncHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/sync/status", h.Status)
	rg.POST("/sync/drain", h.Drain)
	rg.GET("/sync/operations", h.ListOperations)
	rg.POST("/sync/operations/:id/retry", h.RetryOperation)
	rg.DELETE("/sync/operations/:id", h.DeleteOperation)
}

// Status handles GET /sync/status.
func (h *SyncHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	pending, err := h.oplog.CountPending(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "reading pending operations failed")
		return
	}
	failed, err := h.oplog.CountFailed(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "reading failed operations failed")
		return
	}
	ok(c, http.StatusOK, gin.H{
		"online":  h.oracle.IsOnline(),
		"pending": pending,
		"failed":  failed,
	})
}

// Drain handles POST /sync/drain: one synchronous drain pass, returning
// its summary. Draining while offline is a no-op, not an error.
func (h *SyncHandler) Drain(c *gin.Context) {
	ok(c, http.StatusOK, h.engine.Drain(c.Request.Context()))
}

// ListOperations handles GET /sync/operations: every log entry, pending
// and permanently failed alike, in append order.
func (h *SyncHandler) ListOperations(c *gin.Context) {
	ops, err := h.oplog.All(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "reading operation log failed")
		return
	}
	ok(c, http.StatusOK, gin.H{"data": ops})
}

// RetryOperation handles POST /sync/operations/:id/retry — manual
// resolution path "try again": clears the failed flag and retry counter.
func (h *SyncHandler) RetryOperation(c *gin.Context) {
	id := utils.AtoiDefault(c.Param("id"), 0)
	if id <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid operation id")
		return
	}
	err := h.oplog.ResetFailed(c.Request.Context(), uint(id))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "operation not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "resetting operation failed")
		return
	}
	noContent(c)
}

// DeleteOperation handles DELETE /sync/operations/:id — manual resolution
// path "discard the local change".
func (h *SyncHandler) DeleteOperation(c *gin.Context) {
	id := utils.AtoiDefault(c.Param("id"), 0)
	if id <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid operation id")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.oplog.Get(ctx, uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "operation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "reading operation failed")
		return
	}
	if err := h.oplog.Remove(ctx, uint(id)); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "discarding operation failed")
		return
	}
	noContent(c)
}
