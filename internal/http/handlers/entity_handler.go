// Package handlers – generic entity endpoints.
//
// EntityHandler exposes one entity repository to UI-facing callers. The
// success shapes are identical whether the repository served the request
// online or from the offline fallback; callers cannot tell the difference,
// which is the whole point.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lmarques/go-backoffice-sync/internal/domain"
	"github.com/lmarques/go-backoffice-sync/internal/remote"
	"github.com/lmarques/go-backoffice-sync/internal/repository"
	"github.com/lmarques/go-backoffice-sync/internal/utils"
)

// EntityAPI is the repository contract the handler calls. Satisfied by
// *repository.Repository[T]; tests substitute fakes.
type EntityAPI[T domain.Entity[T]] interface {
	List(ctx context.Context, page int, term string, isActive *bool) (domain.Page[T], error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, payload map[string]any) (T, error)
	Update(ctx context.Context, id string, payload map[string]any) (T, error)
	Delete(ctx context.Context, id string) error
	BulkDelete(ctx context.Context, ids []string) error
}

// EntityHandler serves the CRUD endpoints for one entity type.
type EntityHandler[T domain.Entity[T]] struct {
	api EntityAPI[T]
}

// NewEntityHandler builds the handler for one entity repository.
func NewEntityHandler[T domain.Entity[T]](api EntityAPI[T]) *EntityHandler[T] {
	return &EntityHandler[T]{api: api}
}

// Register mounts the entity routes under rg at the given collection path,
// e.g. Register(api, "clients").
func (h *EntityHandler[T]) Register(rg *gin.RouterGroup, path string) {
	rg.GET("/"+path, h.List)
	rg.GET("/"+path+"/:id", h.Get)
	rg.POST("/"+path, h.Create)
	rg.PUT("/"+path+"/:id", h.Update)
	rg.DELETE("/"+path+"/:id", h.Delete)
	rg.POST("/"+path+"/bulk-delete", h.BulkDelete)
}

// List handles GET /{entity}?page&term&is_active.
func (h *EntityHandler[T]) List(c *gin.Context) {
	page := utils.AtoiDefault(c.Query("page"), 1)
	term := c.Query("term")
	isActive := parseBoolPtr(c.Query("is_active"))

	resp, err := h.api.List(c.Request.Context(), page, term, isActive)
	if err != nil {
		writeEntityError(c, err)
		return
	}
	ok(c, http.StatusOK, resp)
}

// Get handles GET /{entity}/{id}.
func (h *EntityHandler[T]) Get(c *gin.Context) {
	rec, err := h.api.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEntityError(c, err)
		return
	}
	ok(c, http.StatusOK, rec)
}

// Create handles POST /{entity}. The body is the partial entity payload;
// the response is the stored record (authoritative server copy online, the
// optimistically synthesized local record offline).
func (h *EntityHandler[T]) Create(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	rec, err := h.api.Create(c.Request.Context(), payload)
	if err != nil {
		writeEntityError(c, err)
		return
	}
	ok(c, http.StatusCreated, rec)
}

// Update handles PUT /{entity}/{id}.
func (h *EntityHandler[T]) Update(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	rec, err := h.api.Update(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		writeEntityError(c, err)
		return
	}
	ok(c, http.StatusOK, rec)
}

// Delete handles DELETE /{entity}/{id}.
func (h *EntityHandler[T]) Delete(c *gin.Context) {
	if err := h.api.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeEntityError(c, err)
		return
	}
	noContent(c)
}

// BulkDelete handles POST /{entity}/bulk-delete with body {"ids": [...]}.
func (h *EntityHandler[T]) BulkDelete(c *gin.Context) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || len(body.IDs) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must contain a non-empty ids array")
		return
	}
	if err := h.api.BulkDelete(c.Request.Context(), body.IDs); err != nil {
		writeEntityError(c, err)
		return
	}
	noContent(c)
}

// writeEntityError maps repository errors onto the response taxonomy.
// Connectivity failures never reach here — the repository absorbs them —
// so everything left is a data-integrity failure or an internal error.
func writeEntityError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	var validation *remote.ValidationError
	if errors.As(err, &validation) {
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, validation.Message)
		return
	}
	var conflict *remote.ConflictError
	if errors.As(err, &conflict) {
		fail(c, http.StatusConflict, ErrCodeConflict, conflict.Message)
		return
	}
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "operation failed")
}

// parseBoolPtr parses an optional is_active query parameter; an empty or
// malformed value means "no filter".
func parseBoolPtr(s string) *bool {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &v
}
