package handlers

import (
	"errors"
	"net/http"
	"strconv"

	apierrors "github.com/PorticoEstate/matrikkel-sub000/internal/errors"
	"github.com/PorticoEstate/matrikkel-sub000/internal/middleware"
	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/PorticoEstate/matrikkel-sub000/internal/progress"
	"github.com/PorticoEstate/matrikkel-sub000/internal/registry"
	"github.com/PorticoEstate/matrikkel-sub000/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// StatusReader reports the progress of import runs.
type StatusReader interface {
	Get(entity models.EntityType) progress.Status
	Snapshot() []progress.Status
}

// ImportHandler handles the import and hierarchy coding endpoints.
type ImportHandler struct {
	imports   services.ImportService
	hierarchy services.HierarchyService
	status    StatusReader
}

// NewImportHandler creates a new ImportHandler instance.
func NewImportHandler(imports services.ImportService, hierarchy services.HierarchyService, status StatusReader) *ImportHandler {
	return &ImportHandler{
		imports:   imports,
		hierarchy: hierarchy,
		status:    status,
	}
}

// StartImportRequest represents the query parameters for starting an import.
type StartImportRequest struct {
	Resume         bool     `form:"resume"`
	Cursor         string   `form:"cursor"`
	Municipalities []string `form:"municipality" binding:"omitempty,dive,numeric,len=4"`
}

// OrganizeRequest represents the query parameters for coding a property.
type OrganizeRequest struct {
	Force bool `form:"force"`
}

// StartImportResponse is returned when an import run has been accepted.
type StartImportResponse struct {
	RunID  string            `json:"run_id"`
	Entity models.EntityType `json:"entity"`
}

// ImportsResponse lists the latest run of every entity type.
type ImportsResponse struct {
	Imports []progress.Status `json:"imports"`
}

// List handles GET /api/v1/imports.
func (h *ImportHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, ImportsResponse{Imports: h.status.Snapshot()})
}

// Get handles GET /api/v1/imports/:entity.
func (h *ImportHandler) Get(c *gin.Context) {
	entity, ok := entityParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.status.Get(entity))
}

// Start handles POST /api/v1/imports/:entity. The run continues in the
// background; its progress is read back through Get.
func (h *ImportHandler) Start(c *gin.Context) {
	entity, ok := entityParam(c)
	if !ok {
		return
	}

	var req StartImportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return
	}

	opts := services.ImportOptions{
		Municipalities: req.Municipalities,
		Resume:         req.Resume,
	}
	if req.Cursor != "" {
		cursor, err := registry.ParseCursor(req.Cursor)
		if err != nil {
			apierrors.BadRequest(c, "Invalid cursor", map[string]interface{}{"cursor": req.Cursor})
			return
		}
		if cursor.Entity() != entity {
			apierrors.BadRequest(c, "Cursor belongs to another entity type", map[string]interface{}{
				"cursor": req.Cursor,
				"entity": entity,
			})
			return
		}
		opts.ResumeCursor = &cursor
	}

	runID, err := h.imports.Start(c.Request.Context(), entity, opts)
	if err != nil {
		if errors.Is(err, services.ErrImportRunning) {
			apierrors.Conflict(c, "An import of this entity type is already running", map[string]interface{}{
				"entity": entity,
			})
			return
		}
		if errors.Is(err, services.ErrUnknownEntityType) {
			apierrors.NotFound(c, "Unknown entity type")
			return
		}
		apierrors.InternalServerError(c, "Failed to start import", err)
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Import accepted", map[string]interface{}{
			"entity": entity,
			"run_id": runID,
			"resume": req.Resume,
		})
	}

	c.Header("Location", "/api/v1/imports/"+entity.String())
	c.JSON(http.StatusAccepted, StartImportResponse{RunID: runID, Entity: entity})
}

// Organize handles POST /api/v1/properties/:id/organize.
func (h *ImportHandler) Organize(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		apierrors.BadRequest(c, "Property id must be a positive integer", map[string]interface{}{
			"id": c.Param("id"),
		})
		return
	}

	var req OrganizeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return
	}

	result, err := h.hierarchy.OrganizeProperty(c.Request.Context(), models.ParcelID(id), req.Force)
	if err != nil {
		if errors.Is(err, services.ErrPropertyNotFound) {
			apierrors.NotFound(c, "Property has not been imported")
			return
		}
		apierrors.InternalServerError(c, "Failed to organize property", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// entityParam parses the :entity path parameter, answering 404 for names
// that are not an importable entity type.
func entityParam(c *gin.Context) (models.EntityType, bool) {
	entity, err := models.ParseEntityType(c.Param("entity"))
	if err != nil {
		apierrors.NotFound(c, "Unknown entity type")
		return "", false
	}
	return entity, true
}
