package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/bdi-platform/wip-backend/internal/http/middleware"
	"github.com/bdi-platform/wip-backend/internal/lock"
	"github.com/bdi-platform/wip-backend/internal/models"
	"github.com/bdi-platform/wip-backend/internal/service"
	"github.com/bdi-platform/wip-backend/internal/tenant"
	"github.com/bdi-platform/wip-backend/internal/wip"
)

// DefaultScope is the logical source used when a request does not name one.
// Every import fully replaces this scope's snapshot.
const DefaultScope = "warehouse-wip"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Importer  *service.ImportService
	Query     *service.QueryService
	Store     service.Store
	DB        Pinger
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.DB.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type ImportRequest struct {
	Scope    string           `json:"scope"`
	FileName string           `json:"fileName" validate:"required"`
	Replace  bool             `json:"replace"`
	Rows     []map[string]any `json:"rows" validate:"required,min=1"`
}

// @Summary Import a WIP snapshot
// @Description Replaces the scope's derived unit set with the uploaded rows
// @Tags import
// @Accept json
// @Produce json
// @Param request body ImportRequest true "parsed spreadsheet rows"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/wip/import [post]
func (h *Handler) Import(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	if req.Scope == "" {
		req.Scope = DefaultScope
	}

	batch, rowErrors, err := h.Importer.Run(c.Request.Context(), service.ImportRequest{
		Scope:    req.Scope,
		FileName: req.FileName,
		Replace:  req.Replace,
		Rows:     req.Rows,
	})
	if err != nil {
		var dup *service.DuplicateFileError
		switch {
		case errors.Is(err, lock.ErrScopeLocked):
			writeError(c, http.StatusConflict, "SCOPE_LOCKED", "Another import for this scope is in flight, retry later", nil)
		case errors.As(err, &dup):
			writeError(c, http.StatusConflict, "DUPLICATE_FILE", "This file has already been imported, set replace to overwrite it", gin.H{
				"existingImportId": dup.ExistingID,
			})
		default:
			h.Logger.Error().Err(err).Str("scope", req.Scope).Msg("import failed")
			writeError(c, http.StatusInternalServerError, "IMPORT_FAILED", "Import failed", nil)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"importId": batch.ID,
		"stats": gin.H{
			"total":     batch.TotalRows,
			"processed": batch.ProcessedRows,
			"failed":    batch.FailedRows,
			"stages":    batch.SummaryStats,
		},
		"errors": rowErrors,
	})
}

func (h *Handler) UnitsList(c *gin.Context) {
	vis, ok := h.visibility(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	result, err := h.Query.List(c.Request.Context(), filtersFromQuery(c), vis, page, limit)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to list units")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list units", nil)
		return
	}
	if result.Units == nil {
		result.Units = []models.WIPUnit{}
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Export units as CSV
// @Description Full filtered unit set as a date-stamped CSV attachment
// @Tags export
// @Produce text/csv
// @Success 200 {string} string
// @Router /api/wip/export [get]
func (h *Handler) Export(c *gin.Context) {
	vis, ok := h.visibility(c)
	if !ok {
		return
	}
	content, count, err := h.Query.ExportCSV(c.Request.Context(), filtersFromQuery(c), vis)
	if err != nil {
		h.Logger.Error().Err(err).Msg("export aborted")
		writeError(c, http.StatusInternalServerError, "EXPORT_ERROR", "Export failed", nil)
		return
	}
	if count == 0 {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "No data to export", nil)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+h.Query.ExportFileName()+`"`)
	c.Data(http.StatusOK, "text/csv", content)
}

func (h *Handler) CFD(c *gin.Context) {
	units, ok := h.fetchForAggregate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"cfd": wip.BuildCFD(units)})
}

func (h *Handler) Aging(c *gin.Context) {
	units, ok := h.fetchForAggregate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"aging": wip.BuildAgingHistogram(units)})
}

func (h *Handler) Weekly(c *gin.Context) {
	units, ok := h.fetchForAggregate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"weekly": wip.BuildWeeklySummary(units)})
}

func (h *Handler) Metrics(c *gin.Context) {
	units, ok := h.fetchForAggregate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, wip.BuildMetrics(units))
}

func (h *Handler) Flow(c *gin.Context) {
	units, ok := h.fetchForAggregate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, wip.BuildFlow(units))
}

func (h *Handler) OutflowBreakdown(c *gin.Context) {
	units, ok := h.fetchForAggregate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, wip.BuildOutflowBreakdown(units, time.Now().UTC()))
}

func (h *Handler) StatusBreakdown(c *gin.Context) {
	units, ok := h.fetchForAggregate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, wip.BuildStatusBreakdown(units, time.Now().UTC()))
}

func (h *Handler) RMABreakdown(c *gin.Context) {
	vis, ok := h.visibility(c)
	if !ok {
		return
	}
	f := filtersFromQuery(c)
	f.RMAOnly = true

	// RMA levels are reported against one snapshot, latest when not pinned.
	batchID, err := h.Query.ResolveBatchID(c.Request.Context(), f.Scope, f.ImportBatchID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to resolve import batch")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to resolve import batch", nil)
		return
	}
	if batchID == "" {
		c.JSON(http.StatusOK, wip.RMABreakdown{
			BySKU:    []wip.SKUCount{},
			BySource: []wip.SourceCount{},
			ByStage:  []wip.StageCount{},
			Recent:   []wip.RMAUnitSample{},
		})
		return
	}
	f.ImportBatchID = batchID

	units, err := h.Query.AllUnits(c.Request.Context(), f, vis)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to fetch rma units")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to fetch RMA units", nil)
		return
	}
	c.JSON(http.StatusOK, wip.BuildRMABreakdown(units))
}

func (h *Handler) SKUs(c *gin.Context) {
	units, ok := h.fetchForLatestBatch(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"skus": wip.DistinctSKUs(units)})
}

func (h *Handler) Sources(c *gin.Context) {
	units, ok := h.fetchForLatestBatch(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": wip.DistinctSources(units)})
}

func (h *Handler) ImportsList(c *gin.Context) {
	scope := c.DefaultQuery("scope", DefaultScope)
	batches, err := h.Store.ListImportBatches(c.Request.Context(), scope, 50)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to list imports")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list imports", nil)
		return
	}
	if batches == nil {
		batches = []models.ImportBatch{}
	}
	c.JSON(http.StatusOK, gin.H{"imports": batches})
}

func (h *Handler) ImportDetails(c *gin.Context) {
	batch, err := h.Store.GetImportBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Import batch not found", nil)
			return
		}
		h.Logger.Error().Err(err).Msg("failed to get import batch")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get import batch", nil)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// visibility compiles the tenant filter for the calling organization. BDI
// members and super-admin callers bypass filtering.
func (h *Handler) visibility(c *gin.Context) (tenant.Visibility, bool) {
	id := middleware.CallerIdentity(c)
	if id.IsInternal() {
		return tenant.AllVisible(), true
	}
	codes, err := h.Store.ListOwnedSKUCodes(c.Request.Context(), id.OrgCode)
	if err != nil {
		h.Logger.Error().Err(err).Str("org", id.OrgCode).Msg("failed to load owned SKUs")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to resolve organization visibility", nil)
		return tenant.Visibility{}, false
	}
	return tenant.NewVisibility(codes), true
}

func (h *Handler) fetchForAggregate(c *gin.Context) ([]models.WIPUnit, bool) {
	vis, ok := h.visibility(c)
	if !ok {
		return nil, false
	}
	units, err := h.Query.AllUnits(c.Request.Context(), filtersFromQuery(c), vis)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to fetch units")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to fetch units", nil)
		return nil, false
	}
	return units, true
}

func (h *Handler) fetchForLatestBatch(c *gin.Context) ([]models.WIPUnit, bool) {
	vis, ok := h.visibility(c)
	if !ok {
		return nil, false
	}
	f := filtersFromQuery(c)
	batchID, err := h.Query.ResolveBatchID(c.Request.Context(), f.Scope, f.ImportBatchID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to resolve import batch")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to resolve import batch", nil)
		return nil, false
	}
	if batchID == "" {
		return nil, true
	}
	f.ImportBatchID = batchID

	units, err := h.Query.AllUnits(c.Request.Context(), f, vis)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to fetch units")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to fetch units", nil)
		return nil, false
	}
	return units, true
}

func filtersFromQuery(c *gin.Context) models.UnitFilters {
	f := models.UnitFilters{
		Scope:         c.DefaultQuery("scope", DefaultScope),
		ImportBatchID: strings.TrimSpace(c.Query("importBatchId")),
		SKU:           strings.TrimSpace(c.Query("sku")),
		Source:        strings.TrimSpace(c.Query("source")),
		Stage:         strings.TrimSpace(c.Query("stage")),
		Search:        strings.TrimSpace(c.Query("search")),
		Destination:   strings.TrimSpace(c.Query("destination")),
		Status:        strings.TrimSpace(strings.ToUpper(c.Query("status"))),
	}
	f.DateFrom = parseDateParam(c.Query("dateFrom"), c.Query("startDate"))
	f.DateTo = parseDateParam(c.Query("dateTo"), c.Query("endDate"))
	return f
}

func parseDateParam(values ...string) *time.Time {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if t, err := time.Parse("2006-01-02", v); err == nil {
			return &t
		}
	}
	return nil
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
