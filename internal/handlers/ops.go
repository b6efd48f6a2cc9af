package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/internal/repositories/processingrun"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/pipeline"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

var validate = validator.New()

// RunLister lists processing runs for the ingestion health view
type RunLister interface {
	List(ctx context.Context, filter processingrun.Filter) ([]models.IngestionRun, error)
}

// QuarantineLister lists and summarizes quarantined rows
type QuarantineLister interface {
	List(ctx context.Context, limit int) ([]models.QuarantineRowWithDocument, error)
	Summary(ctx context.Context) ([]models.QuarantineSummary, error)
}

// BatchIngestor ingests every supported file in a folder
type BatchIngestor interface {
	IngestFolder(ctx context.Context, dir string) ([]*pipeline.Outcome, error)
}

// OpsHandler serves the operational endpoints
type OpsHandler struct {
	runs       RunLister
	quarantine QuarantineLister
	ingestor   BatchIngestor
	logger     ectologger.Logger
}

// NewOpsHandler creates a new ops handler
func NewOpsHandler(runs RunLister, quarantine QuarantineLister, ingestor BatchIngestor, logger ectologger.Logger) *OpsHandler {
	return &OpsHandler{
		runs:       runs,
		quarantine: quarantine,
		ingestor:   ingestor,
		logger:     logger,
	}
}

// Register registers ops routes
func (h *OpsHandler) Register(api *echo.Group) {
	api.GET("/ops/runs", h.ListRuns)
	api.GET("/ops/quarantine", h.ListQuarantine)
	api.GET("/ops/quarantine/summary", h.QuarantineSummary)
	api.POST("/ops/batch", h.Batch)
}

// ListRuns returns recent pipeline runs with their document filenames
func (h *OpsHandler) ListRuns(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "OpsHandler.ListRuns")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	from, err := ParseTimeParam(c, "from")
	if err != nil {
		return err
	}
	to, err := ParseTimeParam(c, "to")
	if err != nil {
		return err
	}
	limit, err := ParseIntParam(c, "limit", 100)
	if err != nil {
		return err
	}

	filter := processingrun.Filter{From: from, To: to, Limit: limit}

	if raw := c.QueryParam("status"); raw != "" {
		status := models.RunStatus(raw)
		switch status {
		case models.RunStatusPending, models.RunStatusRunning, models.RunStatusSuccess,
			models.RunStatusFailed, models.RunStatusPartial:
			filter.Status = &status
		default:
			return BadRequest("invalid status")
		}
	}

	if raw := c.QueryParam("stage"); raw != "" {
		stage, err := models.ParseStage(raw)
		if err != nil {
			return BadRequest("invalid stage")
		}
		filter.Stage = &stage
	}

	runs, err := h.runs.List(ctx, filter)
	if err != nil {
		return err
	}
	return SuccessResponse(c, runs)
}

// ListQuarantine returns recent quarantined rows across all documents
func (h *OpsHandler) ListQuarantine(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "OpsHandler.ListQuarantine")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	limit, err := ParseIntParam(c, "limit", 100)
	if err != nil {
		return err
	}

	rows, err := h.quarantine.List(ctx, limit)
	if err != nil {
		return err
	}
	return SuccessResponse(c, rows)
}

// QuarantineSummary returns quarantine counts per failure code
func (h *OpsHandler) QuarantineSummary(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "OpsHandler.QuarantineSummary")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	summary, err := h.quarantine.Summary(ctx)
	if err != nil {
		return err
	}
	return SuccessResponse(c, summary)
}

// BatchRequest is the request body for folder ingestion
type BatchRequest struct {
	Folder string `json:"folder" validate:"required"`
}

// Batch ingests every supported file in a folder. Per-document failures are
// reported in their outcomes; the batch itself always returns 200.
func (h *OpsHandler) Batch(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "OpsHandler.Batch")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest("folder is required")
	}

	outcomes, err := h.ingestor.IngestFolder(ctx, req.Folder)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).WithField("folder", req.Folder).Error("Failed to ingest folder")
		return err
	}

	counts := map[models.RunStatus]int{}
	for _, outcome := range outcomes {
		counts[outcome.Status]++
	}

	return SuccessResponse(c, map[string]any{
		"documents": len(outcomes),
		"counts":    counts,
		"outcomes":  outcomes,
	})
}
