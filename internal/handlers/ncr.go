package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/normalize"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// NCRReader is the non-conformance query surface the handler needs
type NCRReader interface {
	ListOverdue(ctx context.Context, filter models.NCRFilter, limit int) ([]models.NCRWithDocument, error)
	SeverityBreakdown(ctx context.Context) (map[models.NCRSeverity]int, error)
	Evidence(ctx context.Context, ncrID string) (*models.EvidenceChain, error)
}

// NCRHandler serves the non-conformance endpoints
type NCRHandler struct {
	ncrs   NCRReader
	logger ectologger.Logger
}

// NewNCRHandler creates a new NCR handler
func NewNCRHandler(ncrs NCRReader, logger ectologger.Logger) *NCRHandler {
	return &NCRHandler{ncrs: ncrs, logger: logger}
}

// Register registers NCR routes
func (h *NCRHandler) Register(api *echo.Group) {
	api.GET("/ncrs/overdue", h.ListOverdue)
	api.GET("/ncrs/severity", h.SeverityBreakdown)
	api.GET("/ncrs/:ncr_id/evidence", h.Evidence)
}

// ListOverdue returns open NCRs older than the threshold, most overdue first
func (h *NCRHandler) ListOverdue(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "NCRHandler.ListOverdue")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	minDays, err := ParseIntParam(c, "min_days", 30)
	if err != nil {
		return err
	}
	if minDays < 0 {
		return BadRequest("min_days must not be negative")
	}
	limit, err := ParseIntParam(c, "limit", 100)
	if err != nil {
		return err
	}

	filter := models.NCRFilter{
		OlderThan: &minDays,
		Site:      OptionalParam(c, "site"),
	}
	if raw := c.QueryParam("severity"); raw != "" {
		parsed, err := normalize.NCRSeverity(raw)
		if err != nil {
			return BadRequest("severity must be one of: LOW, MEDIUM, HIGH, CRITICAL")
		}
		filter.Severity = &parsed
	}
	if raw := c.QueryParam("min_severity"); raw != "" {
		parsed, err := normalize.NCRSeverity(raw)
		if err != nil {
			return BadRequest("min_severity must be one of: LOW, MEDIUM, HIGH, CRITICAL")
		}
		filter.MinSeverity = &parsed
	}

	ncrs, err := h.ncrs.ListOverdue(ctx, filter, limit)
	if err != nil {
		return err
	}
	return SuccessResponse(c, ncrs)
}

// SeverityBreakdown returns open NCR counts per severity
func (h *NCRHandler) SeverityBreakdown(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "NCRHandler.SeverityBreakdown")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	breakdown, err := h.ncrs.SeverityBreakdown(ctx)
	if err != nil {
		return err
	}
	return SuccessResponse(c, breakdown)
}

// Evidence returns the full trace for one NCR: the report, its source
// document, and the linked inspection with its document when resolved.
func (h *NCRHandler) Evidence(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "NCRHandler.Evidence")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	ncrID := c.Param("ncr_id")
	if ncrID == "" {
		return BadRequest("missing ncr_id")
	}

	chain, err := h.ncrs.Evidence(ctx, ncrID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, chain)
}
