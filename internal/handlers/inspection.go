package handlers

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// InspectionReader is the inspection query surface the handler needs
type InspectionReader interface {
	ListFailed(ctx context.Context, filter models.InspectionFilter, limit int) ([]models.InspectionWithDocument, error)
	TopFailures(ctx context.Context, groupBy models.FailureGroupBy, from, to *time.Time, limit int) ([]models.FailureSource, error)
	Trends(ctx context.Context, period models.TrendPeriod, from, to *time.Time) ([]models.TrendPoint, error)
}

// MachineFailureReader ranks machines by corrective maintenance
type MachineFailureReader interface {
	TopFailures(ctx context.Context, from, to *time.Time, limit int) ([]models.FailureSource, error)
}

// InspectionHandler serves the quality query endpoints
type InspectionHandler struct {
	inspections InspectionReader
	maintenance MachineFailureReader
	logger      ectologger.Logger
}

// NewInspectionHandler creates a new inspection handler
func NewInspectionHandler(inspections InspectionReader, maintenance MachineFailureReader, logger ectologger.Logger) *InspectionHandler {
	return &InspectionHandler{
		inspections: inspections,
		maintenance: maintenance,
		logger:      logger,
	}
}

// Register registers inspection query routes
func (h *InspectionHandler) Register(api *echo.Group) {
	api.GET("/inspections/failed", h.ListFailed)
	api.GET("/failures/top", h.TopFailures)
	api.GET("/trends/failures", h.Trends)
}

// ListFailed returns failed inspections with their source documents
func (h *InspectionHandler) ListFailed(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "InspectionHandler.ListFailed")
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

	filter := models.InspectionFilter{
		From:     from,
		To:       to,
		Site:     OptionalParam(c, "site"),
		Line:     OptionalParam(c, "line"),
		Supplier: OptionalParam(c, "supplier"),
		Part:     OptionalParam(c, "part"),
	}

	inspections, err := h.inspections.ListFailed(ctx, filter, limit)
	if err != nil {
		return err
	}
	return SuccessResponse(c, inspections)
}

// TopFailures ranks failure sources by the requested dimension. Supplier and
// part rankings come from inspections, machine rankings from corrective
// maintenance events.
func (h *InspectionHandler) TopFailures(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "InspectionHandler.TopFailures")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	groupBy := models.FailureGroupBy(c.QueryParam("group_by"))
	if groupBy == "" {
		groupBy = models.FailureGroupBySupplier
	}

	from, err := ParseTimeParam(c, "from")
	if err != nil {
		return err
	}
	to, err := ParseTimeParam(c, "to")
	if err != nil {
		return err
	}
	limit, err := ParseIntParam(c, "limit", 10)
	if err != nil {
		return err
	}

	var sources []models.FailureSource
	switch groupBy {
	case models.FailureGroupBySupplier, models.FailureGroupByPart:
		sources, err = h.inspections.TopFailures(ctx, groupBy, from, to, limit)
	case models.FailureGroupByMachine:
		sources, err = h.maintenance.TopFailures(ctx, from, to, limit)
	default:
		return BadRequest("group_by must be one of: supplier, machine, part")
	}
	if err != nil {
		return err
	}

	return SuccessResponse(c, map[string]any{
		"group_by": groupBy,
		"sources":  sources,
	})
}

// Trends returns the failure rate time series
func (h *InspectionHandler) Trends(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "InspectionHandler.Trends")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	period := models.TrendPeriod(c.QueryParam("period"))
	if period == "" {
		period = models.TrendPeriodWeek
	}
	if period != models.TrendPeriodWeek && period != models.TrendPeriodMonth {
		return BadRequest("period must be week or month")
	}

	from, err := ParseTimeParam(c, "from")
	if err != nil {
		return err
	}
	to, err := ParseTimeParam(c, "to")
	if err != nil {
		return err
	}

	points, err := h.inspections.Trends(ctx, period, from, to)
	if err != nil {
		return err
	}

	return SuccessResponse(c, map[string]any{
		"period": period,
		"points": points,
	})
}
