package inspection

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

const columns = "id, inspection_id, document_id, site, production_line, supplier, part_number, part_description, inspection_date, inspector, result, measurement_value, measurement_unit, spec_min, spec_max, notes, created_at, updated_at"

// Repository handles inspection fact persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// UpsertResult reports how the write resolved
type UpsertResult struct {
	Inspection *models.Inspection
	IsNew      bool
}

// Upsert writes an inspection fact. The conflict target is the business key;
// a later document carrying the same inspection_id updates the fact in place
// and repoints the evidence reference.
func (r *Repository) Upsert(ctx context.Context, inspection *models.Inspection) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "inspection.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":        "Upsert",
		"inspection_id": inspection.InspectionID,
		"document_id":   inspection.DocumentID,
	})

	now := time.Now().UTC()
	if inspection.ID == "" {
		inspection.ID = uuid.New().String()
	}

	ex := database.FromContext(ctx, r.db)

	query := `
		WITH upsert AS (
			INSERT INTO inspections (
				id, inspection_id, document_id, site, production_line, supplier,
				part_number, part_description, inspection_date, inspector, result,
				measurement_value, measurement_unit, spec_min, spec_max, notes,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			ON CONFLICT (inspection_id)
			DO UPDATE SET
				document_id = EXCLUDED.document_id,
				site = EXCLUDED.site,
				production_line = EXCLUDED.production_line,
				supplier = EXCLUDED.supplier,
				part_number = EXCLUDED.part_number,
				part_description = EXCLUDED.part_description,
				inspection_date = EXCLUDED.inspection_date,
				inspector = EXCLUDED.inspector,
				result = EXCLUDED.result,
				measurement_value = EXCLUDED.measurement_value,
				measurement_unit = EXCLUDED.measurement_unit,
				spec_min = EXCLUDED.spec_min,
				spec_max = EXCLUDED.spec_max,
				notes = EXCLUDED.notes,
				updated_at = EXCLUDED.updated_at
			RETURNING ` + columns + `, (xmax = 0) AS inserted
		)
		SELECT * FROM upsert
	`

	var result struct {
		models.Inspection
		Inserted bool `db:"inserted"`
	}

	err := ex.GetContext(ctx, &result, query,
		inspection.ID, inspection.InspectionID, inspection.DocumentID, inspection.Site,
		inspection.ProductionLine, inspection.Supplier, inspection.PartNumber,
		inspection.PartDescription, inspection.InspectionDate, inspection.Inspector,
		inspection.Result, inspection.MeasurementValue, inspection.MeasurementUnit,
		inspection.SpecMin, inspection.SpecMax, inspection.Notes, now, now,
	)
	if err != nil {
		log.WithError(err).Error("Failed to upsert inspection")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert inspection")
	}

	if result.Inserted {
		log.WithField("id", result.ID).Info("Created inspection")
	} else {
		log.WithField("id", result.ID).Debug("Updated inspection")
	}

	return &UpsertResult{Inspection: &result.Inspection, IsNew: result.Inserted}, nil
}

// GetByInspectionID retrieves an inspection by its business key. Returns nil
// when the key is unknown.
func (r *Repository) GetByInspectionID(ctx context.Context, inspectionID string) (*models.Inspection, error) {
	ctx, span := tracing.StartSpan(ctx, "inspection.Repository.GetByInspectionID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("inspections")
	sb.Where(sb.Equal("inspection_id", inspectionID))
	sb.Limit(1)

	query, args := sb.Build()
	var inspection models.Inspection
	if err := r.db.GetContext(ctx, &inspection, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("inspection_id", inspectionID).Error("Failed to get inspection")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get inspection")
	}
	return &inspection, nil
}

// ListFailed returns failed inspections with their source document reference.
func (r *Repository) ListFailed(ctx context.Context, filter models.InspectionFilter, limit int) ([]models.InspectionWithDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "inspection.Repository.ListFailed")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(
		"i.id", "i.inspection_id", "i.document_id", "i.site", "i.production_line",
		"i.supplier", "i.part_number", "i.part_description", "i.inspection_date",
		"i.inspector", "i.result", "i.measurement_value", "i.measurement_unit",
		"i.spec_min", "i.spec_max", "i.notes", "i.created_at", "i.updated_at",
		`d.id AS "document.document_id"`, `d.filename AS "document.filename"`,
		`d.file_path AS "document.file_path"`, `d.source AS "document.source"`,
		`d.received_at AS "document.received_at"`,
	)
	sb.From("inspections i")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "documents d", "i.document_id = d.id")

	where := []string{sb.Equal("i.result", models.InspectionResultFail)}
	if filter.From != nil {
		where = append(where, sb.GreaterEqualThan("i.inspection_date", *filter.From))
	}
	if filter.To != nil {
		where = append(where, sb.LessEqualThan("i.inspection_date", *filter.To))
	}
	if filter.Site != nil {
		where = append(where, sb.Equal("i.site", *filter.Site))
	}
	if filter.Line != nil {
		where = append(where, sb.Equal("i.production_line", *filter.Line))
	}
	if filter.Supplier != nil {
		where = append(where, sb.Equal("i.supplier", *filter.Supplier))
	}
	if filter.Part != nil {
		where = append(where, sb.Equal("i.part_number", *filter.Part))
	}
	sb.Where(where...)
	sb.OrderBy("i.inspection_date DESC")
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	sb.Limit(limit)

	query, args := sb.Build()
	var inspections []models.InspectionWithDocument
	if err := r.db.SelectContext(ctx, &inspections, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list failed inspections")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list failed inspections")
	}
	return inspections, nil
}

// TopFailures ranks suppliers or parts by failed inspection count with each
// group's share of total failures.
func (r *Repository) TopFailures(ctx context.Context, groupBy models.FailureGroupBy, from, to *time.Time, limit int) ([]models.FailureSource, error) {
	ctx, span := tracing.StartSpan(ctx, "inspection.Repository.TopFailures")
	defer span.End()

	var category string
	switch groupBy {
	case models.FailureGroupBySupplier:
		category = "COALESCE(i.supplier, 'Unknown')"
	case models.FailureGroupByPart:
		category = "COALESCE(i.part_number, 'Unknown')"
	default:
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unsupported group_by: %s", groupBy)
	}

	if limit <= 0 || limit > 100 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT
			%s AS category,
			COUNT(*) AS failure_count,
			ROUND(COUNT(*) * 100.0 / SUM(COUNT(*)) OVER (), 2) AS percentage
		FROM inspections i
		WHERE i.result = 'FAIL'
		  AND ($1::timestamptz IS NULL OR i.inspection_date >= $1)
		  AND ($2::timestamptz IS NULL OR i.inspection_date <= $2)
		GROUP BY %s
		ORDER BY failure_count DESC
		LIMIT %d
	`, category, category, limit)

	var sources []models.FailureSource
	if err := r.db.SelectContext(ctx, &sources, query, from, to); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("group_by", groupBy).Error("Failed to rank failure sources")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to rank failure sources")
	}
	return sources, nil
}

// Trends buckets inspections by week or month and reports the failure rate
// per bucket.
func (r *Repository) Trends(ctx context.Context, period models.TrendPeriod, from, to *time.Time) ([]models.TrendPoint, error) {
	ctx, span := tracing.StartSpan(ctx, "inspection.Repository.Trends")
	defer span.End()

	var trunc string
	switch period {
	case models.TrendPeriodWeek:
		trunc = "date_trunc('week', i.inspection_date)"
	case models.TrendPeriodMonth:
		trunc = "date_trunc('month', i.inspection_date)"
	default:
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unsupported period: %s", period)
	}

	query := fmt.Sprintf(`
		SELECT
			%s AS period_start,
			COUNT(*) FILTER (WHERE i.result = 'FAIL') AS failure_count,
			COUNT(*) AS inspection_count,
			ROUND(
				COUNT(*) FILTER (WHERE i.result = 'FAIL') * 100.0 / NULLIF(COUNT(*), 0),
				2
			) AS failure_rate
		FROM inspections i
		WHERE ($1::timestamptz IS NULL OR i.inspection_date >= $1)
		  AND ($2::timestamptz IS NULL OR i.inspection_date <= $2)
		GROUP BY %s
		ORDER BY period_start DESC
	`, trunc, trunc)

	var points []models.TrendPoint
	if err := r.db.SelectContext(ctx, &points, query, from, to); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("period", period).Error("Failed to compute failure trends")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to compute failure trends")
	}
	return points, nil
}
