package ncr

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

const columns = "id, ncr_id, document_id, linked_inspection_id, site, supplier, part_number, description, severity, status, disposition, opened_date, closed_date, assigned_to, created_at, updated_at"

// Repository handles non-conformance report persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// UpsertResult reports how the write resolved
type UpsertResult struct {
	NCR   *models.NCR
	IsNew bool
}

// Upsert writes an NCR fact keyed on its business key, last write wins.
func (r *Repository) Upsert(ctx context.Context, ncr *models.NCR) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ncr.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Upsert",
		"ncr_id":      ncr.NCRID,
		"document_id": ncr.DocumentID,
	})

	now := time.Now().UTC()
	if ncr.ID == "" {
		ncr.ID = uuid.New().String()
	}

	ex := database.FromContext(ctx, r.db)

	query := `
		WITH upsert AS (
			INSERT INTO ncrs (
				id, ncr_id, document_id, linked_inspection_id, site, supplier,
				part_number, description, severity, status, disposition,
				opened_date, closed_date, assigned_to, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (ncr_id)
			DO UPDATE SET
				document_id = EXCLUDED.document_id,
				linked_inspection_id = EXCLUDED.linked_inspection_id,
				site = EXCLUDED.site,
				supplier = EXCLUDED.supplier,
				part_number = EXCLUDED.part_number,
				description = EXCLUDED.description,
				severity = EXCLUDED.severity,
				status = EXCLUDED.status,
				disposition = EXCLUDED.disposition,
				opened_date = EXCLUDED.opened_date,
				closed_date = EXCLUDED.closed_date,
				assigned_to = EXCLUDED.assigned_to,
				updated_at = EXCLUDED.updated_at
			RETURNING ` + columns + `, (xmax = 0) AS inserted
		)
		SELECT * FROM upsert
	`

	var result struct {
		models.NCR
		Inserted bool `db:"inserted"`
	}

	err := ex.GetContext(ctx, &result, query,
		ncr.ID, ncr.NCRID, ncr.DocumentID, ncr.LinkedInspectionID, ncr.Site,
		ncr.Supplier, ncr.PartNumber, ncr.Description, ncr.Severity, ncr.Status,
		ncr.Disposition, ncr.OpenedDate, ncr.ClosedDate, ncr.AssignedTo, now, now,
	)
	if err != nil {
		log.WithError(err).Error("Failed to upsert ncr")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert ncr")
	}

	if result.Inserted {
		log.WithField("id", result.ID).Info("Created ncr")
	} else {
		log.WithField("id", result.ID).Debug("Updated ncr")
	}

	return &UpsertResult{NCR: &result.NCR, IsNew: result.Inserted}, nil
}

// GetByNCRID retrieves an NCR by business key. Returns nil when unknown.
func (r *Repository) GetByNCRID(ctx context.Context, ncrID string) (*models.NCR, error) {
	ctx, span := tracing.StartSpan(ctx, "ncr.Repository.GetByNCRID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("ncrs")
	sb.Where(sb.Equal("ncr_id", ncrID))
	sb.Limit(1)

	query, args := sb.Build()
	var ncr models.NCR
	if err := r.db.GetContext(ctx, &ncr, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("ncr_id", ncrID).Error("Failed to get ncr")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get ncr")
	}
	return &ncr, nil
}

// severityMatches resolves a filter to the set of severities it allows.
// An exact severity wins over a minimum; nil means no severity clause.
func severityMatches(filter models.NCRFilter) pq.StringArray {
	if filter.Severity != nil {
		return pq.StringArray{string(*filter.Severity)}
	}
	if filter.MinSeverity == nil {
		return nil
	}
	all := []models.NCRSeverity{
		models.NCRSeverityLow, models.NCRSeverityMedium,
		models.NCRSeverityHigh, models.NCRSeverityCritical,
	}
	var matched pq.StringArray
	for _, s := range all {
		if s.AtLeast(*filter.MinSeverity) {
			matched = append(matched, string(s))
		}
	}
	return matched
}

// ListOverdue returns open or in-review NCRs older than the filter's
// threshold, most overdue first. days_open counts against now; only open
// reports appear here so the count is never frozen.
func (r *Repository) ListOverdue(ctx context.Context, filter models.NCRFilter, limit int) ([]models.NCRWithDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "ncr.Repository.ListOverdue")
	defer span.End()

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	minDays := 30
	if filter.OlderThan != nil {
		minDays = *filter.OlderThan
	}

	query := `
		SELECT
			n.id, n.ncr_id, n.document_id, n.linked_inspection_id, n.site, n.supplier,
			n.part_number, n.description, n.severity, n.status, n.disposition,
			n.opened_date, n.closed_date, n.assigned_to, n.created_at, n.updated_at,
			EXTRACT(DAY FROM NOW() - n.opened_date)::int AS days_open,
			d.id AS "document.document_id", d.filename AS "document.filename",
			d.file_path AS "document.file_path", d.source AS "document.source",
			d.received_at AS "document.received_at"
		FROM ncrs n
		LEFT JOIN documents d ON n.document_id = d.id
		WHERE n.status IN ('OPEN', 'IN_REVIEW')
		  AND NOW() - n.opened_date >= make_interval(days => $1)
		  AND ($2::text[] IS NULL OR n.severity = ANY($2))
		  AND ($3::text IS NULL OR n.site = $3)
		ORDER BY days_open DESC,
			CASE n.severity
				WHEN 'CRITICAL' THEN 0
				WHEN 'HIGH' THEN 1
				WHEN 'MEDIUM' THEN 2
				ELSE 3
			END
		LIMIT $4
	`

	var ncrs []models.NCRWithDocument
	if err := r.db.SelectContext(ctx, &ncrs, query, minDays, severityMatches(filter), filter.Site, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("min_days", minDays).Error("Failed to list overdue ncrs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list overdue ncrs")
	}
	return ncrs, nil
}

// SeverityBreakdown counts open and in-review NCRs per severity.
func (r *Repository) SeverityBreakdown(ctx context.Context) (map[models.NCRSeverity]int, error) {
	ctx, span := tracing.StartSpan(ctx, "ncr.Repository.SeverityBreakdown")
	defer span.End()

	query := `
		SELECT n.severity, COUNT(*) AS count
		FROM ncrs n
		WHERE n.status IN ('OPEN', 'IN_REVIEW')
		GROUP BY n.severity
	`

	var rows []struct {
		Severity models.NCRSeverity `db:"severity"`
		Count    int                `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to compute severity breakdown")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to compute severity breakdown")
	}

	breakdown := make(map[models.NCRSeverity]int, len(rows))
	for _, row := range rows {
		breakdown[row.Severity] = row.Count
	}
	return breakdown, nil
}

// Evidence assembles the full trace for one NCR. The inspection link is a
// business key that may reference an inspection that never arrived; the
// chain reports explicit nulls rather than failing.
func (r *Repository) Evidence(ctx context.Context, ncrID string) (*models.EvidenceChain, error) {
	ctx, span := tracing.StartSpan(ctx, "ncr.Repository.Evidence")
	defer span.End()

	query := `
		SELECT
			n.id AS "ncr.id", n.ncr_id AS "ncr.ncr_id", n.document_id AS "ncr.document_id",
			n.linked_inspection_id AS "ncr.linked_inspection_id", n.site AS "ncr.site",
			n.supplier AS "ncr.supplier", n.part_number AS "ncr.part_number",
			n.description AS "ncr.description", n.severity AS "ncr.severity",
			n.status AS "ncr.status", n.disposition AS "ncr.disposition",
			n.opened_date AS "ncr.opened_date", n.closed_date AS "ncr.closed_date",
			n.assigned_to AS "ncr.assigned_to", n.created_at AS "ncr.created_at",
			n.updated_at AS "ncr.updated_at",
			dn.id AS "ncr_document.document_id", dn.filename AS "ncr_document.filename",
			dn.file_path AS "ncr_document.file_path", dn.source AS "ncr_document.source",
			dn.received_at AS "ncr_document.received_at"
		FROM ncrs n
		LEFT JOIN documents dn ON n.document_id = dn.id
		WHERE n.ncr_id = $1
	`

	var row struct {
		NCR         models.NCR         `db:"ncr"`
		NCRDocument models.DocumentRef `db:"ncr_document"`
	}
	if err := r.db.GetContext(ctx, &row, query, ncrID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "ncr %s not found", ncrID)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("ncr_id", ncrID).Error("Failed to get ncr evidence")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get ncr evidence")
	}

	chain := &models.EvidenceChain{
		NCR:         row.NCR,
		DaysOpen:    row.NCR.DaysOpen(time.Now().UTC()),
		NCRDocument: row.NCRDocument,
	}

	if row.NCR.LinkedInspectionID == nil || *row.NCR.LinkedInspectionID == "" {
		return chain, nil
	}

	inspectionQuery := `
		SELECT
			i.id AS "inspection.id", i.inspection_id AS "inspection.inspection_id",
			i.document_id AS "inspection.document_id", i.site AS "inspection.site",
			i.production_line AS "inspection.production_line", i.supplier AS "inspection.supplier",
			i.part_number AS "inspection.part_number", i.part_description AS "inspection.part_description",
			i.inspection_date AS "inspection.inspection_date", i.inspector AS "inspection.inspector",
			i.result AS "inspection.result", i.measurement_value AS "inspection.measurement_value",
			i.measurement_unit AS "inspection.measurement_unit", i.spec_min AS "inspection.spec_min",
			i.spec_max AS "inspection.spec_max", i.notes AS "inspection.notes",
			i.created_at AS "inspection.created_at", i.updated_at AS "inspection.updated_at",
			di.id AS "document.document_id", di.filename AS "document.filename",
			di.file_path AS "document.file_path", di.source AS "document.source",
			di.received_at AS "document.received_at"
		FROM inspections i
		LEFT JOIN documents di ON i.document_id = di.id
		WHERE i.inspection_id = $1
	`

	var inspectionRow struct {
		Inspection models.Inspection  `db:"inspection"`
		Document   models.DocumentRef `db:"document"`
	}
	err := r.db.GetContext(ctx, &inspectionRow, inspectionQuery, *row.NCR.LinkedInspectionID)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			// the linked inspection has not arrived; the chain stays partial
			return chain, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("ncr_id", ncrID).Error("Failed to resolve linked inspection")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve linked inspection")
	}

	chain.Inspection = &inspectionRow.Inspection
	chain.InspectionDocument = &inspectionRow.Document
	return chain, nil
}
