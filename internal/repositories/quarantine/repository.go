package quarantine

import (
	"context"
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

const columns = "id, document_id, stage, row_number, raw_data, failure_code, failure_detail, created_at"

// Repository handles quarantined row persistence. Rows are kept verbatim so
// operators can inspect and manually resubmit them.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// InsertBatch persists a set of quarantined rows for one document. Joins the
// caller's transaction so facts and quarantine rows commit together.
func (r *Repository) InsertBatch(ctx context.Context, rows []models.QuarantineRow) error {
	ctx, span := tracing.StartSpan(ctx, "quarantine.Repository.InsertBatch")
	defer span.End()

	if len(rows) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ex := database.FromContext(ctx, r.db)

	const batchSize = 500
	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
		sb.InsertInto("quarantine_rows")
		sb.Cols("id", "document_id", "stage", "row_number", "raw_data", "failure_code", "failure_detail", "created_at")
		for _, row := range rows[i:end] {
			id := row.ID
			if id == "" {
				id = uuid.New().String()
			}
			sb.Values(id, row.DocumentID, row.Stage, row.RowNumber, row.RawData, row.FailureCode, row.FailureDetail, now)
		}

		query, args := sb.Build()
		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"document_id": rows[0].DocumentID,
				"rows":        len(rows),
			}).Error("Failed to insert quarantine rows")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert quarantine rows")
		}
	}

	return nil
}

// ListByDocument returns all quarantined rows for one document.
func (r *Repository) ListByDocument(ctx context.Context, documentID string) ([]models.QuarantineRow, error) {
	ctx, span := tracing.StartSpan(ctx, "quarantine.Repository.ListByDocument")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("quarantine_rows")
	sb.Where(sb.Equal("document_id", documentID))
	sb.OrderBy("row_number ASC")

	query, args := sb.Build()
	var rows []models.QuarantineRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("document_id", documentID).Error("Failed to list quarantine rows")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list quarantine rows")
	}
	return rows, nil
}

// List returns recent quarantined rows with their document filename for the
// ops view.
func (r *Repository) List(ctx context.Context, limit int) ([]models.QuarantineRowWithDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "quarantine.Repository.List")
	defer span.End()

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("q.id", "q.document_id", "q.stage", "q.row_number", "q.raw_data",
		"q.failure_code", "q.failure_detail", "q.created_at", "d.filename")
	sb.From("quarantine_rows q")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "documents d", "q.document_id = d.id")
	sb.OrderBy("q.created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []models.QuarantineRowWithDocument
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list quarantine rows")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list quarantine rows")
	}
	return rows, nil
}

// Summary aggregates quarantine counts per failure code.
func (r *Repository) Summary(ctx context.Context) ([]models.QuarantineSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "quarantine.Repository.Summary")
	defer span.End()

	query := `
		SELECT failure_code, COUNT(*) AS count
		FROM quarantine_rows
		GROUP BY failure_code
		ORDER BY count DESC
	`

	var summary []models.QuarantineSummary
	if err := r.db.SelectContext(ctx, &summary, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to summarize quarantine")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to summarize quarantine")
	}
	return summary, nil
}
