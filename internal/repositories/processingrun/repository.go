package processingrun

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

const columns = "id, document_id, stage, status, failure_code, error_detail, rows_attempted, rows_succeeded, rows_failed, started_at, finished_at"

// Repository handles the processing run audit log. Runs are append-only;
// a retry appends a new run rather than editing the failed one.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Append records one stage execution. The run's FinishedAt and counters are
// set by the caller; this method only assigns identity.
func (r *Repository) Append(ctx context.Context, run *models.ProcessingRun) (*models.ProcessingRun, error) {
	ctx, span := tracing.StartSpan(ctx, "processingrun.Repository.Append")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	ex := database.FromContext(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("processing_runs")
	sb.Cols("id", "document_id", "stage", "status", "failure_code", "error_detail", "rows_attempted", "rows_succeeded", "rows_failed", "started_at", "finished_at")
	sb.Values(run.ID, run.DocumentID, run.Stage, run.Status, run.FailureCode, run.ErrorDetail, run.RowsAttempted, run.RowsSucceeded, run.RowsFailed, run.StartedAt, run.FinishedAt)

	query, args := sb.Build()
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"document_id": run.DocumentID,
			"stage":       run.Stage,
			"status":      run.Status,
		}).Error("Failed to append processing run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to append processing run")
	}

	return run, nil
}

// ListByDocument returns every run for a document in execution order.
func (r *Repository) ListByDocument(ctx context.Context, documentID string) ([]models.ProcessingRun, error) {
	ctx, span := tracing.StartSpan(ctx, "processingrun.Repository.ListByDocument")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("processing_runs")
	sb.Where(sb.Equal("document_id", documentID))
	sb.OrderBy("started_at ASC")

	query, args := sb.Build()
	var runs []models.ProcessingRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("document_id", documentID).Error("Failed to list processing runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list processing runs")
	}
	return runs, nil
}

// LatestTerminal returns the most recent terminal run for a document, or nil
// when the document has never finished a stage. The pipeline uses this to
// short-circuit re-submissions of already-processed documents.
func (r *Repository) LatestTerminal(ctx context.Context, documentID string) (*models.ProcessingRun, error) {
	ctx, span := tracing.StartSpan(ctx, "processingrun.Repository.LatestTerminal")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("processing_runs")
	sb.Where(
		sb.Equal("document_id", documentID),
		sb.In("status", string(models.RunStatusSuccess), string(models.RunStatusFailed), string(models.RunStatusPartial)),
	)
	sb.OrderBy("started_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var run models.ProcessingRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("document_id", documentID).Error("Failed to get latest terminal run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get latest terminal run")
	}
	return &run, nil
}

// Filter narrows the ops run listing
type Filter struct {
	Status *models.RunStatus
	Stage  *models.Stage
	From   *time.Time
	To     *time.Time
	Limit  int
}

// List returns recent runs joined with their document filename for the
// ingestion health view.
func (r *Repository) List(ctx context.Context, filter Filter) ([]models.IngestionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "processingrun.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("pr.id", "pr.document_id", "pr.stage", "pr.status", "pr.failure_code", "pr.error_detail",
		"pr.rows_attempted", "pr.rows_succeeded", "pr.rows_failed", "pr.started_at", "pr.finished_at",
		"d.filename")
	sb.From("processing_runs pr")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "documents d", "pr.document_id = d.id")

	where := []string{}
	if filter.Status != nil {
		where = append(where, sb.Equal("pr.status", *filter.Status))
	}
	if filter.Stage != nil {
		where = append(where, sb.Equal("pr.stage", *filter.Stage))
	}
	if filter.From != nil {
		where = append(where, sb.GreaterEqualThan("pr.started_at", *filter.From))
	}
	if filter.To != nil {
		where = append(where, sb.LessEqualThan("pr.started_at", *filter.To))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}

	sb.OrderBy("pr.started_at DESC")
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	sb.Limit(limit)

	query, args := sb.Build()
	var runs []models.IngestionRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list ingestion runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list ingestion runs")
	}
	return runs, nil
}
