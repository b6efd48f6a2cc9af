package maintenance

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

const columns = "id, event_id, document_id, site, machine_id, machine_name, event_type, description, started_at, finished_at, downtime_hours, technician, created_at, updated_at"

// Repository handles maintenance event persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// UpsertResult reports how the write resolved
type UpsertResult struct {
	Event *models.MaintenanceEvent
	IsNew bool
}

// Upsert writes a maintenance fact keyed on its business key, last write wins.
func (r *Repository) Upsert(ctx context.Context, event *models.MaintenanceEvent) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "maintenance.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Upsert",
		"event_id":    event.EventID,
		"document_id": event.DocumentID,
	})

	now := time.Now().UTC()
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	ex := database.FromContext(ctx, r.db)

	query := `
		WITH upsert AS (
			INSERT INTO maintenance_events (
				id, event_id, document_id, site, machine_id, machine_name,
				event_type, description, started_at, finished_at, downtime_hours,
				technician, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (event_id)
			DO UPDATE SET
				document_id = EXCLUDED.document_id,
				site = EXCLUDED.site,
				machine_id = EXCLUDED.machine_id,
				machine_name = EXCLUDED.machine_name,
				event_type = EXCLUDED.event_type,
				description = EXCLUDED.description,
				started_at = EXCLUDED.started_at,
				finished_at = EXCLUDED.finished_at,
				downtime_hours = EXCLUDED.downtime_hours,
				technician = EXCLUDED.technician,
				updated_at = EXCLUDED.updated_at
			RETURNING ` + columns + `, (xmax = 0) AS inserted
		)
		SELECT * FROM upsert
	`

	var result struct {
		models.MaintenanceEvent
		Inserted bool `db:"inserted"`
	}

	err := ex.GetContext(ctx, &result, query,
		event.ID, event.EventID, event.DocumentID, event.Site, event.MachineID,
		event.MachineName, event.EventType, event.Description, event.StartedAt,
		event.FinishedAt, event.DowntimeHours, event.Technician, now, now,
	)
	if err != nil {
		log.WithError(err).Error("Failed to upsert maintenance event")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert maintenance event")
	}

	if result.Inserted {
		log.WithField("id", result.ID).Info("Created maintenance event")
	} else {
		log.WithField("id", result.ID).Debug("Updated maintenance event")
	}

	return &UpsertResult{Event: &result.MaintenanceEvent, IsNew: result.Inserted}, nil
}

// GetByEventID retrieves a maintenance event by business key. Returns nil
// when unknown.
func (r *Repository) GetByEventID(ctx context.Context, eventID string) (*models.MaintenanceEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "maintenance.Repository.GetByEventID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("maintenance_events")
	sb.Where(sb.Equal("event_id", eventID))
	sb.Limit(1)

	query, args := sb.Build()
	var event models.MaintenanceEvent
	if err := r.db.GetContext(ctx, &event, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("event_id", eventID).Error("Failed to get maintenance event")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get maintenance event")
	}
	return &event, nil
}

// TopFailures ranks machines by corrective maintenance count with each
// machine's share of the total.
func (r *Repository) TopFailures(ctx context.Context, from, to *time.Time, limit int) ([]models.FailureSource, error) {
	ctx, span := tracing.StartSpan(ctx, "maintenance.Repository.TopFailures")
	defer span.End()

	if limit <= 0 || limit > 100 {
		limit = 10
	}

	query := `
		SELECT
			m.machine_id AS category,
			COUNT(DISTINCT m.event_id) AS failure_count,
			ROUND(COUNT(DISTINCT m.event_id) * 100.0 / SUM(COUNT(DISTINCT m.event_id)) OVER (), 2) AS percentage
		FROM maintenance_events m
		WHERE m.event_type = 'CORRECTIVE'
		  AND ($1::timestamptz IS NULL OR m.started_at >= $1)
		  AND ($2::timestamptz IS NULL OR m.started_at <= $2)
		GROUP BY m.machine_id
		ORDER BY failure_count DESC
		LIMIT $3
	`

	var sources []models.FailureSource
	if err := r.db.SelectContext(ctx, &sources, query, from, to, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to rank machine failures")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to rank machine failures")
	}
	return sources, nil
}
