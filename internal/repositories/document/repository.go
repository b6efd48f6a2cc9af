package document

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

const columns = "id, source, filename, file_path, checksum, file_size_bytes, received_at, metadata"

// Repository handles document persistence. Documents are append-only; there
// is no update or delete path.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// RegisterResult reports whether the submission created a new document or
// resolved to an already-registered one.
type RegisterResult struct {
	Document *models.Document
	IsNew    bool
}

// Register inserts the document or, when the checksum is already known,
// returns the existing row untouched. The conflict target is the checksum;
// identical bytes always resolve to one document regardless of filename.
func (r *Repository) Register(ctx context.Context, req models.RegisterDocumentRequest) (*RegisterResult, error) {
	ctx, span := tracing.StartSpan(ctx, "document.Repository.Register")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":   "Register",
		"checksum": req.Checksum,
		"filename": req.Filename,
	})

	now := time.Now().UTC()
	id := uuid.New().String()

	query := `
		WITH upsert AS (
			INSERT INTO documents (
				id, source, filename, file_path, checksum, file_size_bytes, received_at, metadata
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (checksum)
			DO UPDATE SET checksum = EXCLUDED.checksum
			RETURNING
				id, source, filename, file_path, checksum, file_size_bytes, received_at, metadata,
				(xmax = 0) AS inserted
		)
		SELECT * FROM upsert
	`

	var result struct {
		models.Document
		Inserted bool `db:"inserted"`
	}

	metadata := req.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	err := r.db.GetContext(ctx, &result, query,
		id, req.Source, req.Filename, req.FilePath, req.Checksum, req.FileSizeBytes, now, metadata,
	)
	if err != nil {
		log.WithError(err).Error("Failed to register document")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to register document")
	}

	if result.Inserted {
		log.WithFields(map[string]any{"id": result.ID}).Info("Registered new document")
	} else {
		log.WithFields(map[string]any{"id": result.ID}).Debug("Document already registered")
	}

	return &RegisterResult{Document: &result.Document, IsNew: result.Inserted}, nil
}

// Get retrieves a document by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Document, error) {
	ctx, span := tracing.StartSpan(ctx, "document.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("documents")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "document %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get document")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get document")
	}

	return &doc, nil
}

// GetByChecksum retrieves a document by its content checksum. Returns nil
// when no document with that checksum exists.
func (r *Repository) GetByChecksum(ctx context.Context, checksum string) (*models.Document, error) {
	ctx, span := tracing.StartSpan(ctx, "document.Repository.GetByChecksum")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("documents")
	sb.Where(sb.Equal("checksum", checksum))
	sb.Limit(1)

	query, args := sb.Build()
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("checksum", checksum).Error("Failed to get document by checksum")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get document")
	}

	return &doc, nil
}
