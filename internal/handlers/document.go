package handlers

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/pipeline"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// DocumentReader resolves documents and their audit trail
type DocumentReader interface {
	Get(ctx context.Context, id string) (*models.Document, error)
}

// RunReader lists the audit trail for one document
type RunReader interface {
	ListByDocument(ctx context.Context, documentID string) ([]models.ProcessingRun, error)
}

// QuarantineByDocumentReader lists quarantined rows for one document
type QuarantineByDocumentReader interface {
	ListByDocument(ctx context.Context, documentID string) ([]models.QuarantineRow, error)
}

// Ingestor runs one submission through the pipeline
type Ingestor interface {
	Ingest(ctx context.Context, sub pipeline.Submission) (*pipeline.Outcome, error)
}

// DocumentHandler serves document submission and evidence endpoints
type DocumentHandler struct {
	documents  DocumentReader
	runs       RunReader
	quarantine QuarantineByDocumentReader
	ingestor   Ingestor
	uploadDir  string
	logger     ectologger.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(
	documents DocumentReader,
	runs RunReader,
	quarantine QuarantineByDocumentReader,
	ingestor Ingestor,
	uploadDir string,
	logger ectologger.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		documents:  documents,
		runs:       runs,
		quarantine: quarantine,
		ingestor:   ingestor,
		uploadDir:  uploadDir,
		logger:     logger,
	}
}

// Register registers document routes
func (h *DocumentHandler) Register(api *echo.Group) {
	api.POST("/documents", h.Upload)
	api.GET("/documents/:id", h.Get)
	api.GET("/documents/:id/runs", h.ListRuns)
	api.GET("/documents/:id/quarantine", h.ListQuarantine)
}

// Upload accepts a multipart file, stores it, and runs it through the
// pipeline inline. Resubmitting identical bytes returns the prior outcome.
func (h *DocumentHandler) Upload(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DocumentHandler.Upload")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return BadRequest("a file part named 'file' is required")
	}

	source, ok := sourceForUpload(fileHeader.Filename)
	if !ok {
		return BadRequest("unsupported file type: expected .csv or .pdf")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to read upload")
	}
	defer src.Close()

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to store upload")
	}

	// uuid prefix keeps same-named files from clobbering each other on disk
	storedPath := filepath.Join(h.uploadDir, uuid.New().String()+"_"+filepath.Base(fileHeader.Filename))
	dst, err := os.Create(storedPath)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to store upload")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to store upload")
	}
	if err := dst.Close(); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to store upload")
	}

	outcome, err := h.ingestor.Ingest(ctx, pipeline.Submission{
		Source:   source,
		Filename: fileHeader.Filename,
		FilePath: storedPath,
	})
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).WithField("filename", fileHeader.Filename).Error("Failed to ingest upload")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to ingest document")
	}

	if outcome.ShortCircuited {
		return SuccessResponse(c, outcome)
	}
	return CreatedResponse(c, outcome)
}

// Get returns one document record
func (h *DocumentHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DocumentHandler.Get")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	doc, err := h.documents.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, doc)
}

// ListRuns returns the full stage audit trail for one document
func (h *DocumentHandler) ListRuns(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DocumentHandler.ListRuns")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	runs, err := h.runs.ListByDocument(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, runs)
}

// ListQuarantine returns the quarantined rows for one document
func (h *DocumentHandler) ListQuarantine(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DocumentHandler.ListQuarantine")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	rows, err := h.quarantine.ListByDocument(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, rows)
}

func sourceForUpload(name string) (models.DocumentSource, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return models.DocumentSourceCSV, true
	case ".pdf":
		return models.DocumentSourcePDF, true
	default:
		return "", false
	}
}
