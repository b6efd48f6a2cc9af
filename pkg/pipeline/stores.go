package pipeline

import (
	"context"
	"database/sql"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/internal/repositories/document"
	"github.com/Ramsey-B/sorrel/internal/repositories/inspection"
	"github.com/Ramsey-B/sorrel/internal/repositories/maintenance"
	"github.com/Ramsey-B/sorrel/internal/repositories/ncr"
	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/kafka"
	"github.com/Ramsey-B/sorrel/pkg/models"
)

// DocumentStore registers and resolves documents
type DocumentStore interface {
	Register(ctx context.Context, req models.RegisterDocumentRequest) (*document.RegisterResult, error)
	Get(ctx context.Context, id string) (*models.Document, error)
}

// RunStore appends and reads the processing run audit log
type RunStore interface {
	Append(ctx context.Context, run *models.ProcessingRun) (*models.ProcessingRun, error)
	LatestTerminal(ctx context.Context, documentID string) (*models.ProcessingRun, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.ProcessingRun, error)
}

// InspectionStore persists inspection facts
type InspectionStore interface {
	Upsert(ctx context.Context, fact *models.Inspection) (*inspection.UpsertResult, error)
}

// NCRStore persists non-conformance report facts
type NCRStore interface {
	Upsert(ctx context.Context, fact *models.NCR) (*ncr.UpsertResult, error)
}

// MaintenanceStore persists maintenance event facts
type MaintenanceStore interface {
	Upsert(ctx context.Context, fact *models.MaintenanceEvent) (*maintenance.UpsertResult, error)
}

// QuarantineStore persists rejected rows
type QuarantineStore interface {
	InsertBatch(ctx context.Context, rows []models.QuarantineRow) error
}

// Emitter publishes pipeline events. Emission failures are logged by the
// implementation and never fail a stage.
type Emitter interface {
	PublishFactEvents(ctx context.Context, events []*kafka.FactEvent) error
	PublishQuarantineEvents(ctx context.Context, events []*kafka.QuarantineEvent) error
	PublishRunFinished(ctx context.Context, event *kafka.RunEvent) error
}

// TxRunner runs a function inside a database transaction. The transaction is
// carried on the context so repositories join it transparently.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLTxRunner is the Postgres-backed TxRunner
type SQLTxRunner struct {
	db     database.DB
	logger ectologger.Logger
}

func NewSQLTxRunner(db database.DB, logger ectologger.Logger) *SQLTxRunner {
	return &SQLTxRunner{db: db, logger: logger}
}

// InTx opens a transaction, runs fn with it on the context, and commits or
// rolls back depending on the outcome.
func (r *SQLTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, tx, err := database.GetTx(ctx, r.logger, r.db, &sql.TxOptions{})
	if err != nil {
		return err
	}

	// Rollback and Commit take the pre-transaction context; the transaction
	// context marks the tx open, which makes Rollback a no-op for nested calls.
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			r.logger.WithContext(ctx).WithError(rbErr).Error("Failed to rollback transaction")
		}
		return err
	}

	return tx.Commit(ctx)
}

// DistributedLocker serializes work on one key across service instances
type DistributedLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}
