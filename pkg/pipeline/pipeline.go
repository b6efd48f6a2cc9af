// Package pipeline runs submitted documents through the five ingestion
// stages: RECEIVE, PARSE, NORMALIZE, VALIDATE, PERSIST. Row-level failures
// are quarantined without blocking sibling rows; whole-stage failures mark
// the run FAILED. Every stage execution is appended to the audit log.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/sorrel/pkg/appcontext"
	"github.com/Ramsey-B/sorrel/pkg/checksum"
	"github.com/Ramsey-B/sorrel/pkg/kafka"
	"github.com/Ramsey-B/sorrel/pkg/locks"
	"github.com/Ramsey-B/sorrel/pkg/metrics"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/parser"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Config tunes pipeline execution
type Config struct {
	// StageTimeout bounds each stage attempt
	StageTimeout time.Duration
	// MaxAttempts bounds retries of transient stage failures
	MaxAttempts int
	// RetryBackoff is the initial backoff between attempts, doubled each retry
	RetryBackoff time.Duration
	// Concurrency bounds parallel documents in batch ingestion
	Concurrency int
	// LockTTL bounds how long a distributed document lock is held
	LockTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.StageTimeout <= 0 {
		c.StageTimeout = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 5 * time.Minute
	}
	return c
}

// Deps are the collaborators the orchestrator writes through. Emitter and
// DistLocker are optional.
type Deps struct {
	Documents   DocumentStore
	Runs        RunStore
	Inspections InspectionStore
	NCRs        NCRStore
	Maintenance MaintenanceStore
	Quarantine  QuarantineStore
	Tx          TxRunner
	Emitter     Emitter
	DistLocker  DistributedLocker
	Logger      ectologger.Logger
}

// Orchestrator drives documents through the pipeline
type Orchestrator struct {
	deps  Deps
	cfg   Config
	local *locks.Keyed
}

// NewOrchestrator creates a pipeline orchestrator
func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	return &Orchestrator{
		deps:  deps,
		cfg:   cfg.withDefaults(),
		local: locks.NewKeyed(),
	}
}

// Submission is one file offered to the pipeline
type Submission struct {
	Source   models.DocumentSource
	Filename string
	FilePath string
	Metadata json.RawMessage
}

// Outcome is the result of running one document through the pipeline
type Outcome struct {
	Document        *models.Document       `json:"document"`
	Status          models.RunStatus       `json:"status"`
	FailureCode     *models.FailureCode    `json:"failure_code,omitempty"`
	RowsPersisted   int                    `json:"rows_persisted"`
	RowsQuarantined int                    `json:"rows_quarantined"`
	ShortCircuited  bool                   `json:"short_circuited"`
	Runs            []models.ProcessingRun `json:"runs,omitempty"`
}

// Ingest runs one document end to end. Resubmitting identical bytes after a
// successful run short-circuits without reprocessing. Runs for the same
// checksum are serialized.
func (o *Orchestrator) Ingest(ctx context.Context, sub Submission) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Orchestrator.Ingest")
	defer span.End()

	sum, size, err := checksumFile(sub.FilePath)
	if err != nil {
		return nil, NewStageError(models.FailureCodeIOError, false, err)
	}
	ctx = appcontext.SetChecksum(ctx, sum)

	lockWait := time.Now()
	var outcome *Outcome
	run := func() error {
		metrics.LockWaitTime.Observe(time.Since(lockWait).Seconds())
		var runErr error
		outcome, runErr = o.process(ctx, sub, sum, size)
		return runErr
	}

	if o.deps.DistLocker != nil {
		err = o.deps.DistLocker.WithLock(ctx, sum, o.cfg.LockTTL, func() error {
			return o.local.WithLock(sum, run)
		})
	} else {
		err = o.local.WithLock(sum, run)
	}
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func checksumFile(path string) (string, int64, error) {
	sum, err := checksum.ComputeFile(path)
	if err != nil {
		return "", 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}
	return sum, info.Size(), nil
}

func (o *Orchestrator) process(ctx context.Context, sub Submission, sum string, size int64) (*Outcome, error) {
	started := time.Now()
	log := o.deps.Logger.WithContext(ctx).WithFields(map[string]any{
		"filename": sub.Filename,
		"checksum": sum,
	})

	// RECEIVE
	receiveStart := time.Now()
	var doc *models.Document
	var isNew bool
	if stageErr := o.attempt(ctx, func(ctx context.Context) error {
		result, err := o.deps.Documents.Register(ctx, models.RegisterDocumentRequest{
			Source:        sub.Source,
			Filename:      sub.Filename,
			FilePath:      sub.FilePath,
			Checksum:      sum,
			FileSizeBytes: size,
			Metadata:      sub.Metadata,
		})
		if err != nil {
			return err
		}
		doc = result.Document
		isNew = result.IsNew
		return nil
	}); stageErr != nil {
		return nil, stageErr
	}

	ctx = appcontext.SetDocumentID(ctx, doc.ID)
	log = log.WithField("document_id", doc.ID)

	if !isNew {
		prior, err := o.deps.Runs.LatestTerminal(ctx, doc.ID)
		if err != nil {
			return nil, Classify(err)
		}
		if prior != nil && prior.Status.Advanceable() {
			// no stage left after the prior run means the document is done
			if _, more := prior.Stage.Next(); !more {
				log.WithField("status", prior.Status).Info("Document already processed, skipping")
				metrics.DocumentsRegisteredTotal.WithLabelValues(string(sub.Source), "duplicate").Inc()
				return &Outcome{
					Document:        doc,
					Status:          prior.Status,
					RowsPersisted:   prior.RowsSucceeded,
					RowsQuarantined: prior.RowsFailed,
					ShortCircuited:  true,
				}, nil
			}
		}
	}
	metrics.DocumentsRegisteredTotal.WithLabelValues(string(sub.Source), "new").Inc()

	outcome := &Outcome{Document: doc}
	outcome.Runs = append(outcome.Runs,
		o.appendRun(ctx, doc.ID, models.StageReceive, models.RunStatusSuccess, nil, 0, 0, 0, receiveStart))

	// PARSE
	parseStart := time.Now()
	var kind parser.Kind
	var rows []parser.Row
	stageErr := o.attempt(ctx, func(ctx context.Context) error {
		var err error
		kind, rows, err = parseDocument(sub)
		return err
	})
	if stageErr != nil {
		return o.failRun(ctx, outcome, models.StageParse, stageErr, parseStart, started, log), nil
	}
	outcome.Runs = append(outcome.Runs,
		o.appendRun(ctx, doc.ID, models.StageParse, models.RunStatusSuccess, nil, len(rows), len(rows), 0, parseStart))
	metrics.RecordStage(string(models.StageParse), time.Since(parseStart).Seconds())

	// NORMALIZE and VALIDATE share one pass over the rows; each failure is
	// attributed to the stage whose rule it violated.
	normalizeStart := time.Now()
	facts, failures := buildFacts(kind, doc.ID, rows)

	normalizeFailed, validateFailed := 0, 0
	for _, failure := range failures {
		if failure.Stage == models.StageNormalize {
			normalizeFailed++
		} else {
			validateFailed++
		}
	}

	normalizeStatus := models.RunStatusSuccess
	if normalizeFailed > 0 {
		normalizeStatus = models.RunStatusPartial
	}
	outcome.Runs = append(outcome.Runs,
		o.appendRun(ctx, doc.ID, models.StageNormalize, normalizeStatus, nil,
			len(rows), len(rows)-normalizeFailed, normalizeFailed, normalizeStart))
	metrics.RecordStage(string(models.StageNormalize), time.Since(normalizeStart).Seconds())

	validateStart := time.Now()
	validateAttempted := len(rows) - normalizeFailed
	validateStatus := models.RunStatusSuccess
	if validateFailed > 0 {
		validateStatus = models.RunStatusPartial
	}
	outcome.Runs = append(outcome.Runs,
		o.appendRun(ctx, doc.ID, models.StageValidate, validateStatus, nil,
			validateAttempted, validateAttempted-validateFailed, validateFailed, validateStart))
	metrics.RecordStage(string(models.StageValidate), time.Since(validateStart).Seconds())

	quarantineRows := buildQuarantineRows(doc.ID, rows, failures)

	// PERSIST: facts and quarantine rows commit atomically. Upserts are
	// idempotent so retrying the whole stage after a transient failure is safe.
	persistStart := time.Now()
	var persisted []persistedFact
	stageErr = o.attempt(ctx, func(ctx context.Context) error {
		persisted = persisted[:0]
		return o.deps.Tx.InTx(ctx, func(ctx context.Context) error {
			var err error
			persisted, err = o.persistFacts(ctx, facts)
			if err != nil {
				return err
			}
			return o.deps.Quarantine.InsertBatch(ctx, quarantineRows)
		})
	})
	if stageErr != nil {
		return o.failRun(ctx, outcome, models.StagePersist, stageErr, persistStart, started, log), nil
	}

	status := models.RunStatusSuccess
	if len(quarantineRows) > 0 {
		status = models.RunStatusPartial
	}
	outcome.Status = status
	outcome.RowsPersisted = len(persisted)
	outcome.RowsQuarantined = len(quarantineRows)
	outcome.Runs = append(outcome.Runs,
		o.appendRun(ctx, doc.ID, models.StagePersist, status, nil,
			facts.total()+len(quarantineRows), len(persisted), len(quarantineRows), persistStart))
	metrics.RecordStage(string(models.StagePersist), time.Since(persistStart).Seconds())

	for _, p := range persisted {
		metrics.RecordRow(p.kind, "persisted")
	}
	for _, q := range quarantineRows {
		metrics.RecordRow(string(kind), "quarantined")
		metrics.RecordQuarantine(string(q.FailureCode))
	}
	metrics.RecordRun(string(status), time.Since(started).Seconds())

	o.emit(ctx, doc, status, persisted, quarantineRows, started)

	log.WithFields(map[string]any{
		"status":           status,
		"rows_persisted":   len(persisted),
		"rows_quarantined": len(quarantineRows),
	}).Info("Document ingested")

	return outcome, nil
}

// failRun records a FAILED terminal run for the stage and closes the outcome
func (o *Orchestrator) failRun(ctx context.Context, outcome *Outcome, stage models.Stage, stageErr *StageError, stageStart, runStart time.Time, log ectologger.Logger) *Outcome {
	outcome.Status = models.RunStatusFailed
	outcome.FailureCode = &stageErr.Code
	outcome.Runs = append(outcome.Runs,
		o.appendRun(ctx, outcome.Document.ID, stage, models.RunStatusFailed, stageErr, 0, 0, 0, stageStart))

	metrics.RecordStage(string(stage), time.Since(stageStart).Seconds())
	metrics.RecordRun(string(models.RunStatusFailed), time.Since(runStart).Seconds())

	o.emit(ctx, outcome.Document, models.RunStatusFailed, nil, nil, runStart)

	log.WithError(stageErr).WithFields(map[string]any{
		"stage":        stage,
		"failure_code": stageErr.Code,
	}).Error("Document ingestion failed")

	return outcome
}

// attempt runs fn with a per-attempt timeout, retrying transient failures
// with doubling backoff.
func (o *Orchestrator) attempt(ctx context.Context, fn func(ctx context.Context) error) *StageError {
	backoff := o.cfg.RetryBackoff
	var last *StageError

	for i := 0; i < o.cfg.MaxAttempts; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}

		last = Classify(err)
		if !last.Transient {
			return last
		}

		select {
		case <-ctx.Done():
			return Classify(ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return last
}

// appendRun writes one audit entry. Append failures are logged but never
// lose the pipeline result; upserts keep reprocessing idempotent.
func (o *Orchestrator) appendRun(ctx context.Context, documentID string, stage models.Stage, status models.RunStatus, stageErr *StageError, attempted, succeeded, failed int, startedAt time.Time) models.ProcessingRun {
	finished := time.Now().UTC()
	run := models.ProcessingRun{
		DocumentID:    documentID,
		Stage:         stage,
		Status:        status,
		RowsAttempted: attempted,
		RowsSucceeded: succeeded,
		RowsFailed:    failed,
		StartedAt:     startedAt.UTC(),
		FinishedAt:    &finished,
	}
	if stageErr != nil {
		code := string(stageErr.Code)
		detail := stageErr.Error()
		run.FailureCode = &code
		run.ErrorDetail = &detail
	}

	saved, err := o.deps.Runs.Append(ctx, &run)
	if err != nil {
		o.deps.Logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"document_id": documentID,
			"stage":       stage,
		}).Error("Failed to append processing run")
		return run
	}
	return *saved
}

// persistedFact tracks one upserted fact for event emission
type persistedFact struct {
	kind        string
	businessKey string
	factID      string
	isNew       bool
}

func (o *Orchestrator) persistFacts(ctx context.Context, facts *factSet) ([]persistedFact, error) {
	persisted := make([]persistedFact, 0, facts.total())

	for _, fact := range facts.inspections {
		result, err := o.deps.Inspections.Upsert(ctx, fact)
		if err != nil {
			return nil, err
		}
		persisted = append(persisted, persistedFact{
			kind:        string(parser.KindInspection),
			businessKey: fact.InspectionID,
			factID:      result.Inspection.ID,
			isNew:       result.IsNew,
		})
	}
	for _, fact := range facts.ncrs {
		result, err := o.deps.NCRs.Upsert(ctx, fact)
		if err != nil {
			return nil, err
		}
		persisted = append(persisted, persistedFact{
			kind:        string(parser.KindNCR),
			businessKey: fact.NCRID,
			factID:      result.NCR.ID,
			isNew:       result.IsNew,
		})
	}
	for _, fact := range facts.maintenance {
		result, err := o.deps.Maintenance.Upsert(ctx, fact)
		if err != nil {
			return nil, err
		}
		persisted = append(persisted, persistedFact{
			kind:        string(parser.KindMaintenance),
			businessKey: fact.EventID,
			factID:      result.Event.ID,
			isNew:       result.IsNew,
		})
	}

	return persisted, nil
}

// buildQuarantineRows freezes rejected rows verbatim for the quarantine table
func buildQuarantineRows(documentID string, rows []parser.Row, failures map[int]*rowFailure) []models.QuarantineRow {
	if len(failures) == 0 {
		return nil
	}

	quarantined := make([]models.QuarantineRow, 0, len(failures))
	for i, row := range rows {
		failure, ok := failures[i]
		if !ok {
			continue
		}
		raw, err := json.Marshal(row.Fields)
		if err != nil {
			raw = []byte("{}")
		}
		quarantined = append(quarantined, models.QuarantineRow{
			DocumentID:    documentID,
			Stage:         failure.Stage,
			RowNumber:     row.Number,
			RawData:       raw,
			FailureCode:   failure.Code,
			FailureDetail: failure.Detail,
		})
	}
	return quarantined
}

// emit publishes pipeline events. Emission failures are logged downstream
// and never fail the run.
func (o *Orchestrator) emit(ctx context.Context, doc *models.Document, status models.RunStatus, persisted []persistedFact, quarantined []models.QuarantineRow, started time.Time) {
	if o.deps.Emitter == nil {
		return
	}

	if len(persisted) > 0 {
		events := make([]*kafka.FactEvent, len(persisted))
		for i, p := range persisted {
			events[i] = &kafka.FactEvent{
				Kind:        p.kind,
				BusinessKey: p.businessKey,
				FactID:      p.factID,
				DocumentID:  doc.ID,
				IsNew:       p.isNew,
			}
		}
		_ = o.deps.Emitter.PublishFactEvents(ctx, events)
	}

	if len(quarantined) > 0 {
		events := make([]*kafka.QuarantineEvent, len(quarantined))
		for i, q := range quarantined {
			events[i] = &kafka.QuarantineEvent{
				DocumentID:  doc.ID,
				Stage:       q.Stage,
				RowNumber:   q.RowNumber,
				FailureCode: q.FailureCode,
			}
		}
		_ = o.deps.Emitter.PublishQuarantineEvents(ctx, events)
	}

	stage := models.StagePersist
	_ = o.deps.Emitter.PublishRunFinished(ctx, &kafka.RunEvent{
		DocumentID:     doc.ID,
		Status:         status,
		Stage:          stage,
		RowsPersisted:  len(persisted),
		RowsFailed:     len(quarantined),
		DurationMillis: time.Since(started).Milliseconds(),
	})
}

// parseDocument reads the submitted file into raw rows
func parseDocument(sub Submission) (parser.Kind, []parser.Row, error) {
	switch sub.Source {
	case models.DocumentSourcePDF:
		kind, row, err := parser.ParsePDF(sub.FilePath)
		if err != nil {
			return "", nil, classifyParseError(err)
		}
		return kind, []parser.Row{row}, nil
	default:
		f, err := os.Open(sub.FilePath)
		if err != nil {
			return "", nil, NewStageError(models.FailureCodeIOError, true, err)
		}
		defer f.Close()

		header, rows, err := parser.ReadCSV(f)
		if err != nil {
			return "", nil, NewStageError(models.FailureCodeParseMalformed, false, err)
		}

		kind, err := parser.DetectKind(sub.Filename, header)
		if err != nil {
			return "", nil, NewStageError(models.FailureCodeUnknownKind, false, err)
		}
		return kind, rows, nil
	}
}

func classifyParseError(err error) error {
	if errors.Is(err, parser.ErrUnknownKind) {
		return NewStageError(models.FailureCodeUnknownKind, false, err)
	}
	return NewStageError(models.FailureCodeParseMalformed, false, err)
}

// IngestBatch runs many documents with bounded concurrency. Per-document
// failures are captured in their outcomes; the batch itself only fails on
// context cancellation.
func (o *Orchestrator) IngestBatch(ctx context.Context, subs []Submission) ([]*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Orchestrator.IngestBatch")
	defer span.End()

	outcomes := make([]*Outcome, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for i, sub := range subs {
		i, sub := i, sub
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outcome, err := o.Ingest(gctx, sub)
			if err != nil {
				stageErr := Classify(err)
				outcomes[i] = &Outcome{
					Status:      models.RunStatusFailed,
					FailureCode: &stageErr.Code,
				}
				o.deps.Logger.WithContext(gctx).WithError(err).WithField("filename", sub.Filename).Error("Batch document failed")
				return nil
			}
			outcomes[i] = outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// IngestFolder scans a directory for supported files and ingests them
func (o *Orchestrator) IngestFolder(ctx context.Context, dir string) ([]*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Orchestrator.IngestFolder")
	defer span.End()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, NewStageError(models.FailureCodeIOError, false, fmt.Errorf("failed to read folder: %w", err))
	}

	var subs []Submission
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		source, ok := sourceForFile(entry.Name())
		if !ok {
			continue
		}
		subs = append(subs, Submission{
			Source:   source,
			Filename: entry.Name(),
			FilePath: filepath.Join(dir, entry.Name()),
		})
	}

	return o.IngestBatch(ctx, subs)
}

func sourceForFile(name string) (models.DocumentSource, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return models.DocumentSourceCSV, true
	case ".pdf":
		return models.DocumentSourcePDF, true
	default:
		return "", false
	}
}
