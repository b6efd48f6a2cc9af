package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sorrel/internal/repositories/document"
	"github.com/Ramsey-B/sorrel/internal/repositories/inspection"
	"github.com/Ramsey-B/sorrel/internal/repositories/maintenance"
	"github.com/Ramsey-B/sorrel/internal/repositories/ncr"
	"github.com/Ramsey-B/sorrel/pkg/kafka"
	"github.com/Ramsey-B/sorrel/pkg/logging"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/parser"
)

// memState is the shared in-memory backing for the store fakes
type memState struct {
	mu          sync.Mutex
	docs        map[string]*models.Document // keyed by checksum
	runs        []models.ProcessingRun
	inspections map[string]*models.Inspection
	ncrs        map[string]*models.NCR
	maintenance map[string]*models.MaintenanceEvent
	quarantine  []models.QuarantineRow

	upsertCalls    int
	upsertFailures int  // transient errors to inject before succeeding
	blockUpserts   bool // park upserts on ctx to force timeouts
}

func newMemState() *memState {
	return &memState{
		docs:        make(map[string]*models.Document),
		inspections: make(map[string]*models.Inspection),
		ncrs:        make(map[string]*models.NCR),
		maintenance: make(map[string]*models.MaintenanceEvent),
	}
}

type fakeDocs struct{ s *memState }

func (f *fakeDocs) Register(ctx context.Context, req models.RegisterDocumentRequest) (*document.RegisterResult, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	if existing, ok := f.s.docs[req.Checksum]; ok {
		return &document.RegisterResult{Document: existing, IsNew: false}, nil
	}
	doc := &models.Document{
		ID:            uuid.New().String(),
		Source:        req.Source,
		Filename:      req.Filename,
		FilePath:      req.FilePath,
		Checksum:      req.Checksum,
		FileSizeBytes: req.FileSizeBytes,
		ReceivedAt:    time.Now().UTC(),
	}
	f.s.docs[req.Checksum] = doc
	return &document.RegisterResult{Document: doc, IsNew: true}, nil
}

func (f *fakeDocs) Get(ctx context.Context, id string) (*models.Document, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, doc := range f.s.docs {
		if doc.ID == id {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("document not found")
}

type fakeRuns struct{ s *memState }

func (f *fakeRuns) Append(ctx context.Context, run *models.ProcessingRun) (*models.ProcessingRun, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	saved := *run
	saved.ID = uuid.New().String()
	f.s.runs = append(f.s.runs, saved)
	return &saved, nil
}

func (f *fakeRuns) LatestTerminal(ctx context.Context, documentID string) (*models.ProcessingRun, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i := len(f.s.runs) - 1; i >= 0; i-- {
		run := f.s.runs[i]
		if run.DocumentID == documentID && run.Status.IsTerminal() {
			return &run, nil
		}
	}
	return nil, nil
}

func (f *fakeRuns) ListByDocument(ctx context.Context, documentID string) ([]models.ProcessingRun, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var runs []models.ProcessingRun
	for _, run := range f.s.runs {
		if run.DocumentID == documentID {
			runs = append(runs, run)
		}
	}
	return runs, nil
}

// failNextUpsert reports whether the call should fail with a transient error
func (s *memState) failNextUpsert(ctx context.Context) error {
	if s.blockUpserts {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertFailures > 0 {
		s.upsertFailures--
		return fmt.Errorf("connection reset by peer")
	}
	return nil
}

type fakeInspections struct{ s *memState }

func (f *fakeInspections) Upsert(ctx context.Context, fact *models.Inspection) (*inspection.UpsertResult, error) {
	if err := f.s.failNextUpsert(ctx); err != nil {
		return nil, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	existing, ok := f.s.inspections[fact.InspectionID]
	saved := *fact
	if ok {
		saved.ID = existing.ID
	} else {
		saved.ID = uuid.New().String()
	}
	f.s.inspections[fact.InspectionID] = &saved
	return &inspection.UpsertResult{Inspection: &saved, IsNew: !ok}, nil
}

type fakeNCRs struct{ s *memState }

func (f *fakeNCRs) Upsert(ctx context.Context, fact *models.NCR) (*ncr.UpsertResult, error) {
	if err := f.s.failNextUpsert(ctx); err != nil {
		return nil, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	existing, ok := f.s.ncrs[fact.NCRID]
	saved := *fact
	if ok {
		saved.ID = existing.ID
	} else {
		saved.ID = uuid.New().String()
	}
	f.s.ncrs[fact.NCRID] = &saved
	return &ncr.UpsertResult{NCR: &saved, IsNew: !ok}, nil
}

type fakeMaintenance struct{ s *memState }

func (f *fakeMaintenance) Upsert(ctx context.Context, fact *models.MaintenanceEvent) (*maintenance.UpsertResult, error) {
	if err := f.s.failNextUpsert(ctx); err != nil {
		return nil, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	existing, ok := f.s.maintenance[fact.EventID]
	saved := *fact
	if ok {
		saved.ID = existing.ID
	} else {
		saved.ID = uuid.New().String()
	}
	f.s.maintenance[fact.EventID] = &saved
	return &maintenance.UpsertResult{Event: &saved, IsNew: !ok}, nil
}

type fakeQuarantine struct{ s *memState }

func (f *fakeQuarantine) InsertBatch(ctx context.Context, rows []models.QuarantineRow) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.quarantine = append(f.s.quarantine, rows...)
	return nil
}

// fakeTx passes the context straight through; fakes have no transactions
type fakeTx struct{}

func (fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeEmitter struct {
	mu          sync.Mutex
	facts       []*kafka.FactEvent
	quarantined []*kafka.QuarantineEvent
	runs        []*kafka.RunEvent
}

func (f *fakeEmitter) PublishFactEvents(ctx context.Context, events []*kafka.FactEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facts = append(f.facts, events...)
	return nil
}

func (f *fakeEmitter) PublishQuarantineEvents(ctx context.Context, events []*kafka.QuarantineEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quarantined = append(f.quarantined, events...)
	return nil
}

func (f *fakeEmitter) PublishRunFinished(ctx context.Context, event *kafka.RunEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, event)
	return nil
}

func newTestOrchestrator(state *memState, emitter *fakeEmitter, cfg Config) *Orchestrator {
	deps := Deps{
		Documents:   &fakeDocs{s: state},
		Runs:        &fakeRuns{s: state},
		Inspections: &fakeInspections{s: state},
		NCRs:        &fakeNCRs{s: state},
		Maintenance: &fakeMaintenance{s: state},
		Quarantine:  &fakeQuarantine{s: state},
		Tx:          fakeTx{},
		Logger:      logging.NewNopLogger(),
	}
	if emitter != nil {
		deps.Emitter = emitter
	}
	return NewOrchestrator(deps, cfg)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const inspectionCSV = `inspection_id,site,line,supplier,part_number,inspection_date,inspector,result,measurement_value,measurement_unit
INS-1,Plant A,L1,Acme,P-100,2025-03-01,J. Cole,PASS,12.5,mm
INS-2,Plant A,L1,Acme,P-100,2025-03-02,J. Cole,FAIL,14.1,mm
INS-3,Plant B,L2,Globex,P-200,2025-03-03,M. Diaz,passed,1.2,cm
`

func TestIngest_CSVSuccess(t *testing.T) {
	state := newMemState()
	emitter := &fakeEmitter{}
	o := newTestOrchestrator(state, emitter, Config{})

	path := writeFile(t, "inspections_march.csv", inspectionCSV)
	outcome, err := o.Ingest(context.Background(), Submission{
		Source:   models.DocumentSourceCSV,
		Filename: "inspections_march.csv",
		FilePath: path,
	})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, outcome.Status)
	assert.Equal(t, 3, outcome.RowsPersisted)
	assert.Equal(t, 0, outcome.RowsQuarantined)
	assert.False(t, outcome.ShortCircuited)
	assert.Len(t, state.inspections, 3)
	assert.Empty(t, state.quarantine)

	// every stage leaves exactly one audit entry, in pipeline order
	require.Len(t, outcome.Runs, 5)
	wantStages := []models.Stage{
		models.StageReceive, models.StageParse, models.StageNormalize,
		models.StageValidate, models.StagePersist,
	}
	for i, run := range outcome.Runs {
		assert.Equal(t, wantStages[i], run.Stage)
		assert.Equal(t, models.RunStatusSuccess, run.Status)
	}

	assert.Len(t, emitter.facts, 3)
	require.Len(t, emitter.runs, 1)
	assert.Equal(t, models.RunStatusSuccess, emitter.runs[0].Status)
}

const dirtyInspectionCSV = `inspection_id,site,inspection_date,result
INS-1,Plant A,2025-03-01,PASS
INS-2,,2025-03-02,FAIL
INS-3,Plant A,bad-date,PASS
INS-1,Plant A,2025-03-04,FAIL
INS-4,Plant A,2025-03-05,WEIRD
INS-5,Plant B,2025-03-06,conditional
`

func TestIngest_PartialQuarantine(t *testing.T) {
	state := newMemState()
	emitter := &fakeEmitter{}
	o := newTestOrchestrator(state, emitter, Config{})

	path := writeFile(t, "inspections_dirty.csv", dirtyInspectionCSV)
	outcome, err := o.Ingest(context.Background(), Submission{
		Source:   models.DocumentSourceCSV,
		Filename: "inspections_dirty.csv",
		FilePath: path,
	})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusPartial, outcome.Status)
	assert.Equal(t, 2, outcome.RowsPersisted)
	assert.Equal(t, 4, outcome.RowsQuarantined)

	require.Len(t, state.quarantine, 4)
	codes := make(map[models.FailureCode]int)
	for _, q := range state.quarantine {
		codes[q.FailureCode]++
		assert.NotEmpty(t, q.RawData)
		assert.Equal(t, outcome.Document.ID, q.DocumentID)
	}
	assert.Equal(t, 1, codes[models.FailureCodeMissingRequired])
	assert.Equal(t, 1, codes[models.FailureCodeBadDate])
	assert.Equal(t, 1, codes[models.FailureCodeDuplicateKey])
	assert.Equal(t, 1, codes[models.FailureCodeUnknownEnum])

	// duplicate key did not clobber the first occurrence
	first := state.inspections["INS-1"]
	require.NotNil(t, first)
	assert.Equal(t, models.InspectionResultPass, first.Result)

	assert.Len(t, emitter.quarantined, 4)
}

func TestIngest_ShortCircuitOnResubmission(t *testing.T) {
	state := newMemState()
	o := newTestOrchestrator(state, nil, Config{})

	path := writeFile(t, "inspections.csv", inspectionCSV)
	sub := Submission{Source: models.DocumentSourceCSV, Filename: "inspections.csv", FilePath: path}

	first, err := o.Ingest(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusSuccess, first.Status)
	callsAfterFirst := state.upsertCalls
	runsAfterFirst := len(state.runs)

	second, err := o.Ingest(context.Background(), sub)
	require.NoError(t, err)

	assert.True(t, second.ShortCircuited)
	assert.Equal(t, models.RunStatusSuccess, second.Status)
	assert.Equal(t, first.Document.ID, second.Document.ID)
	assert.Equal(t, callsAfterFirst, state.upsertCalls)
	assert.Equal(t, runsAfterFirst, len(state.runs))
}

func TestIngest_RenamedFileStillDeduplicates(t *testing.T) {
	state := newMemState()
	o := newTestOrchestrator(state, nil, Config{})

	dir := t.TempDir()
	pathA := filepath.Join(dir, "inspections_a.csv")
	pathB := filepath.Join(dir, "inspections_b.csv")
	require.NoError(t, os.WriteFile(pathA, []byte(inspectionCSV), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte(inspectionCSV), 0o644))

	first, err := o.Ingest(context.Background(), Submission{Source: models.DocumentSourceCSV, Filename: "inspections_a.csv", FilePath: pathA})
	require.NoError(t, err)
	second, err := o.Ingest(context.Background(), Submission{Source: models.DocumentSourceCSV, Filename: "inspections_b.csv", FilePath: pathB})
	require.NoError(t, err)

	assert.True(t, second.ShortCircuited)
	assert.Equal(t, first.Document.ID, second.Document.ID)
}

func TestIngest_FailedRunIsReprocessed(t *testing.T) {
	state := newMemState()
	o := newTestOrchestrator(state, nil, Config{MaxAttempts: 1, RetryBackoff: time.Millisecond})

	path := writeFile(t, "inspections.csv", inspectionCSV)
	sub := Submission{Source: models.DocumentSourceCSV, Filename: "inspections.csv", FilePath: path}

	state.upsertFailures = 10
	first, err := o.Ingest(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusFailed, first.Status)
	require.NotNil(t, first.FailureCode)
	assert.Equal(t, models.FailureCodeInfra, *first.FailureCode)

	state.upsertFailures = 0
	second, err := o.Ingest(context.Background(), sub)
	require.NoError(t, err)

	assert.False(t, second.ShortCircuited)
	assert.Equal(t, models.RunStatusSuccess, second.Status)
	assert.Len(t, state.inspections, 3)
}

func TestIngest_TransientErrorRetried(t *testing.T) {
	state := newMemState()
	o := newTestOrchestrator(state, nil, Config{MaxAttempts: 3, RetryBackoff: time.Millisecond})

	path := writeFile(t, "inspections.csv", inspectionCSV)
	state.upsertFailures = 1

	outcome, err := o.Ingest(context.Background(), Submission{
		Source:   models.DocumentSourceCSV,
		Filename: "inspections.csv",
		FilePath: path,
	})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, outcome.Status)
	assert.Len(t, state.inspections, 3)
}

func TestIngest_StageTimeout(t *testing.T) {
	state := newMemState()
	o := newTestOrchestrator(state, nil, Config{
		StageTimeout: 20 * time.Millisecond,
		MaxAttempts:  1,
		RetryBackoff: time.Millisecond,
	})

	path := writeFile(t, "inspections.csv", inspectionCSV)
	state.blockUpserts = true

	outcome, err := o.Ingest(context.Background(), Submission{
		Source:   models.DocumentSourceCSV,
		Filename: "inspections.csv",
		FilePath: path,
	})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, outcome.Status)
	require.NotNil(t, outcome.FailureCode)
	assert.Equal(t, models.FailureCodeTimeout, *outcome.FailureCode)

	last := outcome.Runs[len(outcome.Runs)-1]
	assert.Equal(t, models.StagePersist, last.Stage)
	assert.Equal(t, models.RunStatusFailed, last.Status)
	require.NotNil(t, last.FailureCode)
	assert.Equal(t, string(models.FailureCodeTimeout), *last.FailureCode)
}

func TestIngest_UnknownKind(t *testing.T) {
	state := newMemState()
	o := newTestOrchestrator(state, nil, Config{})

	path := writeFile(t, "mystery.csv", "alpha,beta\n1,2\n")
	outcome, err := o.Ingest(context.Background(), Submission{
		Source:   models.DocumentSourceCSV,
		Filename: "mystery.csv",
		FilePath: path,
	})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, outcome.Status)
	require.NotNil(t, outcome.FailureCode)
	assert.Equal(t, models.FailureCodeUnknownKind, *outcome.FailureCode)

	last := outcome.Runs[len(outcome.Runs)-1]
	assert.Equal(t, models.StageParse, last.Stage)
	assert.Equal(t, models.RunStatusFailed, last.Status)
}

func TestClassifyParseError(t *testing.T) {
	var stageErr *StageError

	// kind detection failures map to UNKNOWN_KIND wherever they are wrapped
	err := classifyParseError(fmt.Errorf("reading form: %w", parser.ErrUnknownKind))
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, models.FailureCodeUnknownKind, stageErr.Code)

	err = classifyParseError(errors.New("invalid pdf: malformed xref table"))
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, models.FailureCodeParseMalformed, stageErr.Code)
}

func TestIngest_MissingFile(t *testing.T) {
	state := newMemState()
	o := newTestOrchestrator(state, nil, Config{})

	_, err := o.Ingest(context.Background(), Submission{
		Source:   models.DocumentSourceCSV,
		Filename: "gone.csv",
		FilePath: "/nonexistent/gone.csv",
	})
	require.Error(t, err)

	stageErr := Classify(err)
	assert.Equal(t, models.FailureCodeIOError, stageErr.Code)
}

func TestIngest_ConcurrentSameChecksum(t *testing.T) {
	state := newMemState()
	o := newTestOrchestrator(state, nil, Config{})

	path := writeFile(t, "inspections.csv", inspectionCSV)
	sub := Submission{Source: models.DocumentSourceCSV, Filename: "inspections.csv", FilePath: path}

	const workers = 8
	outcomes := make([]*Outcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := o.Ingest(context.Background(), sub)
			assert.NoError(t, err)
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	processed := 0
	for _, outcome := range outcomes {
		require.NotNil(t, outcome)
		assert.Equal(t, models.RunStatusSuccess, outcome.Status)
		if !outcome.ShortCircuited {
			processed++
		}
	}
	assert.Equal(t, 1, processed)
	assert.Len(t, state.inspections, 3)
}

const ncrCSV = `ncr_id,site,supplier,severity,status,description,opened_date,linked_inspection_id
NCR-1,Plant A,Acme,HIGH,OPEN,cracked housing,2025-02-01,INS-2
NCR-2,Plant B,Globex,low,closed,scratched panel,2025-01-15,
`

func TestIngestBatch(t *testing.T) {
	state := newMemState()
	o := newTestOrchestrator(state, nil, Config{Concurrency: 2})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inspections.csv"), []byte(inspectionCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ncr_log.csv"), []byte(ncrCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	outcomes, err := o.IngestFolder(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, outcomes, 2)
	for _, outcome := range outcomes {
		assert.Equal(t, models.RunStatusSuccess, outcome.Status)
	}
	assert.Len(t, state.inspections, 3)
	assert.Len(t, state.ncrs, 2)

	linked := state.ncrs["NCR-1"]
	require.NotNil(t, linked)
	require.NotNil(t, linked.LinkedInspectionID)
	assert.Equal(t, "INS-2", *linked.LinkedInspectionID)
}

func TestIngestBatch_IsolatesFailures(t *testing.T) {
	state := newMemState()
	o := newTestOrchestrator(state, nil, Config{Concurrency: 2})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inspections.csv"), []byte(inspectionCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mystery.csv"), []byte("alpha,beta\n1,2\n"), 0o644))

	outcomes, err := o.IngestFolder(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	byStatus := make(map[models.RunStatus]int)
	for _, outcome := range outcomes {
		byStatus[outcome.Status]++
	}
	assert.Equal(t, 1, byStatus[models.RunStatusSuccess])
	assert.Equal(t, 1, byStatus[models.RunStatusFailed])
	assert.Len(t, state.inspections, 3)
}
