package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sorrel/internal/repositories/processingrun"
	"github.com/Ramsey-B/sorrel/pkg/logging"
	"github.com/Ramsey-B/sorrel/pkg/middleware"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/pipeline"
)

type stubInspections struct {
	lastFilter  models.InspectionFilter
	lastGroupBy models.FailureGroupBy
	lastPeriod  models.TrendPeriod
	calls       int
}

func (s *stubInspections) ListFailed(ctx context.Context, filter models.InspectionFilter, limit int) ([]models.InspectionWithDocument, error) {
	s.lastFilter = filter
	s.calls++
	return []models.InspectionWithDocument{}, nil
}

func (s *stubInspections) TopFailures(ctx context.Context, groupBy models.FailureGroupBy, from, to *time.Time, limit int) ([]models.FailureSource, error) {
	s.lastGroupBy = groupBy
	s.calls++
	return []models.FailureSource{{Category: "Acme", FailureCount: 4, Percentage: 80}}, nil
}

func (s *stubInspections) Trends(ctx context.Context, period models.TrendPeriod, from, to *time.Time) ([]models.TrendPoint, error) {
	s.lastPeriod = period
	s.calls++
	return []models.TrendPoint{}, nil
}

type stubMaintenance struct {
	calls int
}

func (s *stubMaintenance) TopFailures(ctx context.Context, from, to *time.Time, limit int) ([]models.FailureSource, error) {
	s.calls++
	return []models.FailureSource{{Category: "CNC-12", FailureCount: 2, Percentage: 100}}, nil
}

func doRequest(t *testing.T, e *echo.Echo, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newServer() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logging.NewNopLogger())
	return e
}

func newInspectionServer(inspections *stubInspections, maintenance *stubMaintenance) *echo.Echo {
	e := newServer()
	h := NewInspectionHandler(inspections, maintenance, logging.NewNopLogger())
	h.Register(e.Group("/api/v1"))
	return e
}

func TestListFailed_ParsesFilter(t *testing.T) {
	inspections := &stubInspections{}
	e := newInspectionServer(inspections, &stubMaintenance{})

	rec := doRequest(t, e, http.MethodGet, "/api/v1/inspections/failed?from=2025-01-01&site=Plant+A&supplier=Acme", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, inspections.lastFilter.From)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *inspections.lastFilter.From)
	require.NotNil(t, inspections.lastFilter.Site)
	assert.Equal(t, "Plant A", *inspections.lastFilter.Site)
	require.NotNil(t, inspections.lastFilter.Supplier)
	assert.Equal(t, "Acme", *inspections.lastFilter.Supplier)
	assert.Nil(t, inspections.lastFilter.Line)
}

func TestListFailed_RejectsBadDate(t *testing.T) {
	e := newInspectionServer(&stubInspections{}, &stubMaintenance{})
	rec := doRequest(t, e, http.MethodGet, "/api/v1/inspections/failed?from=garbage", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTopFailures_DispatchesByGroup(t *testing.T) {
	inspections := &stubInspections{}
	maintenance := &stubMaintenance{}
	e := newInspectionServer(inspections, maintenance)

	rec := doRequest(t, e, http.MethodGet, "/api/v1/failures/top", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.FailureGroupBySupplier, inspections.lastGroupBy)

	rec = doRequest(t, e, http.MethodGet, "/api/v1/failures/top?group_by=machine", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, maintenance.calls)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "machine", body["group_by"])

	rec = doRequest(t, e, http.MethodGet, "/api/v1/failures/top?group_by=weather", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrends_ValidatesPeriod(t *testing.T) {
	inspections := &stubInspections{}
	e := newInspectionServer(inspections, &stubMaintenance{})

	rec := doRequest(t, e, http.MethodGet, "/api/v1/trends/failures?period=month", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.TrendPeriodMonth, inspections.lastPeriod)

	rec = doRequest(t, e, http.MethodGet, "/api/v1/trends/failures?period=decade", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubNCRs struct {
	lastFilter models.NCRFilter
	evidenceID string
}

func (s *stubNCRs) ListOverdue(ctx context.Context, filter models.NCRFilter, limit int) ([]models.NCRWithDocument, error) {
	s.lastFilter = filter
	return []models.NCRWithDocument{}, nil
}

func (s *stubNCRs) SeverityBreakdown(ctx context.Context) (map[models.NCRSeverity]int, error) {
	return map[models.NCRSeverity]int{models.NCRSeverityHigh: 3}, nil
}

func (s *stubNCRs) Evidence(ctx context.Context, ncrID string) (*models.EvidenceChain, error) {
	s.evidenceID = ncrID
	opened := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	closed := opened.AddDate(0, 0, 12)
	ncr := models.NCR{NCRID: ncrID, OpenedDate: opened, ClosedDate: &closed}
	return &models.EvidenceChain{NCR: ncr, DaysOpen: ncr.DaysOpen(time.Now().UTC())}, nil
}

func newNCRServer(ncrs *stubNCRs) *echo.Echo {
	e := newServer()
	h := NewNCRHandler(ncrs, logging.NewNopLogger())
	h.Register(e.Group("/api/v1"))
	return e
}

func TestListOverdue_Defaults(t *testing.T) {
	ncrs := &stubNCRs{}
	e := newNCRServer(ncrs)

	rec := doRequest(t, e, http.MethodGet, "/api/v1/ncrs/overdue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ncrs.lastFilter.OlderThan)
	assert.Equal(t, 30, *ncrs.lastFilter.OlderThan)
	assert.Nil(t, ncrs.lastFilter.Severity)
	assert.Nil(t, ncrs.lastFilter.MinSeverity)
}

func TestListOverdue_NormalizesSeverity(t *testing.T) {
	ncrs := &stubNCRs{}
	e := newNCRServer(ncrs)

	rec := doRequest(t, e, http.MethodGet, "/api/v1/ncrs/overdue?severity=major&min_days=45", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ncrs.lastFilter.OlderThan)
	assert.Equal(t, 45, *ncrs.lastFilter.OlderThan)
	require.NotNil(t, ncrs.lastFilter.Severity)
	assert.Equal(t, models.NCRSeverityHigh, *ncrs.lastFilter.Severity)

	rec = doRequest(t, e, http.MethodGet, "/api/v1/ncrs/overdue?min_severity=major", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ncrs.lastFilter.MinSeverity)
	assert.Equal(t, models.NCRSeverityHigh, *ncrs.lastFilter.MinSeverity)

	rec = doRequest(t, e, http.MethodGet, "/api/v1/ncrs/overdue?severity=apocalyptic", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, e, http.MethodGet, "/api/v1/ncrs/overdue?min_severity=apocalyptic", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvidence_PassesBusinessKey(t *testing.T) {
	ncrs := &stubNCRs{}
	e := newNCRServer(ncrs)

	rec := doRequest(t, e, http.MethodGet, "/api/v1/ncrs/NCR-42/evidence", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NCR-42", ncrs.evidenceID)

	// the closed report's days_open stays frozen at its closed date
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(12), body["days_open"])
}

type stubRuns struct {
	lastFilter processingrun.Filter
}

func (s *stubRuns) List(ctx context.Context, filter processingrun.Filter) ([]models.IngestionRun, error) {
	s.lastFilter = filter
	return []models.IngestionRun{}, nil
}

type stubQuarantine struct{}

func (stubQuarantine) List(ctx context.Context, limit int) ([]models.QuarantineRowWithDocument, error) {
	return []models.QuarantineRowWithDocument{}, nil
}

func (stubQuarantine) Summary(ctx context.Context) ([]models.QuarantineSummary, error) {
	return []models.QuarantineSummary{{FailureCode: models.FailureCodeBadDate, Count: 7}}, nil
}

type stubBatch struct {
	lastFolder string
}

func (s *stubBatch) IngestFolder(ctx context.Context, dir string) ([]*pipeline.Outcome, error) {
	s.lastFolder = dir
	return []*pipeline.Outcome{
		{Status: models.RunStatusSuccess},
		{Status: models.RunStatusPartial},
	}, nil
}

func newOpsServer(runs *stubRuns, batch *stubBatch) *echo.Echo {
	e := newServer()
	h := NewOpsHandler(runs, stubQuarantine{}, batch, logging.NewNopLogger())
	h.Register(e.Group("/api/v1"))
	return e
}

func TestOpsRuns_ParsesFilter(t *testing.T) {
	runs := &stubRuns{}
	e := newOpsServer(runs, &stubBatch{})

	rec := doRequest(t, e, http.MethodGet, "/api/v1/ops/runs?status=FAILED&stage=PERSIST", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, runs.lastFilter.Status)
	assert.Equal(t, models.RunStatusFailed, *runs.lastFilter.Status)
	require.NotNil(t, runs.lastFilter.Stage)
	assert.Equal(t, models.StagePersist, *runs.lastFilter.Stage)

	rec = doRequest(t, e, http.MethodGet, "/api/v1/ops/runs?stage=TELEPORT", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, e, http.MethodGet, "/api/v1/ops/runs?status=SORT_OF", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpsBatch(t *testing.T) {
	batch := &stubBatch{}
	e := newOpsServer(&stubRuns{}, batch)

	rec := doRequest(t, e, http.MethodPost, "/api/v1/ops/batch", `{"folder":"/data/drop"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/data/drop", batch.lastFolder)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["documents"])

	rec = doRequest(t, e, http.MethodPost, "/api/v1/ops/batch", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
