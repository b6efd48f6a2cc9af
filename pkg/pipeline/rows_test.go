package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/parser"
)

func inspectionRow(number int, overrides map[string]string) parser.Row {
	fields := map[string]string{
		"inspection_id":   "INS-1001",
		"site":            "Plant A",
		"inspection_date": "2025-03-10",
		"result":          "PASS",
	}
	for k, v := range overrides {
		fields[k] = v
	}
	return parser.Row{Number: number, Fields: fields}
}

func TestBuildInspection(t *testing.T) {
	fact, failure := buildInspection("doc-1", inspectionRow(2, map[string]string{
		"supplier":          "Acme",
		"measurement_value": "2.5",
		"measurement_unit":  "cm",
		"spec_min":          "20",
		"spec_max":          "30",
	}))
	require.Nil(t, failure)

	assert.Equal(t, "INS-1001", fact.InspectionID)
	assert.Equal(t, "doc-1", fact.DocumentID)
	assert.Equal(t, "Plant A", fact.Site)
	assert.Equal(t, models.InspectionResultPass, fact.Result)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), fact.InspectionDate)
	require.NotNil(t, fact.Supplier)
	assert.Equal(t, "Acme", *fact.Supplier)
	require.NotNil(t, fact.MeasurementValue)
	assert.Equal(t, 25.0, *fact.MeasurementValue)
	require.NotNil(t, fact.MeasurementUnit)
	assert.Equal(t, "mm", *fact.MeasurementUnit)
}

func TestBuildInspection_MissingRequired(t *testing.T) {
	_, failure := buildInspection("doc-1", inspectionRow(2, map[string]string{"site": ""}))
	require.NotNil(t, failure)
	assert.Equal(t, models.FailureCodeMissingRequired, failure.Code)
	assert.Equal(t, models.StageValidate, failure.Stage)
	assert.Contains(t, failure.Detail, "site")
}

func TestBuildInspection_BadDate(t *testing.T) {
	_, failure := buildInspection("doc-1", inspectionRow(2, map[string]string{"inspection_date": "not a date"}))
	require.NotNil(t, failure)
	assert.Equal(t, models.FailureCodeBadDate, failure.Code)
	assert.Equal(t, models.StageNormalize, failure.Stage)
}

func TestBuildInspection_UnknownResult(t *testing.T) {
	_, failure := buildInspection("doc-1", inspectionRow(2, map[string]string{"result": "MAYBE"}))
	require.NotNil(t, failure)
	assert.Equal(t, models.FailureCodeUnknownEnum, failure.Code)
	assert.Equal(t, models.StageValidate, failure.Stage)
}

func TestBuildInspection_BadMeasurement(t *testing.T) {
	_, failure := buildInspection("doc-1", inspectionRow(2, map[string]string{
		"measurement_value": "abc",
	}))
	require.NotNil(t, failure)
	assert.Equal(t, models.FailureCodeBadNumber, failure.Code)

	_, failure = buildInspection("doc-1", inspectionRow(2, map[string]string{
		"measurement_value": "12",
		"measurement_unit":  "furlongs",
	}))
	require.NotNil(t, failure)
	assert.Equal(t, models.FailureCodeBadUnit, failure.Code)
}

func TestBuildInspection_CaseInsensitiveHeaders(t *testing.T) {
	fact, failure := buildInspection("doc-1", parser.Row{Number: 2, Fields: map[string]string{
		"Inspection_ID":   "INS-9",
		"SITE":            "Plant B",
		"Inspection_Date": "2025-01-05",
		"Result":          "fail",
	}})
	require.Nil(t, failure)
	assert.Equal(t, "INS-9", fact.InspectionID)
	assert.Equal(t, models.InspectionResultFail, fact.Result)
}

func TestBuildNCR(t *testing.T) {
	fact, failure := buildNCR("doc-2", parser.Row{Number: 3, Fields: map[string]string{
		"ncr_id":               "NCR-77",
		"site":                 "Plant A",
		"severity":             "major",
		"status":               "in review",
		"description":          "crack on weld seam",
		"opened_date":          "02/01/2025",
		"closed_date":          "2025-02-20",
		"linked_inspection_id": "INS-1001",
	}})
	require.Nil(t, failure)

	assert.Equal(t, "NCR-77", fact.NCRID)
	assert.Equal(t, models.NCRSeverityHigh, fact.Severity)
	assert.Equal(t, models.NCRStatusInReview, fact.Status)
	require.NotNil(t, fact.ClosedDate)
	require.NotNil(t, fact.LinkedInspectionID)
	assert.Equal(t, "INS-1001", *fact.LinkedInspectionID)
}

func TestBuildNCR_MissingDescription(t *testing.T) {
	_, failure := buildNCR("doc-2", parser.Row{Number: 3, Fields: map[string]string{
		"ncr_id":      "NCR-77",
		"site":        "Plant A",
		"severity":    "HIGH",
		"status":      "OPEN",
		"opened_date": "2025-02-01",
	}})
	require.NotNil(t, failure)
	assert.Equal(t, models.FailureCodeMissingRequired, failure.Code)
	assert.Contains(t, failure.Detail, "description")
}

func TestBuildMaintenanceEvent(t *testing.T) {
	fact, failure := buildMaintenanceEvent("doc-3", parser.Row{Number: 2, Fields: map[string]string{
		"event_id":       "MNT-5",
		"site":           "Plant C",
		"machine_id":     "CNC-12",
		"event_type":     "breakdown",
		"event_date":     "2025-04-01 08:30:00",
		"downtime_hours": "3.5",
	}})
	require.Nil(t, failure)

	assert.Equal(t, models.MaintenanceTypeCorrective, fact.EventType)
	assert.Equal(t, time.Date(2025, 4, 1, 8, 30, 0, 0, time.UTC), fact.StartedAt)
	require.NotNil(t, fact.DowntimeHours)
	assert.Equal(t, 3.5, *fact.DowntimeHours)
}

func TestBuildFacts_DuplicateKeyFirstWins(t *testing.T) {
	rows := []parser.Row{
		inspectionRow(2, map[string]string{"notes": "first"}),
		inspectionRow(3, map[string]string{"notes": "second"}),
		inspectionRow(4, map[string]string{"inspection_id": "INS-2002"}),
	}

	facts, failures := buildFacts(parser.KindInspection, "doc-1", rows)

	require.Len(t, facts.inspections, 2)
	require.NotNil(t, facts.inspections[0].Notes)
	assert.Equal(t, "first", *facts.inspections[0].Notes)

	require.Len(t, failures, 1)
	failure := failures[1]
	require.NotNil(t, failure)
	assert.Equal(t, models.FailureCodeDuplicateKey, failure.Code)
	assert.Contains(t, failure.Detail, "INS-1001")
	assert.Contains(t, failure.Detail, "row 2")
}

func TestBuildFacts_MixedFailures(t *testing.T) {
	rows := []parser.Row{
		inspectionRow(2, nil),
		inspectionRow(3, map[string]string{"inspection_id": "INS-2", "inspection_date": "garbage"}),
		inspectionRow(4, map[string]string{"inspection_id": "INS-3", "result": "UNKNOWN"}),
	}

	facts, failures := buildFacts(parser.KindInspection, "doc-1", rows)

	assert.Equal(t, 1, facts.total())
	require.Len(t, failures, 2)
	assert.Equal(t, models.FailureCodeBadDate, failures[1].Code)
	assert.Equal(t, models.FailureCodeUnknownEnum, failures[2].Code)
}

func TestBuildFacts_UnknownKind(t *testing.T) {
	_, failures := buildFacts(parser.Kind("bogus"), "doc-1", []parser.Row{{Number: 2, Fields: map[string]string{}}})
	require.Len(t, failures, 1)
	assert.Equal(t, models.FailureCodeUnknownKind, failures[0].Code)
}
