package pipeline

import (
	"strings"

	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/normalize"
	"github.com/Ramsey-B/sorrel/pkg/parser"
)

// field returns the first non-empty value among the given column names.
// Lookup is case-insensitive so CSV exports with shouting headers still map.
func field(row parser.Row, names ...string) string {
	for _, name := range names {
		if v, ok := row.Fields[name]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	for key, v := range row.Fields {
		lower := strings.ToLower(strings.TrimSpace(key))
		for _, name := range names {
			if lower == name && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

type requiredField struct {
	name  string
	value string
}

// requireFields reports the first missing required field in declaration order
func requireFields(fields []requiredField) *rowFailure {
	for _, f := range fields {
		if f.value == "" {
			return validateFailure(models.FailureCodeMissingRequired, "missing required field %q", f.name)
		}
	}
	return nil
}

// buildInspection turns a raw row into an inspection fact. The first
// violated rule wins; one quarantine entry per row.
func buildInspection(documentID string, row parser.Row) (*models.Inspection, *rowFailure) {
	inspectionID := field(row, "inspection_id")
	site := field(row, "site", "location")
	rawDate := field(row, "inspection_date", "date")
	rawResult := field(row, "result")

	if failure := requireFields([]requiredField{
		{"inspection_id", inspectionID},
		{"site", site},
		{"inspection_date", rawDate},
		{"result", rawResult},
	}); failure != nil {
		return nil, failure
	}

	date, err := normalize.Date(rawDate)
	if err != nil {
		return nil, normalizeFailure(models.FailureCodeBadDate, "inspection_date: %v", err)
	}

	result, err := normalize.InspectionResult(rawResult)
	if err != nil {
		return nil, validateFailure(models.FailureCodeUnknownEnum, "result: %v", err)
	}

	inspection := &models.Inspection{
		InspectionID:    inspectionID,
		DocumentID:      documentID,
		Site:            site,
		InspectionDate:  date,
		Result:          result,
		ProductionLine:  normalize.CleanString(field(row, "production_line", "line"), 100),
		Supplier:        normalize.CleanString(field(row, "supplier"), 255),
		PartNumber:      normalize.CleanString(field(row, "part_number", "part"), 100),
		PartDescription: normalize.CleanString(field(row, "part_description"), 255),
		Inspector:       normalize.CleanString(field(row, "inspector"), 100),
		Notes:           normalize.CleanString(field(row, "notes"), 0),
	}

	if raw := field(row, "measurement_value", "measured_value"); raw != "" {
		unit := field(row, "measurement_unit", "unit")
		value, canonical, err := normalize.Unit(raw, unit)
		if err != nil {
			if _, decErr := normalize.Decimal(raw); decErr != nil {
				return nil, normalizeFailure(models.FailureCodeBadNumber, "measurement_value: %v", decErr)
			}
			return nil, normalizeFailure(models.FailureCodeBadUnit, "measurement_unit: %v", err)
		}
		inspection.MeasurementValue = &value
		if canonical != "" {
			inspection.MeasurementUnit = &canonical
		}
	}

	if raw := field(row, "spec_min"); raw != "" {
		value, err := normalize.Decimal(raw)
		if err != nil {
			return nil, normalizeFailure(models.FailureCodeBadNumber, "spec_min: %v", err)
		}
		inspection.SpecMin = &value
	}
	if raw := field(row, "spec_max"); raw != "" {
		value, err := normalize.Decimal(raw)
		if err != nil {
			return nil, normalizeFailure(models.FailureCodeBadNumber, "spec_max: %v", err)
		}
		inspection.SpecMax = &value
	}

	return inspection, nil
}

// buildNCR turns a raw row into a non-conformance report fact
func buildNCR(documentID string, row parser.Row) (*models.NCR, *rowFailure) {
	ncrID := field(row, "ncr_id")
	site := field(row, "site", "location")
	rawSeverity := field(row, "severity")
	rawStatus := field(row, "status")
	description := field(row, "description")
	rawOpened := field(row, "opened_date", "opened_at", "date_opened")

	if failure := requireFields([]requiredField{
		{"ncr_id", ncrID},
		{"site", site},
		{"severity", rawSeverity},
		{"status", rawStatus},
		{"description", description},
		{"opened_date", rawOpened},
	}); failure != nil {
		return nil, failure
	}

	opened, err := normalize.Date(rawOpened)
	if err != nil {
		return nil, normalizeFailure(models.FailureCodeBadDate, "opened_date: %v", err)
	}

	severity, err := normalize.NCRSeverity(rawSeverity)
	if err != nil {
		return nil, validateFailure(models.FailureCodeUnknownEnum, "severity: %v", err)
	}

	status, err := normalize.NCRStatus(rawStatus)
	if err != nil {
		return nil, validateFailure(models.FailureCodeUnknownEnum, "status: %v", err)
	}

	ncr := &models.NCR{
		NCRID:              ncrID,
		DocumentID:         documentID,
		Site:               site,
		Description:        description,
		Severity:           severity,
		Status:             status,
		OpenedDate:         opened,
		LinkedInspectionID: normalize.CleanString(field(row, "linked_inspection_id", "inspection_id"), 100),
		Supplier:           normalize.CleanString(field(row, "supplier"), 255),
		PartNumber:         normalize.CleanString(field(row, "part_number", "part"), 100),
		Disposition:        normalize.CleanString(field(row, "disposition"), 255),
		AssignedTo:         normalize.CleanString(field(row, "assigned_to"), 100),
	}

	if raw := field(row, "closed_date", "closed_at", "date_closed"); raw != "" {
		closed, err := normalize.Date(raw)
		if err != nil {
			return nil, normalizeFailure(models.FailureCodeBadDate, "closed_date: %v", err)
		}
		ncr.ClosedDate = &closed
	}

	return ncr, nil
}

// buildMaintenanceEvent turns a raw row into a maintenance fact
func buildMaintenanceEvent(documentID string, row parser.Row) (*models.MaintenanceEvent, *rowFailure) {
	eventID := field(row, "event_id")
	site := field(row, "site", "location")
	machineID := field(row, "machine_id")
	rawType := field(row, "event_type", "type")
	rawStarted := field(row, "started_at", "event_date", "start_date", "date")

	if failure := requireFields([]requiredField{
		{"event_id", eventID},
		{"site", site},
		{"machine_id", machineID},
		{"event_type", rawType},
		{"started_at", rawStarted},
	}); failure != nil {
		return nil, failure
	}

	started, err := normalize.DateTime(rawStarted)
	if err != nil {
		return nil, normalizeFailure(models.FailureCodeBadDate, "started_at: %v", err)
	}

	eventType, err := normalize.MaintenanceType(rawType)
	if err != nil {
		return nil, validateFailure(models.FailureCodeUnknownEnum, "event_type: %v", err)
	}

	event := &models.MaintenanceEvent{
		EventID:     eventID,
		DocumentID:  documentID,
		Site:        site,
		MachineID:   machineID,
		EventType:   eventType,
		StartedAt:   started,
		MachineName: normalize.CleanString(field(row, "machine_name"), 255),
		Description: normalize.CleanString(field(row, "description"), 0),
		Technician:  normalize.CleanString(field(row, "technician"), 100),
	}

	if raw := field(row, "finished_at", "end_date"); raw != "" {
		finished, err := normalize.DateTime(raw)
		if err != nil {
			return nil, normalizeFailure(models.FailureCodeBadDate, "finished_at: %v", err)
		}
		event.FinishedAt = &finished
	}

	if raw := field(row, "downtime_hours", "downtime"); raw != "" {
		hours, err := normalize.Decimal(raw)
		if err != nil {
			return nil, normalizeFailure(models.FailureCodeBadNumber, "downtime_hours: %v", err)
		}
		event.DowntimeHours = &hours
	}

	return event, nil
}

// factSet is the typed output of one document's row processing
type factSet struct {
	inspections []*models.Inspection
	ncrs        []*models.NCR
	maintenance []*models.MaintenanceEvent
}

func (f *factSet) total() int {
	return len(f.inspections) + len(f.ncrs) + len(f.maintenance)
}

// businessKey extracts the dedup key for a raw row of the given kind,
// before normalization. Empty keys are handled by the required-field check.
func businessKey(kind parser.Kind, row parser.Row) string {
	switch kind {
	case parser.KindInspection:
		return field(row, "inspection_id")
	case parser.KindNCR:
		return field(row, "ncr_id")
	case parser.KindMaintenance:
		return field(row, "event_id")
	}
	return ""
}

// buildFacts converts raw rows into typed facts, collecting one failure per
// rejected row. Within one document the first occurrence of a business key
// wins; later occurrences are quarantined as duplicates.
func buildFacts(kind parser.Kind, documentID string, rows []parser.Row) (*factSet, map[int]*rowFailure) {
	facts := &factSet{}
	failures := make(map[int]*rowFailure)
	seen := make(map[string]int)

	for i, row := range rows {
		if key := businessKey(kind, row); key != "" {
			if first, dup := seen[key]; dup {
				failures[i] = validateFailure(models.FailureCodeDuplicateKey,
					"duplicate business key %q, first seen at row %d", key, rows[first].Number)
				continue
			}
			seen[key] = i
		}

		switch kind {
		case parser.KindInspection:
			fact, failure := buildInspection(documentID, row)
			if failure != nil {
				failures[i] = failure
				continue
			}
			facts.inspections = append(facts.inspections, fact)
		case parser.KindNCR:
			fact, failure := buildNCR(documentID, row)
			if failure != nil {
				failures[i] = failure
				continue
			}
			facts.ncrs = append(facts.ncrs, fact)
		case parser.KindMaintenance:
			fact, failure := buildMaintenanceEvent(documentID, row)
			if failure != nil {
				failures[i] = failure
				continue
			}
			facts.maintenance = append(facts.maintenance, fact)
		default:
			failures[i] = validateFailure(models.FailureCodeUnknownKind, "unknown document kind %q", kind)
		}
	}

	return facts, failures
}
