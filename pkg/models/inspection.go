package models

import "time"

// InspectionResult is the closed result enumeration for inspections
type InspectionResult string

const (
	InspectionResultPass        InspectionResult = "PASS"
	InspectionResultFail        InspectionResult = "FAIL"
	InspectionResultConditional InspectionResult = "CONDITIONAL"
)

// Inspection is a persisted inspection fact. InspectionID is the
// domain-unique business key; DocumentID references the source evidence.
type Inspection struct {
	ID               string           `json:"id" db:"id"`
	InspectionID     string           `json:"inspection_id" db:"inspection_id"`
	DocumentID       string           `json:"document_id" db:"document_id"`
	Site             string           `json:"site" db:"site"`
	ProductionLine   *string          `json:"production_line,omitempty" db:"production_line"`
	Supplier         *string          `json:"supplier,omitempty" db:"supplier"`
	PartNumber       *string          `json:"part_number,omitempty" db:"part_number"`
	PartDescription  *string          `json:"part_description,omitempty" db:"part_description"`
	InspectionDate   time.Time        `json:"inspection_date" db:"inspection_date"`
	Inspector        *string          `json:"inspector,omitempty" db:"inspector"`
	Result           InspectionResult `json:"result" db:"result"`
	MeasurementValue *float64         `json:"measurement_value,omitempty" db:"measurement_value"`
	MeasurementUnit  *string          `json:"measurement_unit,omitempty" db:"measurement_unit"`
	SpecMin          *float64         `json:"spec_min,omitempty" db:"spec_min"`
	SpecMax          *float64         `json:"spec_max,omitempty" db:"spec_max"`
	Notes            *string          `json:"notes,omitempty" db:"notes"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// InspectionWithDocument embeds the source document reference for read responses
type InspectionWithDocument struct {
	Inspection
	Document DocumentRef `json:"document" db:"document"`
}

// InspectionFilter narrows failed-inspection queries
type InspectionFilter struct {
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	Site     *string    `json:"site,omitempty"`
	Line     *string    `json:"line,omitempty"`
	Supplier *string    `json:"supplier,omitempty"`
	Part     *string    `json:"part,omitempty"`
}

// FailureGroupBy selects the grouping dimension for top failure sources
type FailureGroupBy string

const (
	FailureGroupBySupplier FailureGroupBy = "supplier"
	FailureGroupByMachine  FailureGroupBy = "machine"
	FailureGroupByPart     FailureGroupBy = "part"
)

// FailureSource is one ranked entry of a top-failure-sources query
type FailureSource struct {
	Category     string  `json:"category" db:"category"`
	FailureCount int     `json:"failure_count" db:"failure_count"`
	Percentage   float64 `json:"percentage" db:"percentage"`
}

// TrendPeriod selects the bucket size for failure trends
type TrendPeriod string

const (
	TrendPeriodWeek  TrendPeriod = "week"
	TrendPeriodMonth TrendPeriod = "month"
)

// TrendPoint is one bucket of the failure trend time series
type TrendPoint struct {
	PeriodStart     time.Time `json:"period_start" db:"period_start"`
	FailureCount    int       `json:"failure_count" db:"failure_count"`
	InspectionCount int       `json:"inspection_count" db:"inspection_count"`
	FailureRate     float64   `json:"failure_rate" db:"failure_rate"`
}
