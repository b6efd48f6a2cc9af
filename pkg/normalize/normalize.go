// Package normalize provides the pure normalization functions applied to raw
// rows before validation. All functions are deterministic and side-effect
// free; callers map the returned errors onto quarantine failure codes.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Ramsey-B/sorrel/pkg/models"
)

// Date layouts accepted from source files. All values parse as UTC; source
// systems do not carry zone information.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"02/01/2006",
	"2006-01-02 15:04:05",
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000000",
	"01/02/2006 15:04:05",
	"2006-01-02",
}

// Date parses a date string in any accepted layout. Time-of-day components
// are dropped. Empty input is the caller's concern; it is rejected here.
func Date(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %q", value)
}

// DateTime parses a timestamp string. A bare date parses as midnight UTC.
func DateTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty datetime")
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse datetime: %q", value)
}

// Decimal parses a numeric string, tolerating thousands separators.
func Decimal(value string) (float64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if value == "" {
		return 0, fmt.Errorf("empty number")
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse decimal: %q", value)
	}
	return f, nil
}

// Unit converts a measurement to its canonical unit. Lengths standardize to
// mm, forces to N. Percent values at or below 1 are treated as ratios and
// scaled; the result is clamped to [0, 100].
func Unit(value, unit string) (float64, string, error) {
	numeric, err := Decimal(value)
	if err != nil {
		return 0, unit, err
	}

	canonical := strings.ToLower(strings.TrimSpace(unit))

	switch canonical {
	case "%", "percent", "pct":
		if numeric <= 1 {
			numeric = numeric * 100
		}
		if numeric < 0 {
			numeric = 0
		}
		if numeric > 100 {
			numeric = 100
		}
		return numeric, "%", nil
	case "cm", "centimeter", "centimeters":
		return numeric * 10, "mm", nil
	case "m", "meter", "meters":
		return numeric * 1000, "mm", nil
	case "mm", "millimeter", "millimeters":
		return numeric, "mm", nil
	case "kn", "kilonewton", "kilonewtons":
		return numeric * 1000, "N", nil
	case "n", "newton", "newtons":
		return numeric, "N", nil
	case "":
		return numeric, "", nil
	default:
		return 0, unit, fmt.Errorf("unknown unit: %q", unit)
	}
}

// CleanString trims whitespace and applies a max length. Empty input maps to
// nil so blank CSV cells become SQL nulls.
func CleanString(value string, maxLength int) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if maxLength > 0 && len(value) > maxLength {
		value = value[:maxLength]
	}
	return &value
}

// canonicalToken uppercases and collapses separators so "In Review",
// "in-review" and "IN_REVIEW" all compare equal.
func canonicalToken(value string) string {
	value = strings.ToUpper(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, "-", "_")
	value = strings.ReplaceAll(value, " ", "_")
	return value
}

var inspectionResultSynonyms = map[string]models.InspectionResult{
	"PASS":        models.InspectionResultPass,
	"PASSED":      models.InspectionResultPass,
	"OK":          models.InspectionResultPass,
	"GOOD":        models.InspectionResultPass,
	"FAIL":        models.InspectionResultFail,
	"FAILED":      models.InspectionResultFail,
	"REJECT":      models.InspectionResultFail,
	"REJECTED":    models.InspectionResultFail,
	"CONDITIONAL": models.InspectionResultConditional,
	"COND":        models.InspectionResultConditional,
	"PARTIAL":     models.InspectionResultConditional,
}

// InspectionResult maps source spellings onto the closed result enum.
// Unrecognized values are an error, never coerced to a default.
func InspectionResult(value string) (models.InspectionResult, error) {
	result, ok := inspectionResultSynonyms[canonicalToken(value)]
	if !ok {
		return "", fmt.Errorf("unknown inspection result: %q", value)
	}
	return result, nil
}

var ncrStatusSynonyms = map[string]models.NCRStatus{
	"OPEN":      models.NCRStatusOpen,
	"OPENED":    models.NCRStatusOpen,
	"NEW":       models.NCRStatusOpen,
	"IN_REVIEW": models.NCRStatusInReview,
	"REVIEW":    models.NCRStatusInReview,
	"REVIEWING": models.NCRStatusInReview,
	"CLOSED":    models.NCRStatusClosed,
	"CLOSE":     models.NCRStatusClosed,
	"RESOLVED":  models.NCRStatusClosed,
	"CANCELLED": models.NCRStatusCancelled,
	"CANCELED":  models.NCRStatusCancelled,
	"CANCEL":    models.NCRStatusCancelled,
}

func NCRStatus(value string) (models.NCRStatus, error) {
	status, ok := ncrStatusSynonyms[canonicalToken(value)]
	if !ok {
		return "", fmt.Errorf("unknown NCR status: %q", value)
	}
	return status, nil
}

var ncrSeveritySynonyms = map[string]models.NCRSeverity{
	"LOW":      models.NCRSeverityLow,
	"L":        models.NCRSeverityLow,
	"MINOR":    models.NCRSeverityLow,
	"MEDIUM":   models.NCRSeverityMedium,
	"MED":      models.NCRSeverityMedium,
	"M":        models.NCRSeverityMedium,
	"MODERATE": models.NCRSeverityMedium,
	"HIGH":     models.NCRSeverityHigh,
	"H":        models.NCRSeverityHigh,
	"MAJOR":    models.NCRSeverityHigh,
	"CRITICAL": models.NCRSeverityCritical,
	"CRIT":     models.NCRSeverityCritical,
	"C":        models.NCRSeverityCritical,
	"SEVERE":   models.NCRSeverityCritical,
}

func NCRSeverity(value string) (models.NCRSeverity, error) {
	severity, ok := ncrSeveritySynonyms[canonicalToken(value)]
	if !ok {
		return "", fmt.Errorf("unknown NCR severity: %q", value)
	}
	return severity, nil
}

var maintenanceTypeSynonyms = map[string]models.MaintenanceType{
	"PREVENTIVE":   models.MaintenanceTypePreventive,
	"PREVENTATIVE": models.MaintenanceTypePreventive,
	"PM":           models.MaintenanceTypePreventive,
	"CORRECTIVE":   models.MaintenanceTypeCorrective,
	"REPAIR":       models.MaintenanceTypeCorrective,
	"BREAKDOWN":    models.MaintenanceTypeCorrective,
	"INSPECTION":   models.MaintenanceTypeInspection,
	"CALIBRATION":  models.MaintenanceTypeCalibration,
	"CAL":          models.MaintenanceTypeCalibration,
}

func MaintenanceType(value string) (models.MaintenanceType, error) {
	eventType, ok := maintenanceTypeSynonyms[canonicalToken(value)]
	if !ok {
		return "", fmt.Errorf("unknown maintenance type: %q", value)
	}
	return eventType, nil
}
