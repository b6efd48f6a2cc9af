package models

import "time"

// NCRStatus is the lifecycle state of a non-conformance report
type NCRStatus string

const (
	NCRStatusOpen      NCRStatus = "OPEN"
	NCRStatusInReview  NCRStatus = "IN_REVIEW"
	NCRStatusClosed    NCRStatus = "CLOSED"
	NCRStatusCancelled NCRStatus = "CANCELLED"
)

// NCRSeverity ranks the impact of a non-conformance
type NCRSeverity string

const (
	NCRSeverityLow      NCRSeverity = "LOW"
	NCRSeverityMedium   NCRSeverity = "MEDIUM"
	NCRSeverityHigh     NCRSeverity = "HIGH"
	NCRSeverityCritical NCRSeverity = "CRITICAL"
)

// NCR is a persisted non-conformance report. NCRID is the domain-unique
// business key. LinkedInspectionID is a soft link by inspection business key;
// the referenced inspection may arrive in a later document, so it is never a
// foreign key constraint.
type NCR struct {
	ID                 string      `json:"id" db:"id"`
	NCRID              string      `json:"ncr_id" db:"ncr_id"`
	DocumentID         string      `json:"document_id" db:"document_id"`
	LinkedInspectionID *string     `json:"linked_inspection_id,omitempty" db:"linked_inspection_id"`
	Site               string      `json:"site" db:"site"`
	Supplier           *string     `json:"supplier,omitempty" db:"supplier"`
	PartNumber         *string     `json:"part_number,omitempty" db:"part_number"`
	Description        string      `json:"description" db:"description"`
	Severity           NCRSeverity `json:"severity" db:"severity"`
	Status             NCRStatus   `json:"status" db:"status"`
	Disposition        *string     `json:"disposition,omitempty" db:"disposition"`
	OpenedDate         time.Time   `json:"opened_date" db:"opened_date"`
	ClosedDate         *time.Time  `json:"closed_date,omitempty" db:"closed_date"`
	AssignedTo         *string     `json:"assigned_to,omitempty" db:"assigned_to"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`
}

// DaysOpen reports how many whole days the NCR has been (or was) open.
// Closed NCRs freeze at their closed date; open NCRs count up to now.
func (n *NCR) DaysOpen(now time.Time) int {
	end := now
	if n.ClosedDate != nil {
		end = *n.ClosedDate
	}
	days := int(end.Sub(n.OpenedDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// NCRWithDocument embeds the source document reference plus the derived
// days-open count for read responses.
type NCRWithDocument struct {
	NCR
	DaysOpen int         `json:"days_open" db:"days_open"`
	Document DocumentRef `json:"document" db:"document"`
}

// NCRFilter narrows overdue-NCR queries
type NCRFilter struct {
	Site        *string      `json:"site,omitempty"`
	Severity    *NCRSeverity `json:"severity,omitempty"`
	OlderThan   *int         `json:"older_than,omitempty"`
	MinSeverity *NCRSeverity `json:"min_severity,omitempty"`
}

// severityRank orders severities for minimum-severity filters
var severityRank = map[NCRSeverity]int{
	NCRSeverityLow:      0,
	NCRSeverityMedium:   1,
	NCRSeverityHigh:     2,
	NCRSeverityCritical: 3,
}

// AtLeast reports whether s is at or above the given minimum severity
func (s NCRSeverity) AtLeast(min NCRSeverity) bool {
	return severityRank[s] >= severityRank[min]
}

// EvidenceChain is the full trace for one NCR: the report with its derived
// days-open count, its source document, the linked inspection (when
// resolved) and that inspection's own source document.
type EvidenceChain struct {
	NCR                NCR          `json:"ncr"`
	DaysOpen           int          `json:"days_open"`
	NCRDocument        DocumentRef  `json:"ncr_document"`
	Inspection         *Inspection  `json:"inspection,omitempty"`
	InspectionDocument *DocumentRef `json:"inspection_document,omitempty"`
}
