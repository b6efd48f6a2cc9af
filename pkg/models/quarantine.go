package models

import (
	"encoding/json"
	"time"
)

// FailureCode is the closed taxonomy of ingestion failures. Codes are stable
// identifiers consumed by dashboards and alerting, never free text.
type FailureCode string

const (
	FailureCodeParseMalformed  FailureCode = "PARSE_MALFORMED"
	FailureCodeMissingRequired FailureCode = "MISSING_REQUIRED_FIELD"
	FailureCodeBadDate         FailureCode = "BAD_DATE"
	FailureCodeBadNumber       FailureCode = "BAD_NUMBER"
	FailureCodeBadUnit         FailureCode = "BAD_UNIT"
	FailureCodeUnknownEnum     FailureCode = "UNKNOWN_ENUM"
	FailureCodeDuplicateKey    FailureCode = "DUPLICATE_KEY"
	FailureCodeUnknownKind     FailureCode = "UNKNOWN_KIND"
	FailureCodeIOError         FailureCode = "IO_ERROR"
	FailureCodeTimeout         FailureCode = "TIMEOUT"
	FailureCodeInfra           FailureCode = "INFRA"
)

// QuarantineRow preserves a rejected input row verbatim together with the
// reason it was rejected. Quarantined rows never block sibling rows and are
// only ever re-ingested by manual resubmission.
type QuarantineRow struct {
	ID            string          `json:"id" db:"id"`
	DocumentID    string          `json:"document_id" db:"document_id"`
	Stage         Stage           `json:"stage" db:"stage"`
	RowNumber     int             `json:"row_number" db:"row_number"`
	RawData       json.RawMessage `json:"raw_data" db:"raw_data"`
	FailureCode   FailureCode     `json:"failure_code" db:"failure_code"`
	FailureDetail string          `json:"failure_detail" db:"failure_detail"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// QuarantineRowWithDocument embeds the source document for ops views
type QuarantineRowWithDocument struct {
	QuarantineRow
	Filename string `json:"filename" db:"filename"`
}

// QuarantineSummary aggregates quarantine counts per failure code
type QuarantineSummary struct {
	FailureCode FailureCode `json:"failure_code" db:"failure_code"`
	Count       int         `json:"count" db:"count"`
}
