package models

import (
	"fmt"
	"time"
)

// Stage is one discrete step of the ingestion pipeline
type Stage string

const (
	StageReceive   Stage = "RECEIVE"
	StageParse     Stage = "PARSE"
	StageNormalize Stage = "NORMALIZE"
	StageValidate  Stage = "VALIDATE"
	StagePersist   Stage = "PERSIST"
)

// knownStages guards external stage input. Order is fixed by Next.
var knownStages = map[Stage]struct{}{
	StageReceive:   {},
	StageParse:     {},
	StageNormalize: {},
	StageValidate:  {},
	StagePersist:   {},
}

// Next returns the stage that follows s, or false if s is the last stage
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageReceive:
		return StageParse, true
	case StageParse:
		return StageNormalize, true
	case StageNormalize:
		return StageValidate, true
	case StageValidate:
		return StagePersist, true
	default:
		return "", false
	}
}

// ParseStage validates a stage name from external input
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if _, ok := knownStages[stage]; !ok {
		return "", fmt.Errorf("unknown stage: %q", s)
	}
	return stage, nil
}

// RunStatus is the outcome of one stage execution
type RunStatus string

const (
	RunStatusPending RunStatus = "PENDING"
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
	RunStatusPartial RunStatus = "PARTIAL"
)

// IsTerminal reports whether the status is final for a run
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed || s == RunStatusPartial
}

// Advanceable reports whether a run with this status allows the document to
// move on to the next stage.
func (s RunStatus) Advanceable() bool {
	return s == RunStatusSuccess || s == RunStatusPartial
}

// ProcessingRun is one immutable audit entry: (document, stage, attempt).
// Failures are appended as new runs, never edited in place. The document's
// current state is always derived from its latest terminal run.
type ProcessingRun struct {
	ID            string     `json:"id" db:"id"`
	DocumentID    string     `json:"document_id" db:"document_id"`
	Stage         Stage      `json:"stage" db:"stage"`
	Status        RunStatus  `json:"status" db:"status"`
	FailureCode   *string    `json:"failure_code,omitempty" db:"failure_code"`
	ErrorDetail   *string    `json:"error_detail,omitempty" db:"error_detail"`
	RowsAttempted int        `json:"rows_attempted" db:"rows_attempted"`
	RowsSucceeded int        `json:"rows_succeeded" db:"rows_succeeded"`
	RowsFailed    int        `json:"rows_failed" db:"rows_failed"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// IngestionRun is a processing run joined with its document for health queries
type IngestionRun struct {
	ProcessingRun
	Filename *string `json:"filename,omitempty" db:"filename"`
}
