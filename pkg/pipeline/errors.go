package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ramsey-B/sorrel/pkg/models"
)

// StageError is a whole-stage failure. Transient errors are retried with
// backoff; data errors are not, they mark the run FAILED immediately.
type StageError struct {
	Code      models.FailureCode
	Transient bool
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with a failure code
func NewStageError(code models.FailureCode, transient bool, err error) *StageError {
	return &StageError{Code: code, Transient: transient, Err: err}
}

// Classify maps an arbitrary error onto the failure taxonomy. Deadline
// expiry becomes TIMEOUT, everything unrecognized becomes transient INFRA
// so a retry gets a chance before the run fails.
func Classify(err error) *StageError {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewStageError(models.FailureCodeTimeout, true, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewStageError(models.FailureCodeInfra, false, err)
	}

	return NewStageError(models.FailureCodeInfra, true, err)
}

// rowFailure is a single-row rejection produced while building facts. Stage
// records which pipeline stage the rejection belongs to.
type rowFailure struct {
	Stage  models.Stage
	Code   models.FailureCode
	Detail string
}

func normalizeFailure(code models.FailureCode, format string, args ...any) *rowFailure {
	return &rowFailure{Stage: models.StageNormalize, Code: code, Detail: fmt.Sprintf(format, args...)}
}

func validateFailure(code models.FailureCode, format string, args ...any) *rowFailure {
	return &rowFailure{Stage: models.StageValidate, Code: code, Detail: fmt.Sprintf(format, args...)}
}
