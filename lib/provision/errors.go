package provision

import (
	"errors"
	"fmt"
)

// FailureKind partitions everything that can go wrong into the classes the
// retry policy and the operator report care about.
type FailureKind string

const (
	FailureValidation   FailureKind = "validation"
	FailurePermission   FailureKind = "permission_denied"
	FailureDiskNotFound FailureKind = "disk_not_found"
	FailureInventory    FailureKind = "inventory_unavailable"
	FailureTimeout      FailureKind = "execution_timeout"
	FailureExecution    FailureKind = "execution_failure"
	FailureVerification FailureKind = "verification_failure"
)

// Retryable reports whether a failure of this kind may be retried.
// Transitory tool failures and timeouts are; bad plans, missing privileges
// and failed post-condition checks never are. A verification failure means
// the tool's success signal was wrong, and re-running a clean against a
// partially set-up disk risks data loss.
func (k FailureKind) Retryable() bool {
	return k == FailureTimeout || k == FailureExecution
}

// StepError is a workflow failure pinned to the step that produced it. All
// platform and process errors are translated into one of the FailureKind
// classes at the component boundary; none escape raw.
type StepError struct {
	Step Step
	Kind FailureKind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %s: %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(step Step, kind FailureKind, err error) *StepError {
	return &StepError{Step: step, Kind: kind, Err: err}
}

func stepErrf(step Step, kind FailureKind, format string, args ...any) *StepError {
	return &StepError{Step: step, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// AsStepError unwraps a StepError from an error chain.
func AsStepError(err error) (*StepError, bool) {
	var serr *StepError
	ok := errors.As(err, &serr)
	return serr, ok
}
