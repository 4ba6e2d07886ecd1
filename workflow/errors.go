package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrRevalidationInFlight rejects a revalidate call while a previous
	// one is still running for the same workspace.
	ErrRevalidationInFlight = errors.New("revalidation already in progress")

	// ErrStaleDeleteMark means the row marked for deletion is no longer
	// the row at that index; the mark must be set again.
	ErrStaleDeleteMark = errors.New("marked row changed, delete must be re-confirmed")

	ErrNoDeleteMark = errors.New("no row marked for deletion")

	ErrWorkspaceNotFound = errors.New("workspace not found")

	ErrEmptyBatch = errors.New("workspace has no records")

	ErrRowOutOfRange = errors.New("row index out of range")
)

// ApprovalBlockedError is the business gate: a batch with any
// error-status record cannot be approved.
type ApprovalBlockedError struct {
	ErrorCount int
}

func (e *ApprovalBlockedError) Error() string {
	return fmt.Sprintf("approval blocked: %d record(s) still have validation errors", e.ErrorCount)
}

// CommitError is a retryable persistence failure during approval. The
// in-memory batch is preserved so the operator can try again.
type CommitError struct {
	Stage string
	Err   error
}

func (e *CommitError) Error() string {
	return "approval commit failed at " + e.Stage + ": " + e.Err.Error()
}

func (e *CommitError) Unwrap() error { return e.Err }
