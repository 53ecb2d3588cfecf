package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNothingToRetry = errors.New("nothing to retry")
	ErrClosed         = errors.New("tracker closed")
)

// InvalidRequestError wraps ErrInvalidRequest with a reason.
func InvalidRequestError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, reason)
}

// ErrorKind classifies remote job failures.
type ErrorKind string

const (
	// ErrorKindStartFailed covers transport or HTTP failures while creating a job.
	ErrorKindStartFailed ErrorKind = "start_failed"
	// ErrorKindRemoteRejected is a 2xx response that carries an error field.
	ErrorKindRemoteRejected ErrorKind = "remote_rejected"
	// ErrorKindPollFailed covers transport or HTTP failures during a status check.
	ErrorKindPollFailed ErrorKind = "poll_failed"
	// ErrorKindTimeout means the job did not settle within the poll budget.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindUploadFailed means an inline image could not be staged.
	ErrorKindUploadFailed ErrorKind = "upload_failed"
)

// JobError is the typed failure produced at the remote client boundary.
type JobError struct {
	Kind   ErrorKind
	JobID  string
	Detail string
	Err    error
}

// NewJobError builds a JobError; detail may be empty when err explains enough.
func NewJobError(kind ErrorKind, jobID, detail string, err error) *JobError {
	return &JobError{Kind: kind, JobID: jobID, Detail: detail, Err: err}
}

// Error implements the error interface.
func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message()
	if e.JobID != "" {
		return fmt.Sprintf("%s (job_id=%s): %s", e.Kind, e.JobID, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *JobError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message is the human-readable text shown to users.
func (e *JobError) Message() string {
	if e == nil {
		return ""
	}
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	switch e.Kind {
	case ErrorKindStartFailed:
		return "failed to start generation"
	case ErrorKindPollFailed:
		return "failed to check generation status"
	case ErrorKindTimeout:
		return "generation timed out"
	case ErrorKindUploadFailed:
		return "failed to upload image"
	default:
		return "generation failed"
	}
}

// IsKind reports whether err is a JobError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var jobErr *JobError
	return errors.As(err, &jobErr) && jobErr.Kind == kind
}
