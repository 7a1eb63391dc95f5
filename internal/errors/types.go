package errors

import (
	"errors"
	"fmt"
)

var (
	ErrConfigInvalid   = errors.New("configuration invalid")
	ErrFetchFailed     = errors.New("fetch failed")
	ErrStagingFailed   = errors.New("staging failed")
	ErrBindingFailed   = errors.New("parameter binding failed")
	ErrExecutionFailed = errors.New("execution failed")
	ErrNonZeroExit     = errors.New("customer code exited with non-zero status")
)

// Kind classifies a failure record for the backend that consumes it.
type Kind string

const (
	KindInternalError       Kind = "internal_error"
	KindCustomerNonZeroExit Kind = "customer_nonzero_exit"
)

// JobError is a fatal orchestrator failure. Message is the operator-facing text
// written to the failure artifact.
type JobError struct {
	Type        error
	Message     string
	ExitCode    int
	OriginalErr error
}

func (e *JobError) Error() string {
	return e.Message
}

func (e *JobError) Unwrap() []error {
	if e.OriginalErr == nil {
		return []error{e.Type}
	}
	return []error{e.Type, e.OriginalErr}
}

// Kind returns customer_nonzero_exit for customer failures and internal_error otherwise.
func (e *JobError) Kind() Kind {
	if e.Type == ErrNonZeroExit {
		return KindCustomerNonZeroExit
	}
	return KindInternalError
}

func NewJobError(errorType error, message string, originalErr error) *JobError {
	return &JobError{
		Type:        errorType,
		Message:     message,
		OriginalErr: originalErr,
	}
}

func NewConfigError(message string, originalErr error) *JobError {
	if originalErr != nil {
		message = fmt.Sprintf("%s\n Exception: %v", message, originalErr)
	}
	return NewJobError(ErrConfigInvalid, message, originalErr)
}

func NewFetchError(originalErr error) *JobError {
	return NewJobError(ErrFetchFailed, fmt.Sprintf("Unable to download code.\nException: %v", originalErr), originalErr)
}

func NewStagingError(archivePath, compressionType string, originalErr error) *JobError {
	message := fmt.Sprintf("Got an exception while trying to unpack archive: %s of type: %s.\nException: %v",
		archivePath, compressionType, originalErr)
	return NewJobError(ErrStagingFailed, message, originalErr)
}

// NewCopyError reports a failure to stage a plain (non-archive) artifact.
func NewCopyError(path string, originalErr error) *JobError {
	return NewJobError(ErrStagingFailed, fmt.Sprintf("Unable to stage code: %s.\nException: %v", path, originalErr), originalErr)
}

func NewBindingError(entryPoint string, originalErr error) *JobError {
	return NewJobError(ErrBindingFailed, fmt.Sprintf("Unable to run job at entry point %s\nException: %v", entryPoint, originalErr), originalErr)
}

func NewExecutionError(entryPoint string, originalErr error) *JobError {
	return NewJobError(ErrExecutionFailed, fmt.Sprintf("Unable to run job at entry point %s\nException: %v", entryPoint, originalErr), originalErr)
}

// NewNonZeroExitError reports customer code that ran and failed. detail is the
// exception text the child reported, if any.
func NewNonZeroExitError(entryPoint string, exitCode int, detail string) *JobError {
	message := fmt.Sprintf("Job at %s exited with exit code: %d", entryPoint, exitCode)
	if detail != "" {
		message += "\nException: " + detail
	}
	return &JobError{
		Type:     ErrNonZeroExit,
		Message:  message,
		ExitCode: exitCode,
	}
}

// AsJobError returns err as a *JobError, wrapping unknown errors as internal failures.
func AsJobError(err error) *JobError {
	if err == nil {
		return nil
	}
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr
	}
	return NewJobError(ErrExecutionFailed, fmt.Sprintf("Job did not exit gracefully.\nException: %v", err), err)
}
