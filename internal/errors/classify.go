package errors

import (
	"context"
	"errors"
)

// Severity indicates how an error should be presented by the host.
type Severity int

const (
	SeverityInfo    Severity = iota // notable but not an error state
	SeverityWarning                 // degraded functionality
	SeverityError                   // operation failed, can retry
	SeverityFatal                   // unrecoverable
)

// Machine-readable error codes carried on event-log error records.
const (
	CodeConnectFailed  = "CONNECT_FAILED"
	CodeSendFailed     = "SEND_FAILED"
	CodeReceiveFailed  = "RECEIVE_FAILED"
	CodeTimeout        = "TIMEOUT"
	CodeCancelled      = "CANCELLED"
	CodeCleanupWarning = "CLEANUP_WARNING" // info-classified notice, must not flip the error flag
	CodeUnknown        = "UNKNOWN"
)

// EngineError wraps an error with the metadata the engine attaches to
// system-error events: a machine code, a short message, and severity.
type EngineError struct {
	Err      error
	Severity Severity
	Code     string
	Message  string
	Details  string
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Classify converts a standard error into an EngineError with an appropriate
// code and severity. Errors that are already classified pass through.
func Classify(err error) *EngineError {
	if err == nil {
		return nil
	}

	var engErr *EngineError
	if errors.As(err, &engErr) {
		return engErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return &EngineError{
			Err:      err,
			Severity: SeverityError,
			Code:     CodeTimeout,
			Message:  "the operation timed out",
		}

	case errors.Is(err, context.Canceled):
		return &EngineError{
			Err:      err,
			Severity: SeverityInfo,
			Code:     CodeCancelled,
			Message:  "the operation was cancelled",
		}

	case errors.Is(err, ErrConnectionFailed):
		return &EngineError{
			Err:      err,
			Severity: SeverityError,
			Code:     CodeConnectFailed,
			Message:  "unable to connect to the endpoint",
			Details:  err.Error(),
		}

	case errors.Is(err, ErrReflectionUnavailable):
		return &EngineError{
			Err:      err,
			Severity: SeverityWarning,
			Code:     CodeConnectFailed,
			Message:  "the server does not support gRPC reflection",
			Details:  err.Error(),
		}
	}

	var validationErr ValidationError
	if errors.As(err, &validationErr) {
		return &EngineError{
			Err:      err,
			Severity: SeverityError,
			Code:     CodeUnknown,
			Message:  validationErr.Message,
			Details:  validationErr.Error(),
		}
	}

	return &EngineError{
		Err:      err,
		Severity: SeverityError,
		Code:     CodeUnknown,
		Message:  err.Error(),
	}
}
