// Package errors defines the engine's error taxonomy: validation errors
// reported synchronously to callers, and transport/protocol errors that flow
// into session event logs as structured records.
package errors

import "errors"

// Sentinel errors for common failure modes.
var (
	ErrConnectionFailed      = errors.New("connection failed")
	ErrReflectionUnavailable = errors.New("reflection not available")
	ErrTimeout               = errors.New("operation timed out")
	ErrSessionNotFound       = errors.New("session not found")
	ErrInvalidState          = errors.New("operation not legal in current session state")
	ErrSendNotSupported      = errors.New("send not supported for this call type")
)

// ValidationError represents a descriptor field validation failure. It is
// returned synchronously from resolution, before any connection attempt.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
