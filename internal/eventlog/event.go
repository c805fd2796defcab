// Package eventlog provides the append-only, strictly time-ordered record of
// everything that happened on a session. The log is the single source of
// truth for replay and export: events are never reordered or mutated after
// append, and subscribers attaching late receive the full history before any
// live event, with no gap and no duplication.
package eventlog

import "time"

// Kind discriminates the event variant.
type Kind string

const (
	KindSystemOpen    Kind = "system-open"
	KindSystemPause   Kind = "system-pause"
	KindSystemClose   Kind = "system-close"
	KindSystemError   Kind = "system-error"
	KindSystemCancel  Kind = "system-cancel"
	KindDataSent      Kind = "data-sent"
	KindDataReceived  Kind = "data-received"
	KindUnaryResponse Kind = "unary-response"
)

// System reports whether the kind is a lifecycle event rather than an
// application data frame.
func (k Kind) System() bool {
	switch k {
	case KindDataSent, KindDataReceived, KindUnaryResponse:
		return false
	}
	return true
}

// Direction returns "sent" or "received" for data frames, "" otherwise.
func (k Kind) Direction() string {
	switch k {
	case KindDataSent:
		return "sent"
	case KindDataReceived, KindUnaryResponse:
		return "received"
	}
	return ""
}

// ErrorInfo is the payload of a system-error event.
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Event is one immutable record in a session's log. Kind determines which
// payload fields are meaningful: Data for data frames and unary responses,
// Error for system-error, Code/Reason for close and pause events.
type Event struct {
	SessionID string     `json:"sessionId"`
	Kind      Kind       `json:"kind"`
	Timestamp time.Time  `json:"timestamp"`
	Data      []byte     `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Code      int        `json:"code,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}
