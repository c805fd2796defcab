package domain

import (
	"time"

	"github.com/wirecat/wirecat/internal/descriptor"
)

// HistoryEntry records one completed exchange for later inspection: a
// one-shot call, or a streaming session that reached a terminal state.
type HistoryEntry struct {
	ID        string              `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	Protocol  descriptor.Protocol `json:"protocol"`
	Target    string              `json:"target"`
	Method    string              `json:"method,omitempty"` // HTTP verb or full gRPC method
	SessionID string              `json:"sessionId,omitempty"`
	Request   string              `json:"request,omitempty"` // request body, auth redacted

	Status       string        `json:"status"` // "success", "error", "cancelled"
	StatusCode   int           `json:"statusCode,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	MessageCount int           `json:"messageCount,omitempty"` // data frames for streaming sessions
}

// Target is a recently used endpoint.
type Target struct {
	URL      string              `json:"url"`
	Protocol descriptor.Protocol `json:"protocol"`
}
