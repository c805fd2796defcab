// Package domain holds small shared types that cross package boundaries:
// discovered gRPC services, request history, and recent targets.
package domain

import "github.com/wirecat/wirecat/internal/descriptor"

// Service represents a gRPC service discovered via server reflection.
type Service struct {
	Name     string
	FullName string
	Methods  []Method
	Error    string // non-empty when descriptor resolution failed
}

// Method represents a gRPC method of a discovered service.
type Method struct {
	Name           string
	FullName       string
	InputType      string
	OutputType     string
	IsClientStream bool
	IsServerStream bool
}

// CallType maps the stream flags onto the descriptor call-type tags.
func (m Method) CallType() descriptor.CallType {
	switch {
	case m.IsClientStream && m.IsServerStream:
		return descriptor.CallBidiStreaming
	case m.IsServerStream:
		return descriptor.CallServerStreaming
	case m.IsClientStream:
		return descriptor.CallClientStreaming
	}
	return descriptor.CallUnary
}
