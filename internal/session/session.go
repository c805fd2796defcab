// Package session owns the lifecycle of long-lived connections: one state
// machine per session, driven by asynchronous transport events, with every
// observable change appended to the session's event log.
package session

import (
	"sync"
	"time"

	"github.com/wirecat/wirecat/internal/descriptor"
)

// State is a session lifecycle state.
type State int

const (
	// StateIdle is the initial state of unary gRPC sessions, which connect
	// lazily on first send.
	StateIdle State = iota
	StateConnecting
	StateOpen
	StatePaused
	// StateSending and StateResponded belong to the reduced unary
	// sub-machine: Idle -> Sending -> (Responded | Errored), with Send able
	// to re-enter Sending from Responded or Errored.
	StateSending
	StateResponded
	StateClosed
	StateErrored
	StateCancelled
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StatePaused:
		return "paused"
	case StateSending:
		return "sending"
	case StateResponded:
		return "responded"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether no further lifecycle transitions are possible.
// Unary sessions are the exception: Send may re-enter Sending from
// Responded or Errored, which the manager checks per call type.
func (s State) Terminal() bool {
	switch s {
	case StateClosed, StateErrored, StateCancelled:
		return true
	}
	return false
}

// Session identifies one live connection. All mutation goes through the
// Manager; consumers read the immutable identity fields and the Info
// snapshot.
type Session struct {
	ID        string
	Protocol  descriptor.Protocol
	CallType  descriptor.CallType
	Target    string
	CreatedAt time.Time

	mu        sync.Mutex
	state     State
	request   *descriptor.ConcreteRequest
	transport Transport
	// gen invalidates in-flight transport pumps: it increments whenever the
	// transport is replaced or deliberately torn down, so a stale pump
	// cannot append events after pause, resume, close, or cancel.
	gen       int
	observers int
}

// Unary reports whether the session follows the reduced unary sub-machine.
func (s *Session) Unary() bool {
	return s.CallType == descriptor.CallUnary &&
		(s.Protocol == descriptor.ProtocolGRPC || s.Protocol == descriptor.ProtocolGRPCS)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Request returns the resolved request the session was created from.
func (s *Session) Request() *descriptor.ConcreteRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}

// Info is a point-in-time snapshot of session metadata, safe to hand to
// converters and observers.
type Info struct {
	ID        string                 `json:"sessionId"`
	Protocol  descriptor.Protocol    `json:"protocol"`
	CallType  descriptor.CallType    `json:"callType,omitempty"`
	Target    string                 `json:"target"`
	State     string                 `json:"state"`
	CreatedAt time.Time              `json:"createdAt"`
	Grpc      *descriptor.GrpcExtras `json:"grpc,omitempty"`
}

// Info returns a snapshot of the session's metadata.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:        s.ID,
		Protocol:  s.Protocol,
		CallType:  s.CallType,
		Target:    s.Target,
		State:     s.state.String(),
		CreatedAt: s.CreatedAt,
	}
	if s.request != nil {
		info.Grpc = s.request.Grpc
	}
	return info
}
