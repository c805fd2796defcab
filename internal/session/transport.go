package session

import (
	"context"

	"github.com/wirecat/wirecat/internal/descriptor"
)

// TransportEventKind discriminates events produced by a Transport.
type TransportEventKind int

const (
	// TransportData is an application frame received from the peer.
	TransportData TransportEventKind = iota
	// TransportError is a transport-level failure. Fatal errors mean the
	// underlying connection is lost; non-fatal ones are informational.
	TransportError
	// TransportClosed means the peer or the transport ended the connection.
	TransportClosed
)

// TransportEvent is one asynchronous notification from a live transport.
type TransportEvent struct {
	Kind   TransportEventKind
	Data   []byte
	Err    error
	Fatal  bool
	Code   int
	Reason string
}

// Transport is the injected port over one live connection. Implementations
// exist for WebSocket and gRPC streaming calls; tests substitute fakes so
// the session manager runs without a network.
//
// Connect returns the event channel for the connection. The channel is
// closed when the transport will produce no further events. Send and Close
// are asynchronous with respect to event delivery: events keep arriving on
// the channel regardless of which call initiated the activity.
type Transport interface {
	Connect(ctx context.Context) (<-chan TransportEvent, error)
	Send(ctx context.Context, payload []byte) error
	Close(ctx context.Context, code int, reason string) error
}

// Finisher is implemented by transports whose graceful close yields final
// frames: a client-streaming gRPC call returns its aggregated response on
// close, and a bidirectional stream may drain remaining server messages.
// The manager appends the returned frames as received data before the
// system-close event.
type Finisher interface {
	Finish(ctx context.Context) ([][]byte, error)
}

// Factory constructs an unconnected Transport for a resolved request. Dial
// must not touch the network; connection happens in Transport.Connect so
// that resume can re-establish against the same target.
type Factory interface {
	Dial(req *descriptor.ConcreteRequest) (Transport, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(req *descriptor.ConcreteRequest) (Transport, error)

// Dial implements Factory.
func (f FactoryFunc) Dial(req *descriptor.ConcreteRequest) (Transport, error) {
	return f(req)
}

// UnaryInvoker executes a single request-response exchange. Unary gRPC calls
// have no persistent connection: the transport is established and torn down
// per call.
type UnaryInvoker interface {
	Invoke(ctx context.Context, req *descriptor.ConcreteRequest, payload []byte) ([]byte, error)
}
