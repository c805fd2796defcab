package grpcport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/dynamic/grpcdynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/runtime/protoiface"

	"github.com/wirecat/wirecat/internal/descriptor"
	"github.com/wirecat/wirecat/internal/errors"
	"github.com/wirecat/wirecat/internal/session"
)

// NewFactory returns the session transport factory for streaming gRPC
// requests (server, client, and bidirectional streams). Unary calls go
// through the Invoker instead.
func NewFactory(logger *slog.Logger) session.Factory {
	return session.FactoryFunc(func(req *descriptor.ConcreteRequest) (session.Transport, error) {
		if req.Grpc == nil || req.Grpc.CallType == descriptor.CallUnary {
			return nil, fmt.Errorf("streaming transport requires a streaming call type")
		}
		return &streamTransport{req: req, logger: logger}, nil
	})
}

type streamTransport struct {
	req    *descriptor.ConcreteRequest
	logger *slog.Logger

	conn    *grpc.ClientConn
	method  *desc.MethodDescriptor
	events  chan session.TransportEvent
	callCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	bidi     *grpcdynamic.BidiStream
	client   *grpcdynamic.ClientStream
	finished bool

	closeOnce sync.Once // closes events in client-streaming mode only
}

// Connect dials the endpoint, resolves the method schema, and starts the
// call. Server and bidirectional streams begin receiving immediately;
// client streams accept sends until Finish closes them.
func (t *streamTransport) Connect(ctx context.Context) (<-chan session.TransportEvent, error) {
	conn, err := dialConn(t.req)
	if err != nil {
		return nil, err
	}

	method, err := resolveMethod(ctx, conn, t.req.Grpc)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// The call outlives Connect's deadline; Close cancels it.
	callCtx, cancel := context.WithCancel(context.Background())
	if md := buildMetadata(t.req); len(md) > 0 {
		callCtx = metadata.NewOutgoingContext(callCtx, md)
	}

	t.conn = conn
	t.method = method
	t.callCtx = callCtx
	t.cancel = cancel
	t.events = make(chan session.TransportEvent, 16)

	stub := grpcdynamic.NewStub(conn)
	methodName := method.GetFullyQualifiedName()

	switch t.req.Grpc.CallType {
	case descriptor.CallServerStreaming:
		reqMsg, err := t.message(t.req.Body)
		if err != nil {
			t.teardown()
			return nil, err
		}
		stream, err := stub.InvokeRpcServerStream(callCtx, method, reqMsg)
		if err != nil {
			t.teardown()
			return nil, err
		}
		t.logger.Debug("server stream started", slog.String("method", methodName))
		go t.recvLoop(stream.RecvMsg)

	case descriptor.CallBidiStreaming:
		stream, err := stub.InvokeRpcBidiStream(callCtx, method)
		if err != nil {
			t.teardown()
			return nil, err
		}
		t.bidi = stream
		t.logger.Debug("bidi stream started", slog.String("method", methodName))
		go t.recvLoop(stream.RecvMsg)

	case descriptor.CallClientStreaming:
		stream, err := stub.InvokeRpcClientStream(callCtx, method)
		if err != nil {
			t.teardown()
			return nil, err
		}
		t.client = stream
		t.logger.Debug("client stream started", slog.String("method", methodName))

	default:
		t.teardown()
		return nil, fmt.Errorf("unsupported call type %q", string(t.req.Grpc.CallType))
	}

	return t.events, nil
}

// recvLoop pumps received messages into the event channel. It owns closing
// the channel for server and bidi streams; Close only cancels the call
// context, which unblocks the pending receive.
func (t *streamTransport) recvLoop(recv func() (protoiface.MessageV1, error)) {
	defer close(t.events)
	for {
		msg, err := recv()
		if err == io.EOF {
			t.emit(session.TransportEvent{Kind: session.TransportClosed})
			return
		}
		if err != nil {
			if t.callCtx.Err() != nil {
				// Locally cancelled; the session already reflects teardown.
				return
			}
			t.emit(session.TransportEvent{Kind: session.TransportError, Err: err, Fatal: true})
			return
		}

		data, err := msg.(*dynamic.Message).MarshalJSON()
		if err != nil {
			t.emit(session.TransportEvent{
				Kind:  session.TransportError,
				Err:   fmt.Errorf("failed to format stream message: %w", err),
				Fatal: true,
			})
			return
		}
		t.logger.Debug("stream message received",
			slog.String("method", t.method.GetFullyQualifiedName()),
			slog.String("body", truncateForLog(string(data))),
		)
		t.emit(session.TransportEvent{Kind: session.TransportData, Data: data})
	}
}

// emit delivers an event unless the call has been abandoned, so an
// unconsumed channel cannot wedge the loop.
func (t *streamTransport) emit(e session.TransportEvent) {
	select {
	case t.events <- e:
	case <-t.callCtx.Done():
	}
}

// Send marshals a JSON payload into the method's input type and writes it
// to the stream. Server streams receive only; sending on one reports
// ErrSendNotSupported without poisoning the call.
func (t *streamTransport) Send(ctx context.Context, payload []byte) error {
	msg, err := t.message(payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.bidi != nil:
		return t.bidi.SendMsg(msg)
	case t.client != nil:
		if t.finished {
			return fmt.Errorf("client stream already finished")
		}
		return t.client.SendMsg(msg)
	}
	return fmt.Errorf("%w: %s is server streaming", errors.ErrSendNotSupported, t.method.GetName())
}

// Finish closes the send side of a client stream and returns the server's
// aggregated response. For other call types it is a no-op.
func (t *streamTransport) Finish(ctx context.Context) ([][]byte, error) {
	t.mu.Lock()
	stream := t.client
	if stream == nil || t.finished {
		t.mu.Unlock()
		return nil, nil
	}
	t.finished = true
	t.mu.Unlock()

	type result struct {
		msg protoiface.MessageV1
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := stream.CloseAndReceive()
		done <- result{msg: msg, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		t.cancel()
		res = <-done
	}

	t.closeOnce.Do(func() { close(t.events) })
	t.teardown()

	if res.err != nil {
		return nil, res.err
	}
	data, err := res.msg.(*dynamic.Message).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to format response: %w", err)
	}
	return [][]byte{data}, nil
}

// Close cancels the call and releases the connection. For bidirectional
// streams this may drop frames the server sent after the close request.
func (t *streamTransport) Close(ctx context.Context, code int, reason string) error {
	t.mu.Lock()
	clientMode := t.client != nil
	t.mu.Unlock()

	t.teardown()
	if clientMode {
		t.closeOnce.Do(func() { close(t.events) })
	}
	return nil
}

func (t *streamTransport) teardown() {
	if t.cancel != nil {
		t.cancel()
	}
	if t.conn != nil {
		t.conn.Close()
	}
}

// message builds a dynamic input message from a JSON payload. An empty
// payload sends the empty message.
func (t *streamTransport) message(payload []byte) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(t.method.GetInputType())
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return msg, nil
	}
	if err := msg.UnmarshalJSON([]byte(trimmed)); err != nil {
		return nil, fmt.Errorf("invalid request JSON: %w", err)
	}
	return msg, nil
}
