package grpcport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/dynamic/grpcdynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/wirecat/wirecat/internal/descriptor"
)

// Invoker performs unary gRPC calls. Each call dials its own lazy
// connection and tears it down when the call completes, so repeated sends
// on an idle session never hold sockets open between calls.
type Invoker struct {
	logger *slog.Logger
}

// NewInvoker returns a unary invoker.
func NewInvoker(logger *slog.Logger) *Invoker {
	return &Invoker{logger: logger}
}

// Invoke resolves the method, sends the request message, and returns the
// response rendered as JSON. The payload overrides the descriptor body
// when non-empty.
func (i *Invoker) Invoke(ctx context.Context, req *descriptor.ConcreteRequest, payload []byte) ([]byte, error) {
	if req.Grpc == nil {
		return nil, fmt.Errorf("not a gRPC request")
	}
	if req.Grpc.CallType != descriptor.CallUnary {
		return nil, fmt.Errorf("method %s is %s, not unary", req.Grpc.Method, req.Grpc.CallType)
	}

	conn, err := dialConn(req)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	method, err := resolveMethod(ctx, conn, req.Grpc)
	if err != nil {
		return nil, err
	}

	body := payload
	if strings.TrimSpace(string(body)) == "" {
		body = req.Body
	}
	reqMsg := dynamic.NewMessage(method.GetInputType())
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		if err := reqMsg.UnmarshalJSON([]byte(trimmed)); err != nil {
			return nil, fmt.Errorf("invalid request JSON: %w", err)
		}
	}

	if md := buildMetadata(req); len(md) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, md)
	}

	start := time.Now()
	var header metadata.MD
	stub := grpcdynamic.NewStub(conn)
	resp, err := stub.InvokeRpc(ctx, method, reqMsg, grpc.Header(&header))
	if err != nil {
		return nil, err
	}

	data, err := resp.(*dynamic.Message).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to format response: %w", err)
	}

	i.logger.Debug("unary call completed",
		slog.String("method", method.GetFullyQualifiedName()),
		slog.Duration("duration", time.Since(start)),
		slog.String("response", truncateForLog(string(data))),
	)
	return data, nil
}
