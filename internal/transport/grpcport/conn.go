// Package grpcport implements the gRPC side of the engine: the session
// transport for streaming calls, the invoker for unary calls, and service
// discovery via server reflection. Method schemas come from parsed proto
// files or from reflection; messages are built dynamically, so no generated
// code is required.
package grpcport

import (
	"net/url"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"github.com/wirecat/wirecat/internal/descriptor"
)

// dialConn creates a client connection for a resolved gRPC request.
// grpc.NewClient does not touch the network; the connection establishes
// lazily on first use.
func dialConn(req *descriptor.ConcreteRequest) (*grpc.ClientConn, error) {
	kaParams := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             3 * time.Second,
		PermitWithoutStream: true,
	}

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(kaParams),
	}
	if req.Protocol.Secure() {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	return grpc.NewClient(grpcTarget(req.URL), opts...)
}

// grpcTarget extracts the host:port dial target from a descriptor URL,
// tolerating bare "host:port" strings without a scheme.
func grpcTarget(raw string) string {
	if !strings.Contains(raw, "//") {
		return raw
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}

// buildMetadata converts the resolved headers and auth into outgoing gRPC
// metadata.
func buildMetadata(req *descriptor.ConcreteRequest) metadata.MD {
	md := metadata.MD{}
	for _, h := range req.Headers {
		md.Append(strings.ToLower(h.Key), h.Value)
	}
	if auth := req.Auth.HeaderValue(); auth != "" && len(md.Get("authorization")) == 0 {
		md.Set("authorization", auth)
	}
	return md
}
