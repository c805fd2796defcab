package descriptor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/wirecat/wirecat/internal/errors"
)

// IncompleteGrpcConfigError reports a gRPC descriptor missing required
// configuration. It is returned synchronously from Resolve so callers can
// surface an actionable message before any connection attempt.
type IncompleteGrpcConfigError struct {
	Missing []string
}

func (e *IncompleteGrpcConfigError) Error() string {
	return "incomplete gRPC configuration: missing " + strings.Join(e.Missing, ", ")
}

// Resolve validates a RequestDescriptor and turns it into a ConcreteRequest.
// It has no side effects: the same descriptor always resolves to the same
// result, which keeps resolution unit-testable in isolation.
//
// Validation failures return a typed error (errors.ValidationError or
// *IncompleteGrpcConfigError); they are never silently defaulted.
func Resolve(d RequestDescriptor) (*ConcreteRequest, error) {
	if !d.Protocol.Valid() {
		return nil, errors.ValidationError{Field: "protocol", Message: fmt.Sprintf("unknown protocol %q", string(d.Protocol))}
	}
	if d.URL == "" {
		return nil, errors.ValidationError{Field: "url", Message: "url is required"}
	}
	if _, err := url.Parse(d.URL); err != nil {
		return nil, errors.ValidationError{Field: "url", Message: "invalid url: " + err.Error()}
	}

	req := &ConcreteRequest{
		Protocol: d.Protocol,
		URL:      d.URL,
		Method:   strings.ToUpper(d.Method),
		Headers:  enabledHeaders(d.Headers),
		Body:     []byte(d.Body),
	}
	if req.Method == "" {
		req.Method = "GET"
	}

	// The extras sub-blocks are only legal for their own protocol.
	switch d.Protocol {
	case ProtocolGRPC, ProtocolGRPCS:
		if d.GraphQL != nil {
			return nil, errors.ValidationError{Field: "graphql", Message: fmt.Sprintf("graphql extras are not valid for protocol %q", string(d.Protocol))}
		}
		extras, err := resolveGrpcExtras(d.Grpc)
		if err != nil {
			return nil, err
		}
		req.Grpc = extras
	case ProtocolGraphQL:
		if d.Grpc != nil {
			return nil, errors.ValidationError{Field: "grpc", Message: fmt.Sprintf("grpc extras are not valid for protocol %q", string(d.Protocol))}
		}
		req.GraphQL = resolveGraphQLExtras(d.GraphQL, d.Body)
		req.Method = "POST"
	default:
		if d.Grpc != nil {
			return nil, errors.ValidationError{Field: "grpc", Message: fmt.Sprintf("grpc extras are not valid for protocol %q", string(d.Protocol))}
		}
		if d.GraphQL != nil {
			return nil, errors.ValidationError{Field: "graphql", Message: fmt.Sprintf("graphql extras are not valid for protocol %q", string(d.Protocol))}
		}
	}

	req.Auth = resolveAuth(d.Auth, req.Headers)
	return req, nil
}

// resolveGrpcExtras validates the gRPC sub-block. Service, method and a
// schema source (proto file or server reflection) must be present.
func resolveGrpcExtras(extras *GrpcExtras) (*GrpcExtras, error) {
	var missing []string
	if extras == nil {
		missing = []string{"service", "method", "protoPath"}
		return nil, &IncompleteGrpcConfigError{Missing: missing}
	}
	if extras.Service == "" {
		missing = append(missing, "service")
	}
	if extras.Method == "" {
		missing = append(missing, "method")
	}
	if extras.ProtoPath == "" && !extras.UseReflection {
		missing = append(missing, "protoPath")
	}
	if len(missing) > 0 {
		return nil, &IncompleteGrpcConfigError{Missing: missing}
	}

	out := *extras
	if out.CallType == "" {
		out.CallType = CallUnary
	}
	if !out.CallType.Valid() {
		return nil, errors.ValidationError{Field: "grpc.callType", Message: fmt.Sprintf("unknown call type %q", string(out.CallType))}
	}
	return &out, nil
}

// resolveGraphQLExtras fills operation type and name from the textual body
// when the document layer did not supply them.
func resolveGraphQLExtras(extras *GraphQLExtras, body string) *GraphQLExtras {
	out := GraphQLExtras{}
	if extras != nil {
		out = *extras
	}
	if out.OperationType == "" || out.OperationName == "" {
		opType, opName := ParseOperation(body)
		if out.OperationType == "" {
			out.OperationType = opType
		}
		if out.OperationName == "" {
			out.OperationName = opName
		}
	}
	return &out
}

func enabledHeaders(headers []Header) []Header {
	out := make([]Header, 0, len(headers))
	for _, h := range headers {
		if h.Enabled {
			out = append(out, h)
		}
	}
	return out
}
