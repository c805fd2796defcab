// Package descriptor defines the declarative, protocol-tagged description of
// an outbound request and resolves it into a concrete request ready for
// dispatch. Resolution is a pure transformation with no side effects.
package descriptor

import (
	"encoding/json"
	"strings"
)

// Protocol identifies the wire protocol a descriptor targets.
type Protocol string

const (
	ProtocolHTTP    Protocol = "http"
	ProtocolHTTPS   Protocol = "https"
	ProtocolWS      Protocol = "ws"
	ProtocolWSS     Protocol = "wss"
	ProtocolGRPC    Protocol = "grpc"
	ProtocolGRPCS   Protocol = "grpcs"
	ProtocolGraphQL Protocol = "graphql"
)

// Streaming reports whether the protocol opens a long-lived session
// (WebSocket family or gRPC family) rather than a one-shot exchange.
func (p Protocol) Streaming() bool {
	switch p {
	case ProtocolWS, ProtocolWSS, ProtocolGRPC, ProtocolGRPCS:
		return true
	}
	return false
}

// Secure reports whether the protocol variant uses TLS.
func (p Protocol) Secure() bool {
	switch p {
	case ProtocolHTTPS, ProtocolWSS, ProtocolGRPCS:
		return true
	}
	return false
}

// Valid reports whether p is a known protocol tag.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolWS, ProtocolWSS,
		ProtocolGRPC, ProtocolGRPCS, ProtocolGraphQL:
		return true
	}
	return false
}

// Header is one entry of the ordered header list. Disabled entries are
// carried by the document layer but never sent.
type Header struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

// AuthType discriminates the Auth variant.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthAPIKey AuthType = "apiKey"
)

// Auth is the resolved authentication variant for a request. Exactly the
// fields matching Type are meaningful.
type Auth struct {
	Type     AuthType `json:"type"`
	Token    string   `json:"token,omitempty"`    // bearer
	Username string   `json:"username,omitempty"` // basic
	Password string   `json:"password,omitempty"` // basic
	Value    string   `json:"value,omitempty"`    // apiKey: raw header value
}

// CallType distinguishes gRPC invocation patterns.
type CallType string

const (
	CallUnary           CallType = "unary"
	CallServerStreaming CallType = "server_streaming"
	CallClientStreaming CallType = "client_streaming"
	CallBidiStreaming   CallType = "bidirectional_streaming"
)

// Valid reports whether c is a known call type.
func (c CallType) Valid() bool {
	switch c {
	case CallUnary, CallServerStreaming, CallClientStreaming, CallBidiStreaming:
		return true
	}
	return false
}

// GrpcExtras carries the gRPC-specific sub-block of a descriptor.
// Service, Method and a schema source (ProtoPath or UseReflection) are
// required for resolution.
type GrpcExtras struct {
	Service       string   `json:"service"`
	Method        string   `json:"method"`
	CallType      CallType `json:"callType,omitempty"`
	ProtoPath     string   `json:"protoPath,omitempty"`
	UseReflection bool     `json:"useReflection,omitempty"`
}

// OperationType is a GraphQL operation kind.
type OperationType string

const (
	OperationQuery        OperationType = "query"
	OperationMutation     OperationType = "mutation"
	OperationSubscription OperationType = "subscription"
)

// GraphQLExtras carries the GraphQL-specific sub-block of a descriptor.
// Empty OperationType/OperationName are filled in during resolution from
// the textual operation body.
type GraphQLExtras struct {
	OperationType OperationType   `json:"operationType,omitempty"`
	OperationName string          `json:"operationName,omitempty"`
	Variables     json.RawMessage `json:"variables,omitempty"`
}

// RequestDescriptor is the protocol-tagged union describing a request before
// execution. Protocol determines which extras sub-block is legal.
type RequestDescriptor struct {
	Protocol Protocol       `json:"protocol"`
	URL      string         `json:"url"`
	Method   string         `json:"method,omitempty"` // HTTP verb; ignored for ws/grpc
	Headers  []Header       `json:"headers,omitempty"`
	Auth     *Auth          `json:"auth,omitempty"`
	Body     string         `json:"body,omitempty"`
	Grpc     *GrpcExtras    `json:"grpc,omitempty"`
	GraphQL  *GraphQLExtras `json:"graphql,omitempty"`
}

// ConcreteRequest is the resolver output: a validated, normalized request
// with disabled headers dropped, auth resolved, and protocol extras filled.
type ConcreteRequest struct {
	Protocol Protocol
	URL      string
	Method   string
	Headers  []Header // enabled entries only, original order preserved
	Auth     Auth
	Body     []byte
	Grpc     *GrpcExtras
	GraphQL  *GraphQLExtras
}

// HeaderValue returns the first enabled header value matching key
// (case-insensitive), or "".
func (r *ConcreteRequest) HeaderValue(key string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}
