package grpcport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirecat/wirecat/internal/descriptor"
	"github.com/wirecat/wirecat/internal/errors"
)

const echoProto = "testdata/echo.proto"

func TestParseService(t *testing.T) {
	sd, err := parseService(echoProto, "wirecat.test.Echo")
	require.NoError(t, err)
	assert.Equal(t, "wirecat.test.Echo", sd.GetFullyQualifiedName())
	assert.Len(t, sd.GetMethods(), 4)
}

func TestParseService_NotFound(t *testing.T) {
	_, err := parseService(echoProto, "wirecat.test.Missing")
	assert.ErrorContains(t, err, "not found")
}

func TestCallTypeOf(t *testing.T) {
	sd, err := parseService(echoProto, "wirecat.test.Echo")
	require.NoError(t, err)

	tests := []struct {
		method string
		want   descriptor.CallType
	}{
		{"Once", descriptor.CallUnary},
		{"Stream", descriptor.CallServerStreaming},
		{"Collect", descriptor.CallClientStreaming},
		{"Chat", descriptor.CallBidiStreaming},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			md := sd.FindMethodByName(tt.method)
			require.NotNil(t, md)
			assert.Equal(t, tt.want, callTypeOf(md))
		})
	}
}

func TestResolveMethod_CallTypeMismatch(t *testing.T) {
	_, err := resolveMethod(context.Background(), nil, &descriptor.GrpcExtras{
		Service:   "wirecat.test.Echo",
		Method:    "Stream",
		CallType:  descriptor.CallUnary,
		ProtoPath: echoProto,
	})
	require.Error(t, err)

	var verr errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "grpc.callType", verr.Field)
}

func TestResolveMethod_UnknownMethod(t *testing.T) {
	_, err := resolveMethod(context.Background(), nil, &descriptor.GrpcExtras{
		Service:   "wirecat.test.Echo",
		Method:    "Nope",
		CallType:  descriptor.CallUnary,
		ProtoPath: echoProto,
	})
	assert.ErrorContains(t, err, "not found")
}

func TestConvertService(t *testing.T) {
	sd, err := parseService(echoProto, "wirecat.test.Echo")
	require.NoError(t, err)

	svc := convertService(sd)
	assert.Equal(t, "Echo", svc.Name)
	assert.Equal(t, "wirecat.test.Echo", svc.FullName)
	require.Len(t, svc.Methods, 4)

	byName := map[string]bool{}
	for _, m := range svc.Methods {
		byName[m.Name] = true
	}
	assert.True(t, byName["Once"] && byName["Chat"])
}

func TestGrpcTarget(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"localhost:50051", "localhost:50051"},
		{"grpc://localhost:50051", "localhost:50051"},
		{"grpcs://api.example.com:443/ignored", "api.example.com:443"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, grpcTarget(tt.raw), tt.raw)
	}
}

func TestBuildMetadata(t *testing.T) {
	req := &descriptor.ConcreteRequest{
		Headers: []descriptor.Header{
			{Key: "X-Trace-Id", Value: "abc"},
		},
		Auth: descriptor.Auth{Type: descriptor.AuthBearer, Token: "tok"},
	}
	md := buildMetadata(req)
	assert.Equal(t, []string{"abc"}, md.Get("x-trace-id"))
	assert.Equal(t, []string{"Bearer tok"}, md.Get("authorization"))
}

func TestBuildMetadata_ExplicitAuthorizationWins(t *testing.T) {
	req := &descriptor.ConcreteRequest{
		Headers: []descriptor.Header{
			{Key: "Authorization", Value: "Bearer explicit"},
		},
		Auth: descriptor.Auth{Type: descriptor.AuthBearer, Token: "inferred"},
	}
	md := buildMetadata(req)
	assert.Equal(t, []string{"Bearer explicit"}, md.Get("authorization"))
}

func TestTruncateForLog(t *testing.T) {
	short := `{"ok":true}`
	assert.Equal(t, short, truncateForLog(short))

	long := make([]byte, maxLogBodyLen+10)
	for i := range long {
		long[i] = 'a'
	}
	got := truncateForLog(string(long))
	assert.Contains(t, got, "bytes total")
	assert.Less(t, len(got), len(long)+30)
}
