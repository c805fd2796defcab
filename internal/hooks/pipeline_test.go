package hooks

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirecat/wirecat/internal/descriptor"
)

// appendHandler returns a handler that appends its tag to a []string payload.
func appendHandler(tag string) Handler {
	return func(ctx context.Context, payload any) (any, error) {
		return append(payload.([]string), tag), nil
	}
}

func TestRunStagePriorityOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(descriptor.ProtocolHTTP, StageBuildRequest, appendHandler("late"), 10)
	r.Register(descriptor.ProtocolHTTP, StageBuildRequest, appendHandler("early"), -5)
	r.Register(descriptor.ProtocolHTTP, StageBuildRequest, appendHandler("mid"), 0)

	out, err := r.RunStage(context.Background(), descriptor.ProtocolHTTP, StageBuildRequest, []string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "mid", "late"}, out)
}

func TestRunStageTiesBreakByRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		r.Register(descriptor.ProtocolWS, StageBuildRequest, appendHandler(fmt.Sprintf("h%d", i)), DefaultPriority)
	}

	out, err := r.RunStage(context.Background(), descriptor.ProtocolWS, StageBuildRequest, []string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"h0", "h1", "h2", "h3", "h4"}, out)
}

func TestRunStageBucketsAreIsolated(t *testing.T) {
	r := NewRegistry()
	r.Register(descriptor.ProtocolHTTP, StageBuildRequest, appendHandler("http-build"), 0)
	r.Register(descriptor.ProtocolHTTP, StageProcessResponse, appendHandler("http-resp"), 0)
	r.Register(descriptor.ProtocolGRPC, StageBuildRequest, appendHandler("grpc-build"), 0)

	out, err := r.RunStage(context.Background(), descriptor.ProtocolHTTP, StageBuildRequest, []string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"http-build"}, out)

	out, err = r.RunStage(context.Background(), descriptor.ProtocolGraphQL, StageBuildRequest, []string{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRunStageErrorAborts(t *testing.T) {
	r := NewRegistry()
	var ran []string
	r.Register(descriptor.ProtocolHTTP, StageBuildRequest, func(ctx context.Context, payload any) (any, error) {
		ran = append(ran, "first")
		return payload, nil
	}, 0)
	r.Register(descriptor.ProtocolHTTP, StageBuildRequest, func(ctx context.Context, payload any) (any, error) {
		return nil, fmt.Errorf("bad header")
	}, 1)
	r.Register(descriptor.ProtocolHTTP, StageBuildRequest, func(ctx context.Context, payload any) (any, error) {
		ran = append(ran, "never")
		return payload, nil
	}, 2)

	_, err := r.RunStage(context.Background(), descriptor.ProtocolHTTP, StageBuildRequest, []string{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "hook stage build-request aborted")
	assert.ErrorContains(t, err, "bad header")
	assert.Equal(t, []string{"first"}, ran)
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	unreg := r.Register(descriptor.ProtocolHTTP, StageBuildRequest, appendHandler("gone"), 0)
	r.Register(descriptor.ProtocolHTTP, StageBuildRequest, appendHandler("stays"), 0)

	unreg()
	unreg() // safe to call twice

	out, err := r.RunStage(context.Background(), descriptor.ProtocolHTTP, StageBuildRequest, []string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"stays"}, out)
}

func TestPluginUnloadRemovesAllRegistrations(t *testing.T) {
	r := NewRegistry()
	p := r.Plugin("auth-injector")
	assert.Equal(t, "auth-injector", p.Name())

	p.Register(descriptor.ProtocolHTTP, StageBuildRequest, appendHandler("a"), 0)
	p.Register(descriptor.ProtocolHTTP, StageProcessResponse, appendHandler("b"), 0)
	r.Register(descriptor.ProtocolHTTP, StageBuildRequest, appendHandler("other"), 0)

	p.Unload()

	out, err := r.RunStage(context.Background(), descriptor.ProtocolHTTP, StageBuildRequest, []string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, out)

	out, err = r.RunStage(context.Background(), descriptor.ProtocolHTTP, StageProcessResponse, []string{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPluginRegisterAfterUnloadIsInert(t *testing.T) {
	r := NewRegistry()
	p := r.Plugin("zombie")
	p.Unload()

	p.Register(descriptor.ProtocolHTTP, StageBuildRequest, appendHandler("zombie"), 0)

	out, err := r.RunStage(context.Background(), descriptor.ProtocolHTTP, StageBuildRequest, []string{})
	require.NoError(t, err)
	assert.Empty(t, out)
}
