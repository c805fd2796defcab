package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirecat/wirecat/internal/config"
	"github.com/wirecat/wirecat/internal/descriptor"
	"github.com/wirecat/wirecat/internal/eventlog"
	"github.com/wirecat/wirecat/internal/hooks"
	"github.com/wirecat/wirecat/internal/logging"
	"github.com/wirecat/wirecat/internal/session"
	"github.com/wirecat/wirecat/internal/storage"
)

// fakeTransport is an in-memory Transport driven by the test.
type fakeTransport struct {
	mu     sync.Mutex
	events chan session.TransportEvent
	sent   [][]byte
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan session.TransportEvent, 16)}
}

func (f *fakeTransport) Connect(ctx context.Context) (<-chan session.TransportEvent, error) {
	return f.events, nil
}

func (f *fakeTransport) Send(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeTransport) Close(ctx context.Context, code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeTransport) push(e session.TransportEvent) { f.events <- e }

type capture struct {
	mu    sync.Mutex
	names []string
}

func (c *capture) sink(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, n.Name)
}

func (c *capture) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func newTestEngine(t *testing.T, ft *fakeTransport, sink Sink) (*Engine, *storage.MemoryRepository) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	factories := map[descriptor.Protocol]session.Factory{
		descriptor.ProtocolWS: session.FactoryFunc(func(req *descriptor.ConcreteRequest) (session.Transport, error) {
			return ft, nil
		}),
	}
	e := New(config.Default(), repo, logging.NewNopLogger(),
		WithFactories(factories),
		WithSink(sink),
	)
	return e, repo
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestExecuteHTTPRecordsHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "engine-test", r.Header.Get("X-Injected"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e, repo := newTestEngine(t, nil, nil)

	// A build-request hook injects a header the server asserts on.
	e.Hooks().Register(descriptor.ProtocolHTTP, hooks.StageBuildRequest,
		func(ctx context.Context, payload any) (any, error) {
			req := payload.(*descriptor.ConcreteRequest)
			req.Headers = append(req.Headers, descriptor.Header{
				Key: "X-Injected", Value: "engine-test", Enabled: true,
			})
			return req, nil
		}, 0)

	doc, err := e.Execute(context.Background(), descriptor.RequestDescriptor{
		Protocol: descriptor.ProtocolHTTP,
		URL:      srv.URL,
		Method:   http.MethodGet,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doc.Status)
	assert.Equal(t, `{"ok":true}`, doc.Body)

	history, err := repo.GetHistory(0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "success", history[0].Status)
	assert.Equal(t, http.StatusOK, history[0].StatusCode)

	recent, err := repo.GetRecentTargets()
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, srv.URL, recent[0].URL)
}

func TestExecuteRejectsStreamingProtocol(t *testing.T) {
	e, _ := newTestEngine(t, nil, nil)
	_, err := e.Execute(context.Background(), descriptor.RequestDescriptor{
		Protocol: descriptor.ProtocolWS,
		URL:      "ws://example.com",
	})
	assert.Error(t, err)
}

func TestBuildHookAbortsExecute(t *testing.T) {
	e, repo := newTestEngine(t, nil, nil)
	e.Hooks().Register(descriptor.ProtocolHTTP, hooks.StageBuildRequest,
		func(ctx context.Context, payload any) (any, error) {
			return nil, assert.AnError
		}, 0)

	_, err := e.Execute(context.Background(), descriptor.RequestDescriptor{
		Protocol: descriptor.ProtocolHTTP,
		URL:      "http://example.com",
	})
	require.Error(t, err)

	// An aborted request never reaches history.
	history, _ := repo.GetHistory(0)
	assert.Empty(t, history)
}

func TestStreamingSessionLifecycle(t *testing.T) {
	ft := newFakeTransport()
	var c capture
	e, repo := newTestEngine(t, ft, c.sink)

	doc, err := e.Connect(context.Background(), descriptor.RequestDescriptor{
		Protocol: descriptor.ProtocolWS,
		URL:      "ws://feed.example.com",
	})
	require.NoError(t, err)
	require.NotEmpty(t, doc.SessionID)

	waitFor(t, func() bool {
		info, err := e.Session(doc.SessionID)
		return err == nil && info.State == "open"
	})

	ft.push(session.TransportEvent{Kind: session.TransportData, Data: []byte("frame-1")})
	ft.push(session.TransportEvent{Kind: session.TransportData, Data: []byte("frame-2")})
	require.NoError(t, e.Send(context.Background(), doc.SessionID, []byte("hello")))

	waitFor(t, func() bool {
		events, err := e.Events(doc.SessionID)
		return err == nil && len(events) == 4 // open + 2 received + 1 sent
	})

	require.NoError(t, e.Close(context.Background(), doc.SessionID, 1000, "done"))

	waitFor(t, func() bool {
		history, _ := repo.GetHistory(0)
		return len(history) == 1
	})
	history, _ := repo.GetHistory(0)
	assert.Equal(t, "success", history[0].Status)
	assert.Equal(t, doc.SessionID, history[0].SessionID)
	assert.Equal(t, 3, history[0].MessageCount)

	names := c.snapshot()
	assert.Contains(t, names, "ws-open")
	assert.Contains(t, names, "ws-data")
	assert.Contains(t, names, "ws-sent")
	assert.Contains(t, names, "ws-close")
}

func TestSubscribeReplaysThenFollows(t *testing.T) {
	ft := newFakeTransport()
	e, _ := newTestEngine(t, ft, nil)

	doc, err := e.Connect(context.Background(), descriptor.RequestDescriptor{
		Protocol: descriptor.ProtocolWS,
		URL:      "ws://feed.example.com",
	})
	require.NoError(t, err)

	waitFor(t, func() bool {
		events, err := e.Events(doc.SessionID)
		return err == nil && len(events) == 1
	})
	ft.push(session.TransportEvent{Kind: session.TransportData, Data: []byte("early")})
	waitFor(t, func() bool {
		events, _ := e.Events(doc.SessionID)
		return len(events) == 2
	})

	sub, err := e.Subscribe(doc.SessionID)
	require.NoError(t, err)
	defer sub.Cancel()

	ft.push(session.TransportEvent{Kind: session.TransportData, Data: []byte("late")})

	var got []eventlog.Event
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case ev := <-sub.C:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("received %d events, want 3", len(got))
		}
	}

	assert.Equal(t, eventlog.KindSystemOpen, got[0].Kind)
	assert.Equal(t, "early", string(got[1].Data))
	assert.Equal(t, "late", string(got[2].Data))
}

func TestSessionEndWithoutStorageDropsTracking(t *testing.T) {
	ft := newFakeTransport()
	factories := map[descriptor.Protocol]session.Factory{
		descriptor.ProtocolWS: session.FactoryFunc(func(req *descriptor.ConcreteRequest) (session.Transport, error) {
			return ft, nil
		}),
	}
	e := New(config.Default(), nil, logging.NewNopLogger(), WithFactories(factories))

	doc, err := e.Connect(context.Background(), descriptor.RequestDescriptor{
		Protocol: descriptor.ProtocolWS,
		URL:      "ws://feed.example.com",
	})
	require.NoError(t, err)

	waitFor(t, func() bool {
		info, err := e.Session(doc.SessionID)
		return err == nil && info.State == "open"
	})
	require.NoError(t, e.Close(context.Background(), doc.SessionID, 1000, "done"))

	// A persistence-free host must not accumulate descriptors for ended
	// sessions.
	e.mu.Lock()
	tracked := len(e.requests)
	e.mu.Unlock()
	assert.Zero(t, tracked)
}

func TestSavedRequestsRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, nil, nil)

	d := descriptor.RequestDescriptor{
		Protocol: descriptor.ProtocolGraphQL,
		URL:      "https://api.example.com/graphql",
		Body:     `query Ping { ping }`,
	}
	require.NoError(t, e.SaveRequest("ping", d))

	names, err := e.ListRequests()
	require.NoError(t, err)
	assert.Equal(t, []string{"ping"}, names)

	loaded, err := e.LoadRequest("ping")
	require.NoError(t, err)
	assert.Equal(t, d.URL, loaded.URL)

	require.NoError(t, e.DeleteRequest("ping"))
	_, err = e.LoadRequest("ping")
	assert.Error(t, err)
}
