package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirecat/wirecat/internal/descriptor"
	"github.com/wirecat/wirecat/internal/logging"
	"github.com/wirecat/wirecat/internal/session"
)

var upgrader = websocket.Upgrader{}

// echoServer upgrades incoming requests and echoes every frame back with the
// same message type. The handshake headers are captured for inspection.
func echoServer(t *testing.T, captured *http.Header) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured = r.Header.Clone()
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, req *descriptor.ConcreteRequest) (session.Transport, <-chan session.TransportEvent) {
	t.Helper()
	factory := NewFactory(logging.NewNopLogger())
	tr, err := factory.Dial(req)
	require.NoError(t, err)
	events, err := tr.Connect(context.Background())
	require.NoError(t, err)
	return tr, events
}

func recvEvent(t *testing.T, events <-chan session.TransportEvent) session.TransportEvent {
	t.Helper()
	select {
	case e, ok := <-events:
		require.True(t, ok, "event channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no transport event")
		return session.TransportEvent{}
	}
}

func TestConnectSendsHeadersAndAuth(t *testing.T) {
	var captured http.Header
	srv := echoServer(t, &captured)
	defer srv.Close()

	tr, _ := dial(t, &descriptor.ConcreteRequest{
		Protocol: descriptor.ProtocolWS,
		URL:      wsURL(srv),
		Headers: []descriptor.Header{
			{Key: "X-Trace", Value: "abc", Enabled: true},
		},
		Auth: descriptor.Auth{Type: descriptor.AuthBearer, Token: "tok"},
	})
	defer tr.Close(context.Background(), 0, "")

	assert.Equal(t, "abc", captured.Get("X-Trace"))
	assert.Equal(t, "Bearer tok", captured.Get("Authorization"))
}

func TestSendAndReceiveTextFrame(t *testing.T) {
	srv := echoServer(t, nil)
	defer srv.Close()

	tr, events := dial(t, &descriptor.ConcreteRequest{Protocol: descriptor.ProtocolWS, URL: wsURL(srv)})
	defer tr.Close(context.Background(), 0, "")

	require.NoError(t, tr.Send(context.Background(), []byte(`{"op":"subscribe"}`)))

	e := recvEvent(t, events)
	assert.Equal(t, session.TransportData, e.Kind)
	assert.Equal(t, `{"op":"subscribe"}`, string(e.Data))
}

func TestSendBinaryFrame(t *testing.T) {
	var gotType int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		gotType = mt
		_ = conn.WriteMessage(mt, data)
	}))
	defer srv.Close()

	tr, events := dial(t, &descriptor.ConcreteRequest{Protocol: descriptor.ProtocolWS, URL: wsURL(srv)})
	defer tr.Close(context.Background(), 0, "")

	payload := []byte{0xFF, 0xFE, 0x00, 0x01}
	require.NoError(t, tr.Send(context.Background(), payload))

	e := recvEvent(t, events)
	assert.Equal(t, session.TransportData, e.Kind)
	assert.Equal(t, payload, e.Data)
	assert.Equal(t, websocket.BinaryMessage, gotType)
}

func TestPeerCloseFrameSurfacesCodeAndReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "maintenance"), deadline)
		// Wait for the client's close response.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	tr, events := dial(t, &descriptor.ConcreteRequest{Protocol: descriptor.ProtocolWS, URL: wsURL(srv)})
	defer tr.Close(context.Background(), 0, "")

	e := recvEvent(t, events)
	assert.Equal(t, session.TransportClosed, e.Kind)
	assert.Equal(t, websocket.CloseGoingAway, e.Code)
	assert.Equal(t, "maintenance", e.Reason)

	// The pump exits after a close frame.
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after close frame")
	}
}

func TestAbruptDisconnectIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Kill the TCP connection without a close handshake.
		_ = conn.UnderlyingConn().Close()
	}))
	defer srv.Close()

	tr, events := dial(t, &descriptor.ConcreteRequest{Protocol: descriptor.ProtocolWS, URL: wsURL(srv)})
	defer tr.Close(context.Background(), 0, "")

	e := recvEvent(t, events)
	// gorilla may surface the dropped connection as an abnormal-closure close
	// error or a plain read error depending on timing.
	switch e.Kind {
	case session.TransportError:
		assert.True(t, e.Fatal)
		assert.Error(t, e.Err)
	case session.TransportClosed:
		assert.Equal(t, websocket.CloseAbnormalClosure, e.Code)
	default:
		t.Fatalf("unexpected event kind %v", e.Kind)
	}
}

func TestConnectFailure(t *testing.T) {
	factory := NewFactory(logging.NewNopLogger())
	tr, err := factory.Dial(&descriptor.ConcreteRequest{
		Protocol: descriptor.ProtocolWS,
		URL:      "ws://127.0.0.1:1/unreachable",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = tr.Connect(ctx)
	assert.Error(t, err)
}

func TestSendBeforeConnect(t *testing.T) {
	factory := NewFactory(logging.NewNopLogger())
	tr, err := factory.Dial(&descriptor.ConcreteRequest{Protocol: descriptor.ProtocolWS, URL: "ws://x"})
	require.NoError(t, err)
	assert.Error(t, tr.Send(context.Background(), []byte("early")))
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := echoServer(t, nil)
	defer srv.Close()

	tr, _ := dial(t, &descriptor.ConcreteRequest{Protocol: descriptor.ProtocolWS, URL: wsURL(srv)})

	require.NoError(t, tr.Close(context.Background(), websocket.CloseNormalClosure, "done"))
	assert.NoError(t, tr.Close(context.Background(), websocket.CloseNormalClosure, "again"))
}
