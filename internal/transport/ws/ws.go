// Package ws implements the WebSocket session transport on top of
// gorilla/websocket. One Transport drives one connection; the session
// manager owns its lifecycle.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/wirecat/wirecat/internal/descriptor"
	"github.com/wirecat/wirecat/internal/session"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// NewFactory returns the session transport factory for ws/wss requests.
func NewFactory(logger *slog.Logger) session.Factory {
	return session.FactoryFunc(func(req *descriptor.ConcreteRequest) (session.Transport, error) {
		return &transport{req: req, logger: logger}, nil
	})
}

type transport struct {
	req    *descriptor.ConcreteRequest
	logger *slog.Logger

	mu     sync.Mutex // guards conn writes
	conn   *websocket.Conn
	events chan session.TransportEvent
}

// Connect dials the endpoint and starts the read pump. Request headers and
// resolved auth are sent with the handshake.
func (t *transport) Connect(ctx context.Context) (<-chan session.TransportEvent, error) {
	header := http.Header{}
	for _, h := range t.req.Headers {
		header.Add(h.Key, h.Value)
	}
	if auth := t.req.Auth.HeaderValue(); auth != "" && header.Get("Authorization") == "" {
		header.Set("Authorization", auth)
	}

	dialer := &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, t.req.URL, header)
	if err != nil {
		if resp != nil {
			t.logger.Debug("websocket handshake rejected",
				slog.String("url", t.req.URL),
				slog.Int("status", resp.StatusCode),
			)
		}
		return nil, err
	}

	t.mu.Lock()
	t.conn = conn
	t.events = make(chan session.TransportEvent, 16)
	events := t.events
	t.mu.Unlock()

	go t.readPump(conn, events)
	return events, nil
}

// readPump feeds received frames into the event channel until the
// connection dies. A close frame from the peer maps to TransportClosed
// with its code and reason; anything else is a fatal transport error.
func (t *transport) readPump(conn *websocket.Conn, events chan session.TransportEvent) {
	defer close(events)
	for {
		_, data, err := conn.ReadMessage()
		if err == nil {
			events <- session.TransportEvent{Kind: session.TransportData, Data: data}
			continue
		}

		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			events <- session.TransportEvent{
				Kind:   session.TransportClosed,
				Code:   closeErr.Code,
				Reason: closeErr.Text,
			}
			return
		}
		events <- session.TransportEvent{Kind: session.TransportError, Err: err, Fatal: true}
		return
	}
}

// Send writes one frame. Valid UTF-8 goes out as a text frame, anything
// else as binary.
func (t *transport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return errors.New("websocket not connected")
	}

	messageType := websocket.TextMessage
	if !utf8.Valid(payload) {
		messageType = websocket.BinaryMessage
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteMessage(messageType, payload)
}

// Close sends a close frame, then tears the connection down. Best-effort:
// a peer that never acknowledges only costs the ctx deadline.
func (t *transport) Close(ctx context.Context, code int, reason string) error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}

	if code == 0 {
		code = websocket.CloseNormalClosure
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	if closeErr := conn.Close(); err == nil {
		err = closeErr
	}
	return err
}
