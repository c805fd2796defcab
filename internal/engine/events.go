package engine

import (
	"github.com/wirecat/wirecat/internal/eventlog"
	"github.com/wirecat/wirecat/internal/session"
)

// Notification is one host-facing engine event. Name follows the
// "{protocol}-{event}" convention ("ws-data", "grpc-response"), so hosts
// can route on a single string without inspecting the log event.
type Notification struct {
	Name    string
	Session session.Info
	Event   eventlog.Event
}

// Sink receives engine notifications. It is called on the transport pump
// goroutine and must not block.
type Sink func(Notification)

// dispatch is installed as the session manager's notify callback. It names
// the event, forwards it to the host sink, and records history when a
// session reaches a terminal state.
func (e *Engine) dispatch(info session.Info, ev eventlog.Event) {
	if e.sink != nil {
		e.sink(Notification{
			Name:    eventName(info, ev),
			Session: info,
			Event:   ev,
		})
	}

	switch ev.Kind {
	case eventlog.KindSystemClose, eventlog.KindSystemCancel:
		e.recordSessionEnd(info, ev)
	case eventlog.KindSystemError:
		// Only terminal errors end the session; non-fatal transport errors
		// leave it Open.
		if info.State == session.StateErrored.String() {
			e.recordSessionEnd(info, ev)
		}
	}
}

// eventName renders the "{protocol}-{event}" host event name.
func eventName(info session.Info, ev eventlog.Event) string {
	proto := string(info.Protocol)
	switch ev.Kind {
	case eventlog.KindSystemOpen:
		return proto + "-open"
	case eventlog.KindSystemPause:
		return proto + "-paused"
	case eventlog.KindSystemClose:
		return proto + "-close"
	case eventlog.KindSystemCancel:
		return proto + "-cancelled"
	case eventlog.KindSystemError:
		return proto + "-error"
	case eventlog.KindDataSent:
		return proto + "-sent"
	case eventlog.KindDataReceived:
		return proto + "-data"
	case eventlog.KindUnaryResponse:
		return proto + "-response"
	}
	return proto + "-" + string(ev.Kind)
}
