// Package convert maps live sessions and one-shot responses into document
// fragments that an embedding host can render or persist. Streaming
// documents are thin pointers: they reference the session's event log
// instead of copying it, so the document and the log cannot diverge.
package convert

import (
	"time"

	"github.com/wirecat/wirecat/internal/descriptor"
	"github.com/wirecat/wirecat/internal/eventlog"
	"github.com/wirecat/wirecat/internal/oneshot"
	"github.com/wirecat/wirecat/internal/session"
)

// DocumentKind discriminates the two document shapes.
type DocumentKind string

const (
	// DocumentStream references a live session by id; content is read from
	// the event log on demand.
	DocumentStream DocumentKind = "stream"
	// DocumentInline embeds a terminal one-shot result directly.
	DocumentInline DocumentKind = "inline"
)

// RequestMeta is the denormalized request metadata embedded in a document
// so it can render without the session manager being reachable.
type RequestMeta struct {
	Protocol descriptor.Protocol       `json:"protocol"`
	URL      string                    `json:"url"`
	Method   string                    `json:"method,omitempty"`
	Grpc     *descriptor.GrpcExtras    `json:"grpc,omitempty"`
	GraphQL  *descriptor.GraphQLExtras `json:"graphql,omitempty"`
}

// ResponseDocument is a converter output. For streams it holds only the
// session reference plus metadata; for inline results it embeds the
// classified body, status, and headers.
type ResponseDocument struct {
	Kind        DocumentKind `json:"kind"`
	SessionID   string       `json:"sessionId,omitempty"`
	URL         string       `json:"url"`
	RequestMeta RequestMeta  `json:"requestMeta"`

	Status     int                 `json:"status,omitempty"`
	StatusText string              `json:"statusText,omitempty"`
	Headers    map[string]string   `json:"headers,omitempty"`
	Body       string              `json:"body,omitempty"`
	BodyFormat eventlog.DataFormat `json:"bodyFormat,omitempty"`
	BodySize   int                 `json:"bodySize,omitempty"`
	// AppErrors flags protocol/application errors (GraphQL errors[]) that
	// arrived in an otherwise-successful response. Transport errors never
	// set this; they are reported out-of-band.
	AppErrors bool          `json:"appErrors,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Streaming converts a live session into a stream document. The document
// does not copy any event payloads: it defers to the session's event log,
// so events appended after conversion are visible through the reference
// without re-converting.
func Streaming(info session.Info) *ResponseDocument {
	return &ResponseDocument{
		Kind:      DocumentStream,
		SessionID: info.ID,
		URL:       info.Target,
		RequestMeta: RequestMeta{
			Protocol: info.Protocol,
			URL:      info.Target,
			Grpc:     info.Grpc,
		},
	}
}

// OneShot converts a terminal one-shot response into an inline document.
// The body is classified once: UTF-8 text passes through, binary renders
// as hex or base64 depending on size.
func OneShot(resp *oneshot.Response, req *descriptor.ConcreteRequest) *ResponseDocument {
	body, format := eventlog.DecodePayload(resp.Body)
	return &ResponseDocument{
		Kind: DocumentInline,
		URL:  req.URL,
		RequestMeta: RequestMeta{
			Protocol: req.Protocol,
			URL:      req.URL,
			Method:   req.Method,
			GraphQL:  req.GraphQL,
		},
		Status:     resp.Status,
		StatusText: resp.StatusText,
		Headers:    resp.Headers,
		Body:       body,
		BodyFormat: format,
		BodySize:   len(resp.Body),
		AppErrors:  resp.AppErrors,
		Duration:   resp.Duration,
	}
}

// LiveLog resolves a stream document's weak session reference against the
// host's log store. The second return is false when the session has been
// collected or the document is inline.
func (d *ResponseDocument) LiveLog(store *eventlog.Store) (*eventlog.Log, bool) {
	if d.Kind != DocumentStream {
		return nil, false
	}
	return store.Lookup(d.SessionID)
}
