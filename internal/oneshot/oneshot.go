// Package oneshot executes single request-response exchanges: plain HTTP
// calls and GraphQL operations over HTTP POST. Streaming protocols live in
// the session manager; nothing here creates a session.
package oneshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wirecat/wirecat/internal/descriptor"
)

// maxBodyBytes caps buffered response bodies (32 MB).
const maxBodyBytes = 32 << 20

// Response is the terminal result of a one-shot exchange. AppErrors is set
// for protocol/application-level failures (GraphQL errors[] in an
// otherwise-successful response); it is distinct from transport errors,
// which surface as a returned error instead.
type Response struct {
	Status     int
	StatusText string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
	AppErrors  bool
}

// Client executes one-shot HTTP and GraphQL requests.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a one-shot client. A nil httpClient uses a default with
// a 30 second timeout.
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpClient, logger: logger}
}

// Execute dispatches a resolved one-shot request and buffers the response.
// GraphQL requests are wrapped in the standard JSON envelope; everything
// else goes out as-is.
func (c *Client) Execute(ctx context.Context, req *descriptor.ConcreteRequest) (*Response, error) {
	switch req.Protocol {
	case descriptor.ProtocolHTTP, descriptor.ProtocolHTTPS:
		return c.do(ctx, req, req.Body, false)
	case descriptor.ProtocolGraphQL:
		body, err := graphqlEnvelope(req)
		if err != nil {
			return nil, err
		}
		return c.do(ctx, req, body, true)
	}
	return nil, fmt.Errorf("protocol %q is not a one-shot protocol", string(req.Protocol))
}

func (c *Client) do(ctx context.Context, req *descriptor.ConcreteRequest, body []byte, graphql bool) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for _, h := range req.Headers {
		httpReq.Header.Add(h.Key, h.Value)
	}
	if auth := req.Auth.HeaderValue(); auth != "" && httpReq.Header.Get("Authorization") == "" {
		httpReq.Header.Set("Authorization", auth)
	}
	if graphql && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	duration := time.Since(start)

	headers := make(map[string]string, len(httpResp.Header))
	for k := range httpResp.Header {
		headers[k] = httpResp.Header.Get(k)
	}

	resp := &Response{
		Status:     httpResp.StatusCode,
		StatusText: http.StatusText(httpResp.StatusCode),
		Headers:    headers,
		Body:       respBody,
		Duration:   duration,
	}
	if graphql {
		// GraphQL reports application errors in-band; a 200 with errors[]
		// is still an application-level failure.
		resp.AppErrors = gjson.GetBytes(respBody, "errors").IsArray()
	}

	c.logger.Debug("one-shot request completed",
		slog.String("url", req.URL),
		slog.Int("status", resp.Status),
		slog.Duration("duration", duration),
	)
	return resp, nil
}

// graphqlEnvelope builds the {query, operationName, variables} JSON body.
func graphqlEnvelope(req *descriptor.ConcreteRequest) ([]byte, error) {
	envelope := map[string]any{"query": string(req.Body)}
	if extras := req.GraphQL; extras != nil {
		if extras.OperationName != "" {
			envelope["operationName"] = extras.OperationName
		}
		if len(extras.Variables) > 0 {
			envelope["variables"] = json.RawMessage(extras.Variables)
		}
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode graphql envelope: %w", err)
	}
	return body, nil
}
