// Package engine is the composition root: it wires the resolver, session
// manager, event logs, hook pipeline, one-shot client, and storage into a
// single facade an embedding host drives. All engine entry points accept a
// raw RequestDescriptor and resolve it before anything touches the network.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wirecat/wirecat/internal/config"
	"github.com/wirecat/wirecat/internal/convert"
	"github.com/wirecat/wirecat/internal/descriptor"
	"github.com/wirecat/wirecat/internal/domain"
	"github.com/wirecat/wirecat/internal/errors"
	"github.com/wirecat/wirecat/internal/eventlog"
	"github.com/wirecat/wirecat/internal/hooks"
	"github.com/wirecat/wirecat/internal/metric"
	"github.com/wirecat/wirecat/internal/oneshot"
	"github.com/wirecat/wirecat/internal/session"
	"github.com/wirecat/wirecat/internal/storage"
	"github.com/wirecat/wirecat/internal/transport/grpcport"
	"github.com/wirecat/wirecat/internal/transport/ws"
)

// Engine coordinates every component. One Engine serves one host process;
// it is safe for concurrent use.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	hooks    *hooks.Registry
	logs     *eventlog.Store
	sessions *session.Manager
	oneshot  *oneshot.Client
	repo     storage.Repository
	metrics  *metric.Metrics
	sink     Sink

	mu       sync.Mutex
	requests map[string]descriptor.RequestDescriptor // by session id, for history
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	factories  map[descriptor.Protocol]session.Factory
	unary      session.UnaryInvoker
	httpClient *http.Client
	registerer prometheus.Registerer
	sink       Sink
}

// WithFactories replaces the default transport factories. Used by tests to
// substitute in-memory transports.
func WithFactories(f map[descriptor.Protocol]session.Factory) Option {
	return func(o *options) { o.factories = f }
}

// WithUnaryInvoker replaces the default unary gRPC invoker.
func WithUnaryInvoker(inv session.UnaryInvoker) Option {
	return func(o *options) { o.unary = inv }
}

// WithHTTPClient replaces the one-shot HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRegisterer installs a Prometheus registerer for engine metrics. Nil
// (the default) disables metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithSink installs the host notification callback.
func WithSink(sink Sink) Option {
	return func(o *options) { o.sink = sink }
}

// New wires an engine from configuration. repo may be nil when persistence
// is not wanted; history and saved requests become no-ops.
func New(cfg *config.Config, repo storage.Repository, logger *slog.Logger, opts ...Option) *Engine {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.factories == nil {
		wsFactory := ws.NewFactory(logger)
		grpcFactory := grpcport.NewFactory(logger)
		o.factories = map[descriptor.Protocol]session.Factory{
			descriptor.ProtocolWS:    wsFactory,
			descriptor.ProtocolWSS:   wsFactory,
			descriptor.ProtocolGRPC:  grpcFactory,
			descriptor.ProtocolGRPCS: grpcFactory,
		}
	}
	if o.unary == nil {
		o.unary = grpcport.NewInvoker(logger)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		hooks:    hooks.NewRegistry(),
		logs:     eventlog.NewStore(),
		repo:     repo,
		metrics:  metric.New(o.registerer),
		sink:     o.sink,
		requests: make(map[string]descriptor.RequestDescriptor),
	}
	e.oneshot = oneshot.NewClient(o.httpClient, logger)
	e.sessions = session.NewManager(e.logs, o.factories, logger,
		session.WithUnaryInvoker(o.unary),
		session.WithMetrics(e.metrics),
		session.WithNotify(e.dispatch),
		session.WithConnectTimeout(cfg.ConnectTimeout),
		session.WithCloseTimeout(cfg.CloseTimeout),
	)
	return e
}

// Hooks exposes the extension hook registry for handler registration.
func (e *Engine) Hooks() *hooks.Registry { return e.hooks }

// Execute runs a one-shot request (HTTP or GraphQL) end to end: resolve,
// build-request hooks, dispatch, process-response hooks, convert.
func (e *Engine) Execute(ctx context.Context, d descriptor.RequestDescriptor) (*convert.ResponseDocument, error) {
	req, err := descriptor.Resolve(d)
	if err != nil {
		return nil, err
	}
	if req.Protocol.Streaming() {
		return nil, errors.ValidationError{
			Field:   "protocol",
			Message: fmt.Sprintf("protocol %q requires Connect, not Execute", string(req.Protocol)),
		}
	}

	req, err = e.runBuildHooks(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := e.oneshot.Execute(ctx, req)
	if err != nil {
		e.recordOneShotFailure(d, req, err, time.Since(start))
		return nil, err
	}

	resp, err = e.runResponseHooks(ctx, req, resp)
	if err != nil {
		return nil, err
	}

	doc := convert.OneShot(resp, req)
	e.recordOneShot(d, req, resp)
	e.saveRecent(req)
	return doc, nil
}

// Connect resolves a streaming request, runs build-request hooks, and opens
// a session. The returned stream document references the session's event
// log; the caller holds an implicit observer until Detach.
func (e *Engine) Connect(ctx context.Context, d descriptor.RequestDescriptor) (*convert.ResponseDocument, error) {
	req, err := descriptor.Resolve(d)
	if err != nil {
		return nil, err
	}

	req, err = e.runBuildHooks(ctx, req)
	if err != nil {
		return nil, err
	}

	s, err := e.sessions.Connect(ctx, uuid.NewString(), req)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.requests[s.ID] = d
	e.mu.Unlock()

	e.saveRecent(req)
	return convert.Streaming(s.Info()), nil
}

// Send dispatches a payload on a session.
func (e *Engine) Send(ctx context.Context, sessionID string, payload []byte) error {
	return e.sessions.Send(ctx, sessionID, payload)
}

// Pause soft-disconnects a session, keeping its log for a later Resume.
func (e *Engine) Pause(ctx context.Context, sessionID, reason string) error {
	return e.sessions.Pause(ctx, sessionID, reason)
}

// Resume re-establishes a paused session.
func (e *Engine) Resume(ctx context.Context, sessionID string) error {
	return e.sessions.Resume(ctx, sessionID)
}

// Close gracefully terminates a session. Idempotent on terminal sessions.
func (e *Engine) Close(ctx context.Context, sessionID string, code int, reason string) error {
	return e.sessions.Close(ctx, sessionID, code, reason)
}

// Cancel forcefully terminates a session. Idempotent on terminal sessions.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	return e.sessions.Cancel(ctx, sessionID)
}

// Attach registers an additional observer on a session.
func (e *Engine) Attach(sessionID string) error { return e.sessions.Attach(sessionID) }

// Detach drops an observer; terminal unobserved sessions are collected.
func (e *Engine) Detach(sessionID string) { e.sessions.Detach(sessionID) }

// Sessions lists snapshots of all live sessions.
func (e *Engine) Sessions() []session.Info { return e.sessions.List() }

// Session returns a snapshot of one session.
func (e *Engine) Session(sessionID string) (session.Info, error) {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return session.Info{}, errors.ErrSessionNotFound
	}
	return s.Info(), nil
}

// Events returns the buffered event history of a session.
func (e *Engine) Events(sessionID string) ([]eventlog.Event, error) {
	log, ok := e.logs.Lookup(sessionID)
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return log.Snapshot(), nil
}

// Subscribe returns a subscription that replays the session's buffered
// history and then delivers live events in order, without gaps or
// duplicates at the handover point.
func (e *Engine) Subscribe(sessionID string) (*eventlog.Subscription, error) {
	log, ok := e.logs.Lookup(sessionID)
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return log.Subscribe(), nil
}

// ExportCSV renders a session's event history as CSV.
func (e *Engine) ExportCSV(sessionID string) (string, error) {
	events, err := e.Events(sessionID)
	if err != nil {
		return "", err
	}
	return eventlog.ExportCSV(events), nil
}

// ExportJSON renders a session's event history as indented JSON.
func (e *Engine) ExportJSON(sessionID string) ([]byte, error) {
	events, err := e.Events(sessionID)
	if err != nil {
		return nil, err
	}
	return eventlog.ExportJSON(events)
}

// Discover lists the gRPC services a server exposes via reflection.
func (e *Engine) Discover(ctx context.Context, d descriptor.RequestDescriptor) ([]domain.Service, error) {
	req, err := descriptor.Resolve(d)
	if err != nil {
		return nil, err
	}
	return grpcport.Discover(ctx, req, e.logger)
}

// History returns persisted history entries, newest first.
func (e *Engine) History(limit int) ([]domain.HistoryEntry, error) {
	if e.repo == nil {
		return nil, nil
	}
	return e.repo.GetHistory(limit)
}

// RecentTargets returns recently used endpoints.
func (e *Engine) RecentTargets() ([]domain.Target, error) {
	if e.repo == nil {
		return nil, nil
	}
	return e.repo.GetRecentTargets()
}

// SaveRequest persists a named request descriptor.
func (e *Engine) SaveRequest(name string, d descriptor.RequestDescriptor) error {
	if e.repo == nil {
		return fmt.Errorf("no storage configured")
	}
	return e.repo.SaveRequest(name, d)
}

// LoadRequest retrieves a named request descriptor.
func (e *Engine) LoadRequest(name string) (*descriptor.RequestDescriptor, error) {
	if e.repo == nil {
		return nil, fmt.Errorf("no storage configured")
	}
	return e.repo.LoadRequest(name)
}

// ListRequests returns the names of all saved requests.
func (e *Engine) ListRequests() ([]string, error) {
	if e.repo == nil {
		return nil, nil
	}
	return e.repo.ListRequests()
}

// DeleteRequest removes a saved request.
func (e *Engine) DeleteRequest(name string) error {
	if e.repo == nil {
		return fmt.Errorf("no storage configured")
	}
	return e.repo.DeleteRequest(name)
}

// Shutdown cancels every live session. Safe to call more than once.
func (e *Engine) Shutdown(ctx context.Context) {
	for _, info := range e.sessions.List() {
		_ = e.sessions.Cancel(ctx, info.ID)
	}
}

// runBuildHooks feeds the resolved request through build-request handlers.
func (e *Engine) runBuildHooks(ctx context.Context, req *descriptor.ConcreteRequest) (*descriptor.ConcreteRequest, error) {
	out, err := e.hooks.RunStage(ctx, req.Protocol, hooks.StageBuildRequest, req)
	if err != nil {
		return nil, err
	}
	typed, ok := out.(*descriptor.ConcreteRequest)
	if !ok {
		return nil, fmt.Errorf("build-request hook returned %T, want *descriptor.ConcreteRequest", out)
	}
	return typed, nil
}

// runResponseHooks feeds a one-shot response through process-response
// handlers.
func (e *Engine) runResponseHooks(ctx context.Context, req *descriptor.ConcreteRequest, resp *oneshot.Response) (*oneshot.Response, error) {
	out, err := e.hooks.RunStage(ctx, req.Protocol, hooks.StageProcessResponse, resp)
	if err != nil {
		return nil, err
	}
	typed, ok := out.(*oneshot.Response)
	if !ok {
		return nil, fmt.Errorf("process-response hook returned %T, want *oneshot.Response", out)
	}
	return typed, nil
}

// saveRecent records the request's endpoint in the recent target list.
func (e *Engine) saveRecent(req *descriptor.ConcreteRequest) {
	if e.repo == nil {
		return
	}
	target := domain.Target{URL: req.URL, Protocol: req.Protocol}
	if err := e.repo.SaveRecentTarget(target); err != nil {
		e.logger.Warn("failed to save recent target", slog.Any("error", err))
	}
}

// recordOneShot persists a history entry for a completed one-shot exchange.
func (e *Engine) recordOneShot(d descriptor.RequestDescriptor, req *descriptor.ConcreteRequest, resp *oneshot.Response) {
	if e.repo == nil {
		return
	}
	status := "success"
	if resp.Status >= 400 || resp.AppErrors {
		status = "error"
	}
	entry := domain.HistoryEntry{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Protocol:   req.Protocol,
		Target:     req.URL,
		Method:     req.Method,
		Request:    marshalDescriptor(d),
		Status:     status,
		StatusCode: resp.Status,
		Duration:   resp.Duration,
	}
	if err := e.repo.AddHistoryEntry(entry); err != nil {
		e.logger.Warn("failed to record history", slog.Any("error", err))
	}
}

// recordOneShotFailure persists a history entry for a transport-level
// failure where no response exists.
func (e *Engine) recordOneShotFailure(d descriptor.RequestDescriptor, req *descriptor.ConcreteRequest, cause error, elapsed time.Duration) {
	if e.repo == nil {
		return
	}
	entry := domain.HistoryEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Protocol:  req.Protocol,
		Target:    req.URL,
		Method:    req.Method,
		Request:   marshalDescriptor(d),
		Status:    "error",
		Error:     cause.Error(),
		Duration:  elapsed,
	}
	if err := e.repo.AddHistoryEntry(entry); err != nil {
		e.logger.Warn("failed to record history", slog.Any("error", err))
	}
}

// recordSessionEnd persists a history entry when a streaming session
// reaches a terminal state.
func (e *Engine) recordSessionEnd(info session.Info, ev eventlog.Event) {
	// The tracking entry is dropped unconditionally; only the history write
	// depends on storage being configured.
	e.mu.Lock()
	d, tracked := e.requests[info.ID]
	delete(e.requests, info.ID)
	e.mu.Unlock()
	if e.repo == nil || !tracked {
		return
	}

	status := "success"
	var cause string
	switch ev.Kind {
	case eventlog.KindSystemCancel:
		status = "cancelled"
	case eventlog.KindSystemError:
		status = "error"
		if ev.Error != nil {
			cause = ev.Error.Message
		}
	}

	var messages int
	if log, ok := e.logs.Lookup(info.ID); ok {
		for _, le := range log.Snapshot() {
			if !le.Kind.System() {
				messages++
			}
		}
	}

	method := ""
	if info.Grpc != nil {
		method = info.Grpc.Service + "/" + info.Grpc.Method
	}

	entry := domain.HistoryEntry{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		Protocol:     info.Protocol,
		Target:       info.Target,
		Method:       method,
		SessionID:    info.ID,
		Request:      marshalDescriptor(d),
		Status:       status,
		Error:        cause,
		Duration:     time.Since(info.CreatedAt),
		MessageCount: messages,
	}
	if err := e.repo.AddHistoryEntry(entry); err != nil {
		e.logger.Warn("failed to record history", slog.Any("error", err))
	}
}

func marshalDescriptor(d descriptor.RequestDescriptor) string {
	data, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(data)
}
