package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wirecat/wirecat/internal/descriptor"
	"github.com/wirecat/wirecat/internal/errors"
	"github.com/wirecat/wirecat/internal/eventlog"
	"github.com/wirecat/wirecat/internal/metric"
)

const (
	// defaultConnectTimeout bounds transport establishment.
	defaultConnectTimeout = 15 * time.Second
	// defaultCloseTimeout bounds graceful shutdown confirmation. Teardown is
	// optimistic: when the peer does not confirm within this window the
	// session still transitions terminally, and the lost confirmation is
	// recorded as a CLEANUP_WARNING rather than an error.
	defaultCloseTimeout = 5 * time.Second
)

// Notify receives every event appended to a session's log, for fan-out to
// host observers. It must not block: it is called on the transport pump.
type Notify func(info Info, e eventlog.Event)

// Manager drives the lifecycle of all sessions. Exactly one Manager owns
// the transport for a given session id; sessions are looked up or created
// exactly once per id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	logs      *eventlog.Store
	factories map[descriptor.Protocol]Factory
	unary     UnaryInvoker
	logger    *slog.Logger
	metrics   *metric.Metrics
	notify    Notify

	connectTimeout time.Duration
	closeTimeout   time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithUnaryInvoker installs the invoker used for unary gRPC sessions.
func WithUnaryInvoker(inv UnaryInvoker) Option {
	return func(m *Manager) { m.unary = inv }
}

// WithMetrics installs engine metrics.
func WithMetrics(mx *metric.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithNotify installs the observer fan-out callback.
func WithNotify(fn Notify) Option {
	return func(m *Manager) { m.notify = fn }
}

// WithCloseTimeout overrides the graceful-shutdown confirmation bound.
func WithCloseTimeout(d time.Duration) Option {
	return func(m *Manager) { m.closeTimeout = d }
}

// WithConnectTimeout overrides the transport establishment bound.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) { m.connectTimeout = d }
}

// NewManager creates a session manager. Factories map each streaming
// protocol to its transport implementation; logs receive every session
// event.
func NewManager(logs *eventlog.Store, factories map[descriptor.Protocol]Factory, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		sessions:       make(map[string]*Session),
		logs:           logs,
		factories:      factories,
		logger:         logger,
		connectTimeout: defaultConnectTimeout,
		closeTimeout:   defaultCloseTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns snapshots of all live sessions.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	return out
}

// Connect creates a session for a resolved streaming request and begins
// establishing its transport. The returned session is in Connecting (or
// Idle for unary gRPC, which dials lazily on first Send). The id may be
// caller-supplied; an empty id generates one.
func (m *Manager) Connect(ctx context.Context, id string, req *descriptor.ConcreteRequest) (*Session, error) {
	if !req.Protocol.Streaming() {
		return nil, errors.ValidationError{Field: "protocol", Message: fmt.Sprintf("protocol %q does not open a session", string(req.Protocol))}
	}
	if id == "" {
		id = uuid.NewString()
	}

	s := &Session{
		ID:        id,
		Protocol:  req.Protocol,
		Target:    req.URL,
		CreatedAt: time.Now(),
		request:   req,
		// The creating caller holds an implicit observer until Detach, so a
		// fast connect failure cannot garbage-collect the log before the
		// host ever attaches.
		observers: 1,
	}
	if req.Grpc != nil {
		s.CallType = req.Grpc.CallType
	}
	if s.Unary() {
		s.state = StateIdle
		if m.unary == nil {
			return nil, fmt.Errorf("no unary invoker configured")
		}
	} else {
		s.state = StateConnecting
		if _, ok := m.factories[req.Protocol]; !ok {
			return nil, fmt.Errorf("no transport registered for protocol %q", string(req.Protocol))
		}
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("session %q already exists", id)
	}
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session created",
		slog.String("session", id),
		slog.String("protocol", string(req.Protocol)),
		slog.String("target", req.URL),
	)
	if m.metrics != nil {
		m.metrics.SessionStarted(string(req.Protocol))
	}

	if !s.Unary() {
		go m.establish(s)
	}
	return s, nil
}

// establish dials the transport and moves the session to Open on success or
// Errored on failure. Used for both initial connect and resume.
func (m *Manager) establish(s *Session) {
	s.mu.Lock()
	req := s.request
	gen := s.gen
	s.mu.Unlock()

	factory := m.factories[s.Protocol]
	t, err := factory.Dial(req)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.connectTimeout)
		defer cancel()
		var events <-chan TransportEvent
		events, err = t.Connect(ctx)
		if err == nil {
			s.mu.Lock()
			if s.gen != gen {
				// Session was torn down while connecting.
				s.mu.Unlock()
				go m.closeTransport(s, t)
				return
			}
			s.gen++
			gen = s.gen
			s.transport = t
			s.state = StateOpen
			s.mu.Unlock()

			m.append(s, eventlog.Event{Kind: eventlog.KindSystemOpen})
			go m.pump(s, gen, events)
			return
		}
	}

	engErr := errors.Classify(fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err))
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.state = StateErrored
	s.mu.Unlock()

	m.appendError(s, engErr)
	m.logger.Warn("session connect failed",
		slog.String("session", s.ID),
		slog.Any("error", err),
	)
	m.sessionEnded(s)
}

// pump feeds transport events into the session log until the transport is
// done or the generation is invalidated by pause/close/cancel.
func (m *Manager) pump(s *Session, gen int, events <-chan TransportEvent) {
	for ev := range events {
		s.mu.Lock()
		stale := s.gen != gen
		s.mu.Unlock()
		if stale {
			return
		}

		switch ev.Kind {
		case TransportData:
			m.append(s, eventlog.Event{Kind: eventlog.KindDataReceived, Data: ev.Data})

		case TransportError:
			engErr := errors.Classify(ev.Err)
			if !ev.Fatal {
				m.appendError(s, engErr)
				continue
			}
			s.mu.Lock()
			if s.gen != gen {
				s.mu.Unlock()
				return
			}
			s.gen++
			s.state = StateErrored
			s.transport = nil
			s.mu.Unlock()

			m.appendError(s, engErr)
			if m.metrics != nil {
				m.metrics.TransportError(string(s.Protocol))
			}
			m.sessionEnded(s)
			return

		case TransportClosed:
			s.mu.Lock()
			if s.gen != gen {
				s.mu.Unlock()
				return
			}
			s.gen++
			s.state = StateClosed
			s.transport = nil
			s.mu.Unlock()

			m.append(s, eventlog.Event{Kind: eventlog.KindSystemClose, Code: ev.Code, Reason: ev.Reason})
			m.sessionEnded(s)
			return
		}
	}
}

// Send dispatches a payload on an open session. The data-sent event is
// appended before dispatch so the log always reflects intent, even if the
// transport write fails afterwards.
//
// Send failure policy is protocol-specific: a failed WebSocket write
// appends system-error and leaves the session Open (the read pump decides
// liveness); a failed gRPC stream write is terminal because grpc-go poisons
// the stream. Unary gRPC sessions connect lazily here and may re-enter
// Sending from Responded or Errored.
func (m *Manager) Send(ctx context.Context, id string, payload []byte) error {
	s, ok := m.Get(id)
	if !ok {
		return errors.ErrSessionNotFound
	}

	if s.Unary() {
		return m.sendUnary(ctx, s, payload)
	}

	s.mu.Lock()
	if s.state != StateOpen {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: send in state %s", errors.ErrInvalidState, state)
	}
	t := s.transport
	s.mu.Unlock()

	m.append(s, eventlog.Event{Kind: eventlog.KindDataSent, Data: payload})

	if err := t.Send(ctx, payload); err != nil {
		engErr := errors.Classify(err)
		engErr.Code = errors.CodeSendFailed
		m.appendError(s, engErr)

		grpcFamily := s.Protocol == descriptor.ProtocolGRPC || s.Protocol == descriptor.ProtocolGRPCS
		if grpcFamily && !stderrors.Is(err, errors.ErrSendNotSupported) {
			s.mu.Lock()
			s.gen++
			s.state = StateErrored
			s.transport = nil
			s.mu.Unlock()
			go m.closeTransport(s, t)
			m.sessionEnded(s)
		}
		return err
	}
	return nil
}

// sendUnary runs the reduced unary sub-machine: every call dials, invokes,
// and tears down its own transport.
func (m *Manager) sendUnary(ctx context.Context, s *Session, payload []byte) error {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateResponded, StateErrored:
		s.state = StateSending
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: unary send in state %s", errors.ErrInvalidState, state)
	}
	req := s.request
	s.mu.Unlock()

	m.append(s, eventlog.Event{Kind: eventlog.KindDataSent, Data: payload})

	go func() {
		resp, err := m.unary.Invoke(ctx, req, payload)
		if err != nil {
			engErr := errors.ClassifyGRPC(err)
			s.mu.Lock()
			s.state = StateErrored
			s.mu.Unlock()
			m.appendError(s, engErr)
			return
		}
		s.mu.Lock()
		s.state = StateResponded
		s.mu.Unlock()
		m.append(s, eventlog.Event{Kind: eventlog.KindUnaryResponse, Data: resp})
	}()
	return nil
}

// Pause soft-disconnects an open session: the transport is torn down but
// the session and its event log survive, so Resume can continue where it
// left off.
func (m *Manager) Pause(ctx context.Context, id, reason string) error {
	s, ok := m.Get(id)
	if !ok {
		return errors.ErrSessionNotFound
	}

	s.mu.Lock()
	if s.state != StateOpen {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: pause in state %s", errors.ErrInvalidState, state)
	}
	s.gen++
	s.state = StatePaused
	t := s.transport
	s.transport = nil
	s.mu.Unlock()

	m.append(s, eventlog.Event{Kind: eventlog.KindSystemPause, Reason: reason})
	m.logger.Info("session paused", slog.String("session", id), slog.String("reason", reason))

	go m.closeTransport(s, t)
	return nil
}

// Resume re-establishes the transport of a paused session against the same
// target. History is not replayed into the log; fresh events continue after
// the pause marker, preserving pre-pause/post-resume order.
func (m *Manager) Resume(ctx context.Context, id string) error {
	s, ok := m.Get(id)
	if !ok {
		return errors.ErrSessionNotFound
	}

	s.mu.Lock()
	if s.state != StatePaused {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: resume in state %s", errors.ErrInvalidState, state)
	}
	s.gen++
	s.state = StateConnecting
	s.mu.Unlock()

	m.logger.Info("session resuming", slog.String("session", id))
	go m.establish(s)
	return nil
}

// Close gracefully terminates a session from Open or Paused. Calling Close
// or Cancel on an already-terminal session is a no-op: multiple observers
// may request teardown concurrently.
func (m *Manager) Close(ctx context.Context, id string, code int, reason string) error {
	return m.terminate(id, eventlog.Event{Kind: eventlog.KindSystemClose, Code: code, Reason: reason}, StateClosed)
}

// Cancel forcefully terminates a session from Open or Paused. Idempotent,
// like Close.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	return m.terminate(id, eventlog.Event{Kind: eventlog.KindSystemCancel}, StateCancelled)
}

func (m *Manager) terminate(id string, e eventlog.Event, target State) error {
	s, ok := m.Get(id)
	if !ok {
		return errors.ErrSessionNotFound
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	if s.state != StateOpen && s.state != StatePaused {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: terminate in state %s", errors.ErrInvalidState, state)
	}
	s.gen++
	s.state = target
	t := s.transport
	s.transport = nil
	s.mu.Unlock()

	// A graceful close of a finishing transport (client-streaming or bidi
	// gRPC) yields final frames; record them ahead of the close marker.
	if f, ok := t.(Finisher); ok && target == StateClosed {
		ctx, cancel := context.WithTimeout(context.Background(), m.closeTimeout)
		frames, err := f.Finish(ctx)
		cancel()
		for _, frame := range frames {
			m.append(s, eventlog.Event{Kind: eventlog.KindDataReceived, Data: frame})
		}
		if err != nil {
			m.appendError(s, errors.ClassifyGRPC(err))
		}
		t = nil
	}

	m.append(s, e)
	m.logger.Info("session terminated",
		slog.String("session", id),
		slog.String("state", target.String()),
	)

	if t != nil {
		go m.closeTransport(s, t)
	}
	m.sessionEnded(s)
	return nil
}

// closeTransport shuts a transport down with a bounded wait. Termination is
// already reflected locally; a peer that never confirms costs nothing but
// this goroutine, and the missed confirmation surfaces as a cleanup notice
// in the log, not an error.
func (m *Manager) closeTransport(s *Session, t Transport) {
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.closeTimeout)
	defer cancel()
	if err := t.Close(ctx, 0, ""); err != nil {
		m.logger.Debug("transport shutdown not confirmed",
			slog.String("session", s.ID),
			slog.Any("error", err),
		)
		if _, ok := m.logs.Lookup(s.ID); ok {
			m.appendError(s, &errors.EngineError{
				Err:      err,
				Severity: errors.SeverityInfo,
				Code:     errors.CodeCleanupWarning,
				Message:  "connection cleanup did not complete",
				Details:  err.Error(),
			})
		}
	}
}

// Attach registers a host observer on a session, preventing garbage
// collection of its buffered history.
func (m *Manager) Attach(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return errors.ErrSessionNotFound
	}
	s.mu.Lock()
	s.observers++
	s.mu.Unlock()
	return nil
}

// Detach drops an observer. Once a terminal session has no observers, the
// session and its log are garbage-collected.
func (m *Manager) Detach(id string) {
	s, ok := m.Get(id)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.observers > 0 {
		s.observers--
	}
	s.mu.Unlock()
	m.maybeCollect(s)
}

// sessionEnded runs bookkeeping after a terminal transition.
func (m *Manager) sessionEnded(s *Session) {
	if m.metrics != nil {
		m.metrics.SessionEnded(string(s.Protocol))
	}
	m.maybeCollect(s)
}

// maybeCollect removes a session once it is terminal and unobserved. Paused
// sessions are never collected: their buffered history must survive for a
// later reattach. For unary sessions Responded counts as terminal once no
// observer remains, since re-send requires an attached caller.
func (m *Manager) maybeCollect(s *Session) {
	s.mu.Lock()
	terminal := s.state.Terminal() || (s.Unary() && s.state == StateResponded)
	collectable := terminal && s.observers == 0
	s.mu.Unlock()
	if !collectable {
		return
	}

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	m.logs.Remove(s.ID)
	m.logger.Debug("session collected", slog.String("session", s.ID))
}

// append stamps and records an event, updates metrics, and notifies the
// host observer callback.
func (m *Manager) append(s *Session, e eventlog.Event) {
	e.SessionID = s.ID
	stamped := m.logs.Get(s.ID).Append(e)
	if m.metrics != nil {
		m.metrics.EventAppended(string(e.Kind))
	}
	if m.notify != nil {
		m.notify(s.Info(), stamped)
	}
}

// appendError records a classified error as a system-error event. Cleanup
// notices keep their info classification so hosts do not flip the visual
// error state for them.
func (m *Manager) appendError(s *Session, engErr *errors.EngineError) {
	m.append(s, eventlog.Event{
		Kind: eventlog.KindSystemError,
		Error: &eventlog.ErrorInfo{
			Message: engErr.Message,
			Code:    engErr.Code,
			Details: engErr.Details,
		},
	})
}
