package libchat

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ReconnectingEvent is emitted when an automatic reconnection attempt has
// been scheduled.
type ReconnectingEvent struct {
	Attempt int
	Delay   time.Duration
}

// Session owns the lifecycle of the real-time chat connection: the
// disconnected/connecting/connected state machine, the reconnection policy,
// room membership, typing presence and the optimistic outbound message
// pipeline. All dependencies are injected so the session carries no global
// state.
//
// All mutable collections (timeline, rooms, typing users) are replaced
// wholesale on mutation, never edited in place, so snapshots returned to
// readers stay stable while new events arrive.
type Session struct {
	cfg    Config
	logger Logger

	params           ConnParamsRepo
	transportFactory TransportFactory

	// afterFunc schedules every timer the session owns (handshake, send
	// failure, reconnect delay). Tests substitute it to drive time.
	afterFunc func(d time.Duration, fn func()) *time.Timer

	emitter *EventEmitter[sessionEvent, any]

	mu         sync.Mutex
	state      ConnectionState
	shutdown   bool
	connecting bool
	inflight   int
	// episode identifies the current connection attempt. Every handler and
	// timer captures it and re-checks it before mutating, so callbacks from
	// a torn-down connection cannot touch current state.
	episode   int
	voluntary bool
	lastErr   error
	self      ConnectedPayload
	transport Transport

	recon          *reconnector
	reconnectTimer *time.Timer
	handshakeTimer *time.Timer

	rooms    map[string]struct{}
	typing   map[string]struct{}
	timeline []Message
	pending  map[string]*time.Timer

	baseCtx context.Context
}

// NewSession builds a session around the given token getter. The websocket
// transport is used unless overridden with a custom factory.
func NewSession(cfg Config, logger Logger, tokens TokenGetter) (*Session, error) {
	cfg.defaults()

	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid endpoint %q", cfg.URL)
	}

	s := &Session{
		cfg:       cfg,
		logger:    logger.WithField("type", "chat_session"),
		params:    NewConnParamsRepo(logger, *endpoint, tokens),
		emitter:   NewEventEmitter[sessionEvent, any](),
		afterFunc: time.AfterFunc,
		recon: newReconnector(
			NewExponentialBackoff(cfg.BackoffBase, cfg.BackoffMax, cfg.BackoffJitter, nil),
			cfg.MaxReconnectAttempts,
		),
		rooms:   make(map[string]struct{}),
		typing:  make(map[string]struct{}),
		pending: make(map[string]*time.Timer),
	}
	s.transportFactory = NewWebsocketTransportFactory(
		logger,
		cfg.HandshakeTimeout,
		cfg.HeartbeatInterval,
	)

	return s, nil
}

// Connect starts a connection attempt. It is a no-op (with a sentinel error)
// while another attempt is in flight, while shut down, or without an
// authenticated user session. The attempt itself runs asynchronously; dial
// and handshake failures are routed into the reconnection policy.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()

	switch {
	case s.shutdown:
		s.mu.Unlock()
		return ErrShutdown
	case !s.cfg.Authenticated():
		s.mu.Unlock()
		return ErrNotAuthenticated
	case s.connecting || s.state == StateConnecting:
		s.mu.Unlock()
		return ErrAlreadyConnecting
	case s.state == StateConnected:
		s.mu.Unlock()
		return nil
	case s.inflight >= s.cfg.MaxConcurrentAttempts:
		s.mu.Unlock()
		return ErrTooManyAttempts
	}

	s.connecting = true
	s.inflight++
	s.episode++
	episode := s.episode
	s.baseCtx = ctx
	old := s.state
	s.state = StateConnecting
	s.mu.Unlock()

	s.emitter.Emit(eventStateChange, StateEvent{Old: old, New: StateConnecting})

	go s.attempt(ctx, episode)

	return nil
}

// attempt fetches a fresh token, dials, and hands the connection to the run
// loop. The session stays in StateConnecting until the server acknowledges
// the handshake with an EventConnected envelope.
func (s *Session) attempt(ctx context.Context, episode int) {
	params, err := s.params.Get(ctx)
	if err != nil {
		s.attemptFailed(episode, err)
		return
	}

	recv := make(chan Envelope, 32)
	tr := s.transportFactory(ctx, params, recv)

	if err := tr.Open(ctx); err != nil {
		s.attemptFailed(episode, err)
		return
	}

	s.mu.Lock()
	if episode != s.episode || s.shutdown {
		s.mu.Unlock()
		tr.Close()
		return
	}
	s.transport = tr
	// Socket open resets the reconnect counter. Logical connected waits for
	// the handshake acknowledgement.
	s.recon.reset()
	s.armHandshakeTimerLocked(episode)
	s.mu.Unlock()

	go s.run(episode, tr, recv)
}

func (s *Session) attemptFailed(episode int, err error) {
	s.mu.Lock()
	if episode != s.episode {
		s.mu.Unlock()
		return
	}
	s.logger.Errorf("connection attempt failed: %s", err)
	after := s.teardownLocked(err, false)
	s.mu.Unlock()

	for _, fn := range after {
		fn()
	}
}

func (s *Session) armHandshakeTimerLocked(episode int) {
	s.handshakeTimer = s.afterFunc(s.cfg.HandshakeTimeout, func() {
		s.mu.Lock()
		if episode != s.episode || s.state != StateConnecting {
			s.mu.Unlock()
			return
		}
		s.logger.Errorf("no handshake acknowledgement within %s", s.cfg.HandshakeTimeout)
		after := s.teardownLocked(ErrHandshakeTimeout, false)
		s.mu.Unlock()

		for _, fn := range after {
			fn()
		}
	})
}

// run pumps one connection's envelopes into the dispatcher until the
// transport closes.
func (s *Session) run(episode int, tr Transport, recv <-chan Envelope) {
	for {
		select {
		case env := <-recv:
			s.dispatch(episode, env)
		case <-tr.CloseChan():
			// Deliver whatever was decoded before the close.
			for {
				select {
				case env := <-recv:
					s.dispatch(episode, env)
					continue
				default:
				}
				break
			}
			s.transportClosed(episode, tr.CloseErr())
			return
		}
	}
}

func (s *Session) transportClosed(episode int, cause error) {
	s.mu.Lock()
	if episode != s.episode {
		s.mu.Unlock()
		return
	}
	if cause == nil {
		cause = ErrConnectionClosed
	}
	after := s.teardownLocked(cause, false)
	s.mu.Unlock()

	for _, fn := range after {
		fn()
	}
}

// dispatch routes one server envelope. Envelopes from a superseded episode
// are dropped before touching any state.
func (s *Session) dispatch(episode int, env Envelope) {
	s.mu.Lock()
	if episode != s.episode {
		s.mu.Unlock()
		return
	}

	var after []func()

	switch env.Type {
	case EventConnected:
		var p ConnectedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.logger.Warnf("bad connected payload: %s", err)
			break
		}
		after = s.handleConnectedLocked(p)

	case EventDisconnect:
		var p DisconnectPayload
		_ = json.Unmarshal(env.Payload, &p)
		voluntary := strings.Contains(p.Reason, "client")
		var cause error
		if !voluntary {
			cause = errors.Wrap(ErrConnectionClosed, p.Reason)
		}
		after = s.teardownLocked(cause, voluntary)

	case EventError, EventConnectError:
		var p ErrorPayload
		_ = json.Unmarshal(env.Payload, &p)
		after = s.teardownLocked(errors.Wrap(ErrCannotConnect, p.Message), false)

	case EventNewMessage:
		var msg Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			s.logger.Warnf("bad message payload: %s", err)
			break
		}
		s.handleNewMessageLocked(msg)

	case EventUserTyping:
		var p UserTypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			break
		}
		s.handleUserTypingLocked(p)

	case EventMessageConfirmed:
		var p MessageConfirmedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			break
		}
		s.handleConfirmedLocked(p)

	case EventMessageError:
		var p MessageErrorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			break
		}
		after = s.handleMessageErrorLocked(p)

	case EventJoinedRoom:
		var p RoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			break
		}
		s.handleJoinedRoomLocked(p.RoomID)

	case EventLeftRoom:
		var p RoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			break
		}
		s.handleLeftRoomLocked(p.RoomID)

	default:
		s.logger.Debugf("ignoring unknown event %q", env.Type)
	}

	s.mu.Unlock()

	for _, fn := range after {
		fn()
	}
}

func (s *Session) handleConnectedLocked(p ConnectedPayload) []func() {
	if s.state == StateConnected {
		return nil
	}
	if s.handshakeTimer != nil {
		s.handshakeTimer.Stop()
		s.handshakeTimer = nil
	}
	s.finishAttemptLocked()
	s.recon.reset()
	s.self = p
	s.lastErr = nil
	old := s.state
	s.state = StateConnected
	s.logger.Infof("session authorized as %s", p.Username)

	return []func(){func() {
		s.emitter.Emit(eventStateChange, StateEvent{Old: old, New: StateConnected})
	}}
}

// teardownLocked is the single cancellation point. It invalidates the
// current episode, closes the transport, clears room and typing state and,
// for involuntary disconnects, consults the reconnection policy. The
// returned callbacks must be run after the mutex is released.
func (s *Session) teardownLocked(cause error, voluntary bool) []func() {
	s.episode++
	tr := s.transport
	s.transport = nil
	s.finishAttemptLocked()

	if s.handshakeTimer != nil {
		s.handshakeTimer.Stop()
		s.handshakeTimer = nil
	}

	s.rooms = make(map[string]struct{})
	s.typing = make(map[string]struct{})

	old := s.state
	s.state = StateDisconnected
	s.lastErr = cause

	voluntary = voluntary || s.voluntary
	s.voluntary = false

	var after []func()

	if voluntary {
		if s.reconnectTimer != nil {
			s.reconnectTimer.Stop()
			s.reconnectTimer = nil
		}
		s.cancelPendingLocked()
		s.recon.reset()
		s.lastErr = nil
	} else if !s.shutdown {
		after = s.scheduleReconnectLocked(cause)
	}

	if tr != nil {
		tr.Close()
	}

	if old != StateDisconnected {
		ev := StateEvent{Old: old, New: StateDisconnected, Err: cause}
		after = append([]func(){func() {
			s.emitter.Emit(eventStateChange, ev)
		}}, after...)
	}

	return after
}

func (s *Session) scheduleReconnectLocked(cause error) []func() {
	delay, ok := s.recon.next()
	if !ok {
		s.shutdown = true
		exhausted := ErrReconnectExhausted{err: cause, attempts: s.recon.count()}
		s.lastErr = exhausted
		s.logger.Errorf("%s", exhausted)

		return []func(){func() {
			s.emitter.Emit(eventShutdown, error(exhausted))
			s.emitter.Emit(eventNotice, "connection lost, use reconnect to retry")
		}}
	}

	attempt := s.recon.count()
	s.logger.Infof("retrying to connect in %s due to %s", delay, cause)

	s.reconnectTimer = s.afterFunc(delay, s.reconnectFired)

	ev := ReconnectingEvent{Attempt: attempt, Delay: delay}
	return []func(){func() {
		s.emitter.Emit(eventReconnecting, ev)
	}}
}

// reconnectFired re-checks every precondition at fire time: the schedule-time
// snapshot means nothing after the delay has passed.
func (s *Session) reconnectFired() {
	s.mu.Lock()
	s.reconnectTimer = nil
	if s.shutdown || s.connecting || s.state != StateDisconnected || !s.cfg.Authenticated() {
		s.mu.Unlock()
		return
	}
	ctx := s.baseCtx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Connect(ctx); err != nil {
		s.logger.Debugf("scheduled reconnect skipped: %s", err)
	}
}

func (s *Session) finishAttemptLocked() {
	s.connecting = false
	if s.inflight > 0 {
		s.inflight--
	}
}

// Disconnect tears the session down voluntarily: no reconnection is
// scheduled, every timer is cancelled and all derived state is reset. It is
// idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	after := s.teardownLocked(nil, true)
	s.mu.Unlock()

	for _, fn := range after {
		fn()
	}
}

// Close disconnects and removes every registered listener.
func (s *Session) Close() {
	s.Disconnect()
	s.emitter.Close()
}

// Reconnect is the manual escape hatch out of shutdown: it clears the flag,
// resets the attempt counter and dials again.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = false
	s.recon.reset()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.mu.Unlock()

	return s.Connect(ctx)
}

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Shutdown reports whether the reconnect ceiling was reached and a manual
// Reconnect is required.
func (s *Session) Shutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// LastErr returns the error captured on the most recent failure, if any.
func (s *Session) LastErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Self returns the identity the server confirmed during the handshake.
func (s *Session) Self() ConnectedPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// OnStateChange registers a listener for connection state transitions.
func (s *Session) OnStateChange(fn func(StateEvent)) int {
	return s.emitter.On(eventStateChange, func(v any) {
		if ev, ok := v.(StateEvent); ok {
			fn(ev)
		}
	})
}

// OnReconnecting registers a listener invoked whenever an automatic
// reconnection attempt gets scheduled.
func (s *Session) OnReconnecting(fn func(ReconnectingEvent)) int {
	return s.emitter.On(eventReconnecting, func(v any) {
		if ev, ok := v.(ReconnectingEvent); ok {
			fn(ev)
		}
	})
}

// OnShutdown registers a listener invoked once the reconnect ceiling is
// reached.
func (s *Session) OnShutdown(fn func(error)) int {
	return s.emitter.On(eventShutdown, func(v any) {
		if err, ok := v.(error); ok {
			fn(err)
		}
	})
}

// OnNotice registers a listener for user-visible notices, such as per-message
// failures.
func (s *Session) OnNotice(fn func(string)) int {
	return s.emitter.On(eventNotice, func(v any) {
		if msg, ok := v.(string); ok {
			fn(msg)
		}
	})
}
