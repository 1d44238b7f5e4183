package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/dlport/internal/logging"
	"github.com/danmuck/dlport/internal/observability"
	"github.com/danmuck/dlport/internal/protocol"
	"github.com/danmuck/dlport/internal/transport"
	"github.com/rs/zerolog"
)

// State is the lifecycle of the channel owned by a Manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Manager owns the one channel to the peer. It opens it, notices when it
// goes away, fails whatever was in flight, and reopens it after the
// configured delay, forever, until Close.
type Manager struct {
	cfg    Config
	codec  protocol.Codec
	dialer transport.Dialer
	reg    *Registry
	hub    *EventHub
	logger zerolog.Logger
	rng    *rand.Rand

	state       atomic.Int32
	dispatching atomic.Bool

	mu        sync.Mutex
	conn      transport.Conn
	timer     *time.Timer
	attempt   int
	started   bool
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
	observers []func(State)
	readers   sync.WaitGroup
}

// NewManager wires a manager to its collaborators. A nil registry or hub is
// replaced with a fresh one.
func NewManager(cfg Config, dialer transport.Dialer, reg *Registry, hub *EventHub) (*Manager, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, fmt.Errorf("%w: missing dialer", ErrInvalidConfig)
	}
	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		reg = NewRegistry()
	}
	if hub == nil {
		hub = NewEventHub()
	}
	return &Manager{
		cfg:    cfg,
		codec:  codec,
		dialer: dialer,
		reg:    reg,
		hub:    hub,
		logger: logging.Component("session").With().Str("peer", cfg.Peer).Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (m *Manager) Config() Config { return m.cfg }
func (m *Manager) Codec() protocol.Codec { return m.codec }
func (m *Manager) Registry() *Registry { return m.reg }
func (m *Manager) Events() *EventHub { return m.hub }
func (m *Manager) State() State { return State(m.state.Load()) }
func (m *Manager) Connected() bool { return m.State() == StateConnected }

// OnStateChange registers fn for every state transition. Observers run with
// the manager locked and must not call Request, Send, Start or Close.
func (m *Manager) OnStateChange(fn func(State)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Start makes the first connection attempt and returns its error. A failed
// attempt has already scheduled the next one. Cancelling ctx closes the
// manager.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrManagerStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	runCtx := m.ctx
	m.mu.Unlock()

	go func() {
		<-runCtx.Done()
		_ = m.Close()
	}()
	return m.connect()
}

// Close stops reconnecting, closes the channel and fails pending requests
// with ErrClosed. It is safe to call more than once. It waits for the read
// loop to exit unless an inbound envelope is being dispatched, so event
// handlers may call it.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.setStateLocked(StateDisconnected)
	n := m.reg.RejectAll(ErrClosed)
	observability.RecordRejections("closed", n)
	observability.SetPending(0)
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if !m.dispatching.Load() {
		m.readers.Wait()
	}
	m.logger.Info().Int("rejected", n).Msg("channel manager closed")
	return err
}

func (m *Manager) connect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.State() != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.timer = nil
	m.setStateLocked(StateConnecting)
	ctx := m.ctx
	m.mu.Unlock()

	m.logger.Info().Msg("connecting to peer")
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	conn, err := m.dialer.Dial(dialCtx, m.cfg.Peer)
	cancel()
	observability.RecordDial(err == nil)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		m.setStateLocked(StateDisconnected)
		m.attempt++
		attempt := m.attempt
		delay := m.scheduleLocked()
		m.mu.Unlock()
		m.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("peer connect failed")
		return err
	}
	m.conn = conn
	m.attempt = 0
	m.setStateLocked(StateConnected)
	m.readers.Add(1)
	go m.readLoop(conn)
	m.mu.Unlock()

	m.logger.Info().Msg("connected to peer")
	return nil
}

// scheduleLocked arms the reconnect timer. The timer is the cancellation
// handle Close uses.
func (m *Manager) scheduleLocked() time.Duration {
	attempt := m.attempt
	if attempt < 1 {
		attempt = 1
	}
	delay := NextBackoffDelay(m.cfg.Reconnect, attempt, m.rng)
	m.timer = time.AfterFunc(delay, func() {
		_ = m.connect()
	})
	return delay
}

func (m *Manager) readLoop(conn transport.Conn) {
	defer m.readers.Done()
	for {
		env, err := conn.Receive()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedEnvelope) {
				m.logger.Warn().Err(err).Msg("dropping malformed envelope")
				continue
			}
			m.handleDisconnect(conn, err)
			return
		}
		m.dispatching.Store(true)
		m.route(env)
		m.dispatching.Store(false)
	}
}

func (m *Manager) route(env protocol.Envelope) {
	if env.Req != nil {
		matched := m.reg.Resolve(*env.Req, env.Data)
		observability.RecordReply(matched)
		observability.SetPending(m.reg.Len())
		if !matched {
			m.logger.Debug().Uint32("req", *env.Req).Str("msg", env.Msg).Msg("reply for unknown request ignored")
		}
		return
	}
	delivered := m.hub.Publish(env.Msg, env.Data)
	m.logger.Debug().Str("event", env.Msg).Int("delivered", delivered).Msg("peer event")
}

func (m *Manager) handleDisconnect(conn transport.Conn, cause error) {
	m.mu.Lock()
	if m.conn != conn {
		// Closed by Close or superseded; nothing to tear down here.
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = nil
	n := m.reg.RejectAll(fmt.Errorf("%w: %v", ErrDisconnected, cause))
	m.setStateLocked(StateDisconnected)
	var delay time.Duration
	if !m.closed {
		m.attempt = 1
		delay = m.scheduleLocked()
	}
	m.mu.Unlock()

	_ = conn.Close()
	observability.RecordRejections("disconnected", n)
	observability.SetPending(0)
	m.logger.Warn().
		AnErr("cause", cause).
		Int("rejected", n).
		Dur("retry_in", delay).
		Msg("disconnected from peer")
}

// Send transmits env verbatim on the current channel. A failed write drops
// the channel.
func (m *Manager) Send(ctx context.Context, env protocol.Envelope) error {
	conn, err := m.currentConn()
	if err != nil {
		return err
	}
	if err := m.write(ctx, conn, env); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

// Notify sends a fire-and-forget envelope without a correlation id.
func (m *Manager) Notify(ctx context.Context, msg string, payload any) error {
	data, err := m.encode(payload)
	if err != nil {
		return err
	}
	return m.Send(ctx, protocol.Envelope{Msg: msg, Data: data})
}

// Request sends msg with payload under a freshly allocated id and returns the
// future for its reply. When the channel is not connected it fails with
// ErrChannelUnavailable and allocates nothing. When the write fails the id
// stays consumed, the channel is torn down and ErrDisconnected is returned.
func (m *Manager) Request(ctx context.Context, msg string, payload any) (*Future, error) {
	data, err := m.encode(payload)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.conn == nil || m.State() != StateConnected {
		m.mu.Unlock()
		observability.RecordRejections("unavailable", 1)
		return nil, ErrChannelUnavailable
	}
	fut, err := m.reg.Allocate()
	conn := m.conn
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m.reg.expireAfter(fut, m.cfg.RequestTimeout, ErrRequestTimeout)

	env := protocol.Envelope{Msg: msg, Req: protocol.RequestID(fut.ID()), Data: data}
	if err := m.write(ctx, conn, env); err != nil {
		m.reg.Forget(fut.ID())
		observability.RecordRejections("write", 1)
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	observability.RecordRequest(msg)
	observability.SetPending(m.reg.Len())
	m.logger.Debug().Str("msg", msg).Uint32("req", fut.ID()).Msg("request sent")
	return fut, nil
}

// Call is Request followed by Wait. If ctx ends first the pending entry is
// dropped and a late reply is ignored.
func (m *Manager) Call(ctx context.Context, msg string, payload any) (protocol.Raw, error) {
	fut, err := m.Request(ctx, msg, payload)
	if err != nil {
		return nil, err
	}
	data, err := fut.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		select {
		case <-fut.Done():
			return fut.Result()
		default:
		}
		m.reg.Forget(fut.ID())
		observability.SetPending(m.reg.Len())
	}
	return data, err
}

func (m *Manager) currentConn() (transport.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || m.State() != StateConnected {
		return nil, ErrChannelUnavailable
	}
	return m.conn, nil
}

// write sends env on conn. A partial frame may already be on the wire when
// it fails, so the channel is dropped and reopened.
func (m *Manager) write(ctx context.Context, conn transport.Conn, env protocol.Envelope) error {
	if m.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.WriteTimeout)
		defer cancel()
	}
	err := conn.Send(ctx, env)
	if err != nil {
		m.handleDisconnect(conn, err)
	}
	return err
}

func (m *Manager) encode(payload any) (protocol.Raw, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case protocol.Raw:
		return p, nil
	default:
		return m.codec.Marshal(payload)
	}
}

func (m *Manager) setStateLocked(s State) {
	if State(m.state.Swap(int32(s))) == s {
		return
	}
	observability.SetChannelState(int(s))
	for _, fn := range m.observers {
		fn(s)
	}
}
