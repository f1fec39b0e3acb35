// Package client is the game-side NetworkManager: one connection to the level
// server, a send queue flushed once per tick, and type-keyed listeners for
// replies.
//
// Everything except ConnectToServer, Disconnect, State and Stats must be
// called from the game's tick thread. Messages arrive on I/O goroutines and
// reach the tick thread only through the mailbox.
package client

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/lcx/hopnet/log"
	"github.com/lcx/hopnet/message"
	"github.com/lcx/hopnet/metrics"
	"github.com/lcx/hopnet/net"
)

// ConnectionState is the client's view of its server connection.
type ConnectionState int32

const (
	NotConnected ConnectionState = iota
	TryingToConnect
	Connected
	FailedConnection
)

func (s ConnectionState) String() string {
	switch s {
	case NotConnected:
		return "NotConnected"
	case TryingToConnect:
		return "TryingToConnect"
	case Connected:
		return "Connected"
	case FailedConnection:
		return "FailedConnection"
	}
	return "Unknown"
}

// ReplyHandler is offered messages no listener consumed. It returns true if
// it handled the message.
type ReplyHandler func(m message.Message) bool

// DialFunc opens a connection; net.Dial in production.
type DialFunc func(ctx context.Context, addr string, cfg *net.NetCfg, handler net.ConnHandler) (net.Conn, error)

// Stats are cumulative counters.
type Stats struct {
	Sent     uint64
	Received uint64
	Dropped  uint64
}

type received struct {
	msg message.Message
	at  time.Time
}

// Manager is the client NetworkManager.
type Manager struct {
	cfg    *ClientCfg
	netCfg *net.NetCfg
	clock  clock.Clock
	gate   message.Gate
	dial   DialFunc

	state atomic.Int32

	connMu        sync.Mutex
	conn          net.Conn
	cancelConnect context.CancelFunc
	// attempt identifies the connect in progress; Disconnect and every new
	// ConnectToServer bump it so older attempts cannot touch state
	attempt uint64

	mailbox net.Mailbox[received]

	// owned by the tick thread
	sendQueue    []message.Message
	recvQueue    []received
	listeners    []*listener
	replyHandler ReplyHandler

	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithGate replaces the default version gate.
func WithGate(g message.Gate) Option {
	return func(m *Manager) {
		m.gate = g
	}
}

// WithDialer replaces net.Dial.
func WithDialer(d DialFunc) Option {
	return func(m *Manager) {
		m.dial = d
	}
}

// NewManager creates a disconnected manager. Nil configs use the defaults.
func NewManager(cfg *ClientCfg, netCfg *net.NetCfg, opts ...Option) *Manager {
	if cfg == nil {
		cfg = DefaultClientCfg()
	}
	if netCfg == nil {
		netCfg = net.DefaultNetCfg()
	}
	m := &Manager{
		cfg:    cfg,
		netCfg: netCfg,
		clock:  clock.New(),
		gate:   message.DefaultGate(),
		dial:   net.Dial,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State may be read from any goroutine.
func (m *Manager) State() ConnectionState {
	return ConnectionState(m.state.Load())
}

func (m *Manager) Stats() Stats {
	return Stats{
		Sent:     m.sent.Load(),
		Received: m.received.Load(),
		Dropped:  m.dropped.Load(),
	}
}

// SetReplyHandler installs the fallback for messages no listener consumed.
func (m *Manager) SetReplyHandler(h ReplyHandler) {
	m.replyHandler = h
}

// ConnectToServer dials address on a background goroutine, making up to
// maxAttempts attempts RetryDelay apart. onResult, if set, is called on that
// goroutine with the outcome. Calls while a connection is up or being made
// are ignored.
func (m *Manager) ConnectToServer(address string, maxAttempts int, onResult func(bool)) {
	if !m.state.CompareAndSwap(int32(NotConnected), int32(TryingToConnect)) &&
		!m.state.CompareAndSwap(int32(FailedConnection), int32(TryingToConnect)) {
		log.Warn().Str("addr", address).Stringer("state", m.State()).Msg("connect ignored")
		return
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.connMu.Lock()
	m.attempt++
	gen := m.attempt
	m.cancelConnect = cancel
	m.connMu.Unlock()

	go m.connect(ctx, gen, address, maxAttempts, onResult)
}

// settle stores the outcome of attempt gen unless it has been superseded.
func (m *Manager) settle(gen uint64, st ConnectionState) bool {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.attempt != gen {
		return false
	}
	m.releaseConnect()
	m.state.Store(int32(st))
	return true
}

// releaseConnect frees the finished attempt's context. Callers hold connMu.
func (m *Manager) releaseConnect() {
	if m.cancelConnect != nil {
		m.cancelConnect()
		m.cancelConnect = nil
	}
}

func (m *Manager) connect(ctx context.Context, gen uint64, address string, maxAttempts int, onResult func(bool)) {
	report := func(ok bool) {
		if onResult != nil {
			onResult(ok)
		}
	}

	for attempt := 1; ; attempt++ {
		c, err := m.dial(ctx, address, m.netCfg, connHandler{m})
		if err == nil {
			m.connMu.Lock()
			if m.attempt != gen {
				// Disconnect won the race
				m.connMu.Unlock()
				_ = c.Close()
				report(false)
				return
			}
			m.conn = c
			m.releaseConnect()
			m.state.Store(int32(Connected))
			m.connMu.Unlock()
			if !c.Connected() {
				m.state.CompareAndSwap(int32(Connected), int32(NotConnected))
			}
			metrics.IncrCounterWithDimGroup("client", "connect_total", 1, metrics.Dimension{"result": "ok"})
			log.Info().Str("addr", address).Int("attempt", attempt).Msg("connected to server")
			report(true)
			return
		}

		log.Warn().Str("addr", address).Int("attempt", attempt).Int("maxAttempts", maxAttempts).Err(err).Msg("connect failed")
		if ctx.Err() != nil {
			m.settle(gen, NotConnected)
			report(false)
			return
		}
		if attempt >= maxAttempts {
			break
		}
		select {
		case <-m.clock.After(m.cfg.RetryDelay()):
		case <-ctx.Done():
			m.settle(gen, NotConnected)
			report(false)
			return
		}
	}

	if !m.settle(gen, FailedConnection) {
		report(false)
		return
	}
	metrics.IncrCounterWithDimGroup("client", "connect_total", 1, metrics.Dimension{"result": "failed"})
	log.Error().Str("addr", address).Int("attempts", maxAttempts).Msg("giving up on server, continuing offline")
	report(false)
}

// Disconnect closes the connection or abandons a connect in progress.
// Registered listeners stay and expire on their own.
func (m *Manager) Disconnect() {
	m.connMu.Lock()
	c := m.conn
	m.conn = nil
	cancel := m.cancelConnect
	m.cancelConnect = nil
	m.attempt++
	m.state.Store(int32(NotConnected))
	m.connMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		_ = c.Close()
	}
}

func (m *Manager) currentConn() net.Conn {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return m.conn
}

// Send queues msg for the next Update. Tick thread only.
func (m *Manager) Send(msg message.Message) {
	m.sendQueue = append(m.sendQueue, msg)
}

// PendingSends is the number of queued outbound messages. Tick thread only.
func (m *Manager) PendingSends() int {
	return len(m.sendQueue)
}

// PendingReceived is the number of received messages nobody handled yet.
// Tick thread only.
func (m *Manager) PendingReceived() int {
	return len(m.recvQueue)
}

// Update runs one client tick: flush sends, take the mailbox, offer
// received messages to listeners and the reply handler, expire listeners.
// Timeouts are measured on the manager's clock, not by summing delta.
func (m *Manager) Update(delta time.Duration) {
	switch m.State() {
	case Connected:
	case FailedConnection:
		if n := len(m.sendQueue); n > 0 {
			m.dropped.Add(uint64(n))
			metrics.IncrCounterWithDimGroup("client", "drop_total", metrics.Value(n), metrics.Dimension{"reason": "offline"})
			clear(m.sendQueue)
			m.sendQueue = m.sendQueue[:0]
		}
		return
	default:
		return
	}

	m.flushSends()

	for _, r := range m.mailbox.Swap() {
		m.recvQueue = append(m.recvQueue, r)
	}

	now := m.clock.Now()
	m.dispatch(now)

	m.listeners = slices.DeleteFunc(m.listeners, func(l *listener) bool {
		return l.removed || l.expired(now)
	})
}

func (m *Manager) flushSends() {
	queue := m.sendQueue
	m.sendQueue = nil
	if len(queue) == 0 {
		return
	}

	c := m.currentConn()
	for i, msg := range queue {
		if c == nil {
			m.sendQueue = append(queue[i:], m.sendQueue...)
			return
		}
		if err := c.TrySend(msg); err != nil {
			// keep the rest, in order, for the next tick
			log.Debug().Err(err).Int("remaining", len(queue)-i).Msg("send deferred")
			m.sendQueue = append(queue[i:], m.sendQueue...)
			return
		}
		m.sent.Add(1)
	}
}

func (m *Manager) dispatch(now time.Time) {
	if len(m.recvQueue) == 0 {
		return
	}
	listeners := slices.Clone(m.listeners)
	queue := m.recvQueue
	m.recvQueue = nil

	remaining := queue[:0]
	for _, r := range queue {
		if m.offer(listeners, r.msg, now) {
			continue
		}
		if m.replyHandler != nil && m.replyHandler(r.msg) {
			continue
		}
		if now.Sub(r.at) > m.cfg.QueueTimeout() {
			m.dropped.Add(1)
			metrics.IncrCounterWithDimGroup("client", "drop_total", 1, metrics.Dimension{"reason": "queue_timeout"})
			log.Debug().Stringer("kind", r.msg.Kind()).Msg("unhandled message expired")
			continue
		}
		remaining = append(remaining, r)
	}
	clear(queue[len(remaining):])
	m.recvQueue = append(remaining, m.recvQueue...)
}

// offer hands msg to every live listener of its kind, in registration order.
func (m *Manager) offer(listeners []*listener, msg message.Message, now time.Time) bool {
	consumed := false
	for _, l := range listeners {
		if l.removed || l.kind != msg.Kind() || l.expired(now) {
			continue
		}
		if l.fn(msg) {
			l.removed = true
			consumed = true
		}
	}
	return consumed
}

// connHandler feeds the manager from the connection's I/O goroutines.
type connHandler struct {
	m *Manager
}

func (h connHandler) OnConnect(net.Conn) {}

func (h connHandler) OnMessage(_ net.Conn, msg message.Message) {
	if !h.m.gate.Allows(msg) {
		h.m.dropped.Add(1)
		metrics.IncrCounterWithDimGroup("client", "drop_total", 1, metrics.Dimension{"reason": "version"})
		return
	}
	h.m.received.Add(1)
	h.m.mailbox.Post(received{msg: msg, at: h.m.clock.Now()})
}

func (h connHandler) OnDisconnect(c net.Conn) {
	h.m.connMu.Lock()
	if h.m.conn == c {
		h.m.conn = nil
	}
	h.m.connMu.Unlock()
	if h.m.state.CompareAndSwap(int32(Connected), int32(NotConnected)) {
		log.Info().Msg("disconnected from server")
	}
}
