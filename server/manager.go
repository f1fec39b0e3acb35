// Package server is the level server's NetworkManager: it accepts client
// connections, collects their messages into one mailbox drained once per
// tick, and queues replies without blocking the tick thread.
package server

import (
	"errors"
	stdnet "net"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/lcx/hopnet/log"
	"github.com/lcx/hopnet/message"
	"github.com/lcx/hopnet/metrics"
	"github.com/lcx/hopnet/net"
)

var errNotStarted = errors.New("server not started")

// Received pairs an inbound message with the connection it came from.
type Received struct {
	Conn    net.Conn
	Message message.Message
}

// Manager is the server NetworkManager.
type Manager struct {
	netCfg   *net.NetCfg
	listener *net.Listener

	connLock sync.RWMutex
	conns    []net.Conn

	mailbox net.Mailbox[Received]
}

// NewManager creates a stopped manager.
func NewManager(netCfg *net.NetCfg) *Manager {
	if netCfg == nil {
		netCfg = net.DefaultNetCfg()
	}
	return &Manager{netCfg: netCfg}
}

// Start binds the configured address and begins accepting.
func (m *Manager) Start() error {
	l, err := net.Listen(m.netCfg, connHandler{m})
	if err != nil {
		return err
	}
	m.listener = l
	return nil
}

// Listener exposes the underlying listener, e.g. for config reload.
func (m *Manager) Listener() *net.Listener {
	return m.listener
}

// Addr is the bound address, or nil before Start.
func (m *Manager) Addr() stdnet.Addr {
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// Stop closes the listener and every connection.
func (m *Manager) Stop() error {
	if m.listener == nil {
		return errNotStarted
	}
	var result *multierror.Error
	if err := m.listener.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, c := range m.Connections() {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Connections returns a snapshot of the live connections.
func (m *Manager) Connections() []net.Conn {
	m.connLock.RLock()
	defer m.connLock.RUnlock()
	return slices.Clone(m.conns)
}

// ProcessMessages hands every message received since the last call to
// handler, in arrival order. Call it once per tick from the tick thread.
func (m *Manager) ProcessMessages(handler func(Received)) int {
	batch := m.mailbox.Swap()
	for _, r := range batch {
		handler(r)
	}
	return len(batch)
}

// Send queues msg on c's send channel and returns immediately; the
// connection's send goroutine writes it. Messages to one connection keep
// their order. It returns false, and drops msg, when c is no longer
// connected or its send channel is full.
func (m *Manager) Send(c net.Conn, msg message.Message) bool {
	if !c.Connected() {
		metrics.IncrCounterWithDimGroup("server", "send_drop_total", 1, metrics.Dimension{"reason": "disconnected"})
		return false
	}
	if err := c.TrySend(msg); err != nil {
		reason := "queue_full"
		if errors.Is(err, net.ErrConnClosed) {
			reason = "disconnected"
		}
		metrics.IncrCounterWithDimGroup("server", "send_drop_total", 1, metrics.Dimension{"reason": reason})
		log.Debug().Uint64("conn", c.ID()).Stringer("kind", msg.Kind()).Err(err).Msg("send dropped")
		return false
	}
	return true
}

// Broadcast queues msg on every connection accepted by filter (all when
// filter is nil) and returns how many took it.
func (m *Manager) Broadcast(msg message.Message, filter func(net.Conn) bool) int {
	n := 0
	for _, c := range m.Connections() {
		if filter != nil && !filter(c) {
			continue
		}
		if err := c.TrySend(msg); err != nil {
			log.Debug().Uint64("conn", c.ID()).Err(err).Msg("broadcast skipped connection")
			continue
		}
		n++
	}
	return n
}

type connHandler struct {
	m *Manager
}

func (h connHandler) OnConnect(c net.Conn) {
	h.m.connLock.Lock()
	h.m.conns = append(h.m.conns, c)
	h.m.connLock.Unlock()
	log.Info().Uint64("conn", c.ID()).Stringer("remote", c.RemoteAddr()).Msg("client connected")
}

func (h connHandler) OnMessage(c net.Conn, msg message.Message) {
	metrics.IncrCounterWithDimGroup("server", "inbound_total", 1, metrics.Dimension{"kind": msg.Kind().String()})
	h.m.mailbox.Post(Received{Conn: c, Message: msg})
}

func (h connHandler) OnDisconnect(c net.Conn) {
	h.m.connLock.Lock()
	h.m.conns = slices.DeleteFunc(h.m.conns, func(x net.Conn) bool { return x.ID() == c.ID() })
	h.m.connLock.Unlock()
	log.Info().Uint64("conn", c.ID()).Msg("client disconnected")
}
