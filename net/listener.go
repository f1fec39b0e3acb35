package net

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/lcx/hopnet/config"
	"github.com/lcx/hopnet/log"
	"github.com/lcx/hopnet/message"
	"github.com/lcx/hopnet/metrics"
)

// Listener accepts connections on its own goroutine and serves each with the
// same handler.
type Listener struct {
	cfg     *NetCfg
	handler ConnHandler
	codec   *Codec
	ln      net.Listener
	done    chan struct{}

	lock  sync.RWMutex
	conns map[uint64]*tcpConn
}

// Listen binds cfg.Addr() and starts accepting.
func Listen(cfg *NetCfg, handler ConnHandler) (*Listener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		metrics.IncrCounterWithDimGroup("net", "listen_error_total", 1, metrics.Dimension{"error_type": "listen"})
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}
	l := &Listener{
		cfg:     cfg,
		handler: handler,
		codec:   NewCodec(),
		ln:      ln,
		done:    make(chan struct{}),
		conns:   make(map[uint64]*tcpConn),
	}
	go l.serve()
	log.Info().Stringer("addr", ln.Addr()).Msg("listening")
	return l, nil
}

// Addr is the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// ConnCount is the number of live connections.
func (l *Listener) ConnCount() int {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return len(l.conns)
}

// Close stops accepting and closes every live connection.
func (l *Listener) Close() error {
	err := l.ln.Close()
	<-l.done

	l.lock.RLock()
	conns := make([]*tcpConn, 0, len(l.conns))
	for _, c := range l.conns {
		conns = append(conns, c)
	}
	l.lock.RUnlock()

	for _, c := range conns {
		c.close()
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// GetConfigName implements config.ConfigChangeListener.
func (l *Listener) GetConfigName() string {
	return "net"
}

// OnConfigChanged applies a reloaded net section. Live connections pick up
// the new send and receive rates; other settings apply to connections
// accepted from now on. The bound address does not change.
func (l *Listener) OnConfigChanged(configName string, newConfig, _ config.Config) error {
	if configName != "net" {
		return nil
	}
	cfg, ok := newConfig.(*NetCfg)
	if !ok {
		return fmt.Errorf("invalid configuration type for net listener")
	}
	l.lock.Lock()
	l.cfg = cfg
	conns := make([]*tcpConn, 0, len(l.conns))
	for _, c := range l.conns {
		conns = append(conns, c)
	}
	l.lock.Unlock()

	for _, c := range conns {
		c.applyLimits(cfg)
	}
	log.Info().Int("sendRate", cfg.SendRate).Int("recvRate", cfg.RecvRate).Int("live", len(conns)).Msg("net config updated")
	return nil
}

func (l *Listener) currentCfg() *NetCfg {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.cfg
}

func (l *Listener) serve() {
	defer close(l.done)

	for {
		c, err := l.ln.Accept()
		if err != nil {
			var e net.Error
			if errors.As(err, &e) && e.Timeout() {
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				log.Error().Err(err).Msg("accept failed")
			}
			return
		}

		cfg := l.currentCfg()
		if err := tune(c, cfg); err != nil {
			log.Error().Int("bufSize", cfg.ObjectBufferSize).Err(err).Msg("set socket buffer err")
			_ = c.Close()
			continue
		}
		newConn(c, cfg, l.codec, listenerHandler{l}).serve()
	}
}

// listenerHandler tracks connections before passing events on.
type listenerHandler struct {
	l *Listener
}

func (h listenerHandler) OnConnect(c Conn) {
	h.l.lock.Lock()
	h.l.conns[c.ID()] = c.(*tcpConn)
	n := len(h.l.conns)
	h.l.lock.Unlock()

	metrics.UpdateGaugeWithGroup("net", "current_connections", metrics.Value(n))
	h.l.handler.OnConnect(c)
}

func (h listenerHandler) OnMessage(c Conn, m message.Message) {
	h.l.handler.OnMessage(c, m)
}

func (h listenerHandler) OnDisconnect(c Conn) {
	h.l.lock.Lock()
	delete(h.l.conns, c.ID())
	n := len(h.l.conns)
	h.l.lock.Unlock()

	metrics.UpdateGaugeWithGroup("net", "current_connections", metrics.Value(n))
	h.l.handler.OnDisconnect(c)
}
