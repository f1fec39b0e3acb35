package net

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcx/hopnet/log"
	"github.com/lcx/hopnet/message"
	"github.com/lcx/hopnet/metrics"
)

var _connSeq atomic.Uint64

// tcpConn owns a socket and two goroutines: serveRecv decodes frames and
// hands them to the handler, serveSend drains sendCh onto the socket.
type tcpConn struct {
	id         uint64
	cfg        *NetCfg
	conn       net.Conn
	remoteAddr net.Addr
	codec      *Codec
	handler    ConnHandler

	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
	sendCh    chan message.Message

	sendLimiter atomic.Pointer[FunnelLimiter]
	recvLimiter atomic.Pointer[TokenLimiter]
}

func newConn(c net.Conn, cfg *NetCfg, codec *Codec, handler ConnHandler) *tcpConn {
	ctx, cancel := context.WithCancel(context.Background())
	t := &tcpConn{
		id:         _connSeq.Add(1),
		cfg:        cfg,
		conn:       c,
		remoteAddr: c.RemoteAddr(),
		codec:      codec,
		handler:    handler,
		ctx:        ctx,
		cancel:     cancel,
		sendCh:     make(chan message.Message, cfg.SendChannelSize),
	}
	t.applyLimits(cfg)
	return t
}

// applyLimits sets the send and receive rates from cfg. A zero rate turns
// the limiter off; live limiters are reloaded in place.
func (t *tcpConn) applyLimits(cfg *NetCfg) {
	if cfg.SendRate <= 0 {
		t.sendLimiter.Store(nil)
	} else if l := t.sendLimiter.Load(); l != nil {
		l.Reload(cfg.SendRate)
	} else {
		t.sendLimiter.Store(NewFunnelLimiter(cfg.SendRate))
	}

	if cfg.RecvRate <= 0 {
		t.recvLimiter.Store(nil)
		return
	}
	burst := cfg.RecvBurst
	if burst <= 0 {
		burst = cfg.RecvRate
	}
	if l := t.recvLimiter.Load(); l != nil {
		l.Reload(cfg.RecvRate, burst)
	} else {
		t.recvLimiter.Store(NewTokenLimiter(cfg.RecvRate, burst))
	}
}

// tune applies socket buffer sizes.
func tune(c net.Conn, cfg *NetCfg) error {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetReadBuffer(cfg.ObjectBufferSize); err != nil {
		return err
	}
	if err := tc.SetWriteBuffer(cfg.WriteBufferSize); err != nil {
		return err
	}
	return tc.SetNoDelay(true)
}

func (t *tcpConn) ID() uint64 {
	return t.id
}

func (t *tcpConn) RemoteAddr() net.Addr {
	return t.remoteAddr
}

func (t *tcpConn) Connected() bool {
	return !t.closed.Load()
}

func (t *tcpConn) Send(m message.Message) error {
	if t.closed.Load() {
		return ErrConnClosed
	}
	select {
	case t.sendCh <- m:
		return nil
	case <-t.ctx.Done():
		return ErrConnClosed
	}
}

func (t *tcpConn) TrySend(m message.Message) error {
	if t.closed.Load() {
		return ErrConnClosed
	}
	select {
	case t.sendCh <- m:
		return nil
	default:
		metrics.IncrCounterWithGroup("net", "send_queue_full_total", 1)
		return ErrSendQueueFull
	}
}

func (t *tcpConn) Close() error {
	t.close()
	return nil
}

func (t *tcpConn) close() {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		// notify send goroutine to exit
		t.cancel()
		_ = t.conn.Close()

		metrics.IncrCounterWithGroup("net", "connection_close_total", 1)
		log.Debug().Uint64("conn", t.id).Stringer("remote", t.remoteAddr).Msg("connection closed")
		t.handler.OnDisconnect(t)
	})
}

// serve announces the connection and starts its goroutines.
func (t *tcpConn) serve() {
	metrics.IncrCounterWithGroup("net", "connection_success_total", 1)
	t.handler.OnConnect(t)
	go t.serveSend()
	go t.serveRecv()
}

func (t *tcpConn) serveRecv() {
	defer t.close()

	r := bufio.NewReader(t.conn)
	head := make([]byte, PRE_HEAD_SIZE)
	for {
		quit, err := t.recvFrame(r, head)
		if err != nil && !quit {
			log.Debug().Uint64("conn", t.id).Err(err).Msg("drop inbound frame")
		}
		if quit {
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Info().Uint64("conn", t.id).Err(err).Msg("recv loop stopped")
			}
			return
		}
	}
}

// recvFrame reads one frame. Decode failures drop the frame and keep the
// connection; read and framing failures end it.
func (t *tcpConn) recvFrame(r *bufio.Reader, head []byte) (quitLoop bool, _ error) {
	t.setReadDeadline()
	if _, err := io.ReadFull(r, head); err != nil {
		return true, err
	}
	preHead, err := DecodePreHead(head)
	if err != nil {
		return true, err
	}
	if preHead.BodySize > uint32(t.cfg.ObjectBufferSize) {
		metrics.IncrCounterWithDimGroup("net", "recv_drop_total", 1, metrics.Dimension{"reason": "too_large"})
		return true, ErrFrameTooLarge
	}

	body := make([]byte, preHead.BodySize)
	if _, err := io.ReadFull(r, body); err != nil {
		return true, err
	}

	if l := t.recvLimiter.Load(); l != nil && !l.Allow() {
		metrics.IncrCounterWithDimGroup("net", "recv_drop_total", 1, metrics.Dimension{"reason": "rate_limit"})
		return false, errors.New("inbound rate limit exceeded")
	}

	m, err := t.codec.Decode(body)
	if err != nil {
		metrics.IncrCounterWithDimGroup("net", "recv_drop_total", 1, metrics.Dimension{"reason": "decode"})
		return false, err
	}
	metrics.IncrCounterWithDimGroup("net", "recv_total", 1, metrics.Dimension{"kind": m.Kind().String()})
	t.handler.OnMessage(t, m)
	return false, nil
}

func (t *tcpConn) serveSend() {
	for {
		select {
		case <-t.ctx.Done():
			return
		case m := <-t.sendCh:
			frame, err := t.codec.EncodeFrame(m, t.cfg.ObjectBufferSize)
			if err != nil {
				metrics.IncrCounterWithDimGroup("net", "send_drop_total", 1, metrics.Dimension{"kind": m.Kind().String()})
				log.Error().Uint64("conn", t.id).Err(err).Msg("drop outbound message")
				continue
			}
			if err := t.write(frame); err != nil {
				log.Info().Uint64("conn", t.id).Err(err).Msg("send loop stopped")
				t.close()
				return
			}
			metrics.IncrCounterWithDimGroup("net", "send_total", 1, metrics.Dimension{"kind": m.Kind().String()})
		}
	}
}

func (t *tcpConn) write(frame []byte) error {
	if l := t.sendLimiter.Load(); l != nil {
		l.Take()
	}
	t.setWriteDeadline()
	_, err := t.conn.Write(frame)
	return err
}

func (t *tcpConn) setReadDeadline() {
	if d := t.cfg.IdleTimeout(); d > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(d))
	}
}

func (t *tcpConn) setWriteDeadline() {
	if d := t.cfg.IdleTimeout(); d > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(d))
	}
}
