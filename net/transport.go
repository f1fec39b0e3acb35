package net

import (
	"errors"
	"net"

	"github.com/lcx/hopnet/message"
)

var (
	ErrConnClosed    = errors.New("connection closed")
	ErrSendQueueFull = errors.New("send channel is full")
	ErrFrameTooLarge = errors.New("frame exceeds object buffer size")
)

// Conn is one framed TCP connection.
type Conn interface {
	// ID is unique within the process.
	ID() uint64
	RemoteAddr() net.Addr
	Connected() bool
	// Send queues m, blocking while the send channel is full.
	Send(m message.Message) error
	// TrySend queues m or fails with ErrSendQueueFull.
	TrySend(m message.Message) error
	Close() error
}

// ConnHandler receives connection events. Every method is called from the
// connection's I/O goroutines, so implementations must be safe for
// concurrent use. OnConnect precedes any OnMessage and OnDisconnect is
// called exactly once.
type ConnHandler interface {
	OnConnect(c Conn)
	OnMessage(c Conn, m message.Message)
	OnDisconnect(c Conn)
}

// HandlerFuncs adapts plain functions to ConnHandler. Nil fields are skipped.
type HandlerFuncs struct {
	Connect    func(c Conn)
	Message    func(c Conn, m message.Message)
	Disconnect func(c Conn)
}

func (h HandlerFuncs) OnConnect(c Conn) {
	if h.Connect != nil {
		h.Connect(c)
	}
}

func (h HandlerFuncs) OnMessage(c Conn, m message.Message) {
	if h.Message != nil {
		h.Message(c, m)
	}
}

func (h HandlerFuncs) OnDisconnect(c Conn) {
	if h.Disconnect != nil {
		h.Disconnect(c)
	}
}
