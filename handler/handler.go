// Package handler routes inbound server messages by kind. Store access runs
// on the async runner and replies are sent from its completions, so file I/O
// never happens on the tick thread.
package handler

import (
	"github.com/google/uuid"

	"github.com/lcx/hopnet/async"
	"github.com/lcx/hopnet/log"
	"github.com/lcx/hopnet/message"
	"github.com/lcx/hopnet/metrics"
	"github.com/lcx/hopnet/namecheck"
	"github.com/lcx/hopnet/net"
	"github.com/lcx/hopnet/server"
)

// MaxLevelsPerRequest caps RequestLevels.Count.
const MaxLevelsPerRequest = 100

// Sender is the reply side of the server manager.
type Sender interface {
	Send(c net.Conn, m message.Message) bool
}

// LevelStore is the data layer the handler needs.
type LevelStore interface {
	SubmitLevel(data string) (uuid.UUID, error)
	SubmitScore(id uuid.UUID, name string, time int64) (bool, error)
	GetScoreboard(id uuid.UUID) ([message.ScoreboardSize]*message.ScoreboardEntry, error)
	GetLevelData(id uuid.UUID) (string, bool, error)
	GetLevels(count int, exclude []string) ([]uuid.UUID, error)
}

type route func(c net.Conn, m message.Message)

// Handler dispatches server.Received values.
type Handler struct {
	gate   message.Gate
	sender Sender
	runner *async.Runner
	store  LevelStore
	names  namecheck.Filter
	routes map[message.Kind]route
}

// Option customizes a Handler.
type Option func(*Handler)

// WithGate replaces the default version gate.
func WithGate(g message.Gate) Option {
	return func(h *Handler) {
		h.gate = g
	}
}

// New wires a handler for every request kind.
func New(sender Sender, runner *async.Runner, store LevelStore, names namecheck.Filter, opts ...Option) *Handler {
	h := &Handler{
		gate:   message.DefaultGate(),
		sender: sender,
		runner: runner,
		store:  store,
		names:  names,
		routes: make(map[message.Kind]route),
	}
	for _, opt := range opts {
		opt(h)
	}

	register(h, h.onSubmitLevel)
	register(h, h.onRequestLevels)
	register(h, h.onRequestLevelData)
	register(h, h.onRequestScoreboard)
	register(h, h.onCheckName)
	register(h, h.onSubmitScore)
	return h
}

func register[T message.Message](h *Handler, fn func(net.Conn, T)) {
	h.routes[message.KindOf[T]()] = func(c net.Conn, m message.Message) {
		if typed, ok := m.(T); ok {
			fn(c, typed)
		}
	}
}

// Handle is the per-message entry point; pass it to server.Loop.
func (h *Handler) Handle(r server.Received) {
	if !h.gate.Allows(r.Message) {
		metrics.IncrCounterWithDimGroup("handler", "drop_total", 1, metrics.Dimension{"reason": "version"})
		return
	}
	kind := r.Message.Kind()
	fn, ok := h.routes[kind]
	if !ok {
		metrics.IncrCounterWithDimGroup("handler", "drop_total", 1, metrics.Dimension{"reason": "unroutable"})
		log.Debug().Stringer("kind", kind).Uint64("conn", r.Conn.ID()).Msg("no handler for message")
		return
	}
	metrics.IncrCounterWithDimGroup("handler", "dispatch_total", 1, metrics.Dimension{"kind": kind.String()})
	fn(r.Conn, r.Message)
}

// parseID logs and rejects malformed level ids.
func parseID(kind message.Kind, s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		metrics.IncrCounterWithDimGroup("handler", "drop_total", 1, metrics.Dimension{"reason": "bad_uuid"})
		log.Debug().Stringer("kind", kind).Str("uuid", s).Err(err).Msg("ignore malformed uuid")
		return uuid.Nil, false
	}
	return id, true
}
