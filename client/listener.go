package client

import (
	"time"

	"github.com/lcx/hopnet/message"
)

// listener is a registered interest in one message kind.
type listener struct {
	kind    message.Kind
	timeout time.Duration
	created time.Time
	fn      func(message.Message) bool
	removed bool
}

// expired reports whether the timeout has elapsed at now. A listener without
// a timeout only goes away when it consumes a message.
func (l *listener) expired(now time.Time) bool {
	return l.timeout > 0 && now.Sub(l.created) >= l.timeout
}

// Listen registers fn for messages of kind. fn is offered every matching
// message until it returns true or timeout elapses; timeout <= 0 never
// expires. Tick thread only.
func (m *Manager) Listen(kind message.Kind, timeout time.Duration, fn func(message.Message) bool) {
	m.listeners = append(m.listeners, &listener{
		kind:    kind,
		timeout: timeout,
		created: m.clock.Now(),
		fn:      fn,
	})
}

// ListenFor is Listen keyed by the message type:
//
//	client.ListenFor(nm, 5*time.Second, func(r *message.ConfirmNameMessage) bool {
//		return r.Name == name
//	})
func ListenFor[T message.Message](m *Manager, timeout time.Duration, fn func(T) bool) {
	m.Listen(message.KindOf[T](), timeout, func(msg message.Message) bool {
		typed, ok := msg.(T)
		if !ok {
			return false
		}
		return fn(typed)
	})
}

// ListenerCount is the number of live listeners. Tick thread only.
func (m *Manager) ListenerCount() int {
	return len(m.listeners)
}
