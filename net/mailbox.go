package net

import "sync"

// Mailbox hands values from any number of producer goroutines to a single
// consumer. Producers append to the write buffer; the consumer swaps buffers
// once per tick. Both sides hold the lock only for an append or an index flip.
type Mailbox[T any] struct {
	mu    sync.Mutex
	bufs  [2][]T
	write int
}

// Post appends v to the write buffer.
func (m *Mailbox[T]) Post(v T) {
	m.mu.Lock()
	m.bufs[m.write] = append(m.bufs[m.write], v)
	m.mu.Unlock()
}

// Swap makes the write buffer readable and returns it. The returned slice is
// reused by the Swap after next, so callers must be done with it by then.
func (m *Mailbox[T]) Swap() []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	read := m.write
	m.write ^= 1
	next := m.bufs[m.write]
	clear(next)
	m.bufs[m.write] = next[:0]
	return m.bufs[read]
}

// Len is the number of values waiting for the next Swap.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bufs[m.write])
}
