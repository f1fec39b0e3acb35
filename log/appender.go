package log

import (
	"io"
	"os"
	"sync"
)

// LogAppender is an output destination for formatted records.
// Implementations must be safe for concurrent use.
type LogAppender interface {
	Write(buf []byte) (n int, err error)
	Refresh() error
	Close() error
}

// ConsoleAppender writes records to stdout, unbuffered.
type ConsoleAppender struct{}

// NewConsoleAppender creates a stdout appender.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{}
}

func (ca *ConsoleAppender) Write(buf []byte) (int, error) {
	return os.Stdout.Write(buf)
}

func (ca *ConsoleAppender) Refresh() error { return nil }

func (ca *ConsoleAppender) Close() error { return nil }

// WriterAppender adapts any io.Writer. Writes are serialized.
type WriterAppender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterAppender wraps w.
func NewWriterAppender(w io.Writer) *WriterAppender {
	return &WriterAppender{w: w}
}

func (a *WriterAppender) Write(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.w.Write(buf)
}

func (a *WriterAppender) Refresh() error { return nil }

func (a *WriterAppender) Close() error { return nil }
