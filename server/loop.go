package server

import (
	"context"
	"time"

	"github.com/lcx/hopnet/async"
)

// Loop is the server's tick thread.
type Loop struct {
	manager *Manager
	runner  *async.Runner
	handle  func(Received)
	period  time.Duration
}

// NewLoop ticks tickRate times per second.
func NewLoop(manager *Manager, runner *async.Runner, handle func(Received), tickRate int) *Loop {
	if tickRate <= 0 {
		tickRate = DefaultServerCfg().TickRate
	}
	return &Loop{
		manager: manager,
		runner:  runner,
		handle:  handle,
		period:  time.Second / time.Duration(tickRate),
	}
}

// Tick drains the mailbox through the handler, then runs finished async
// completions.
func (l *Loop) Tick() {
	l.manager.ProcessMessages(l.handle)
	l.runner.Flush()
}

// Run ticks until ctx is done. It must be the only caller of Tick.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}
