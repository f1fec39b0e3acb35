// Package async runs blocking work off the tick thread and hands the results
// back to it.
//
//	async.Go(runner, func() (uuid.UUID, error) { return st.SubmitLevel(data) },
//		func(id uuid.UUID, err error) { /* runs inside runner.Flush */ })
package async

import (
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/lcx/hopnet/metrics"
	"github.com/lcx/hopnet/net"
)

// Runner owns a goroutine pool and a completion mailbox drained by Flush.
// Submitted work waits in an unbounded queue and a feeder goroutine hands it
// to the pool, so callers never wait for a free worker.
type Runner struct {
	pool        *pool.Pool
	inflight    sync.WaitGroup
	completions net.Mailbox[func()]

	queueLock sync.Mutex
	queue     []func()
	wake      chan struct{}
	closing   chan struct{}
	fed       chan struct{}
}

// NewRunner limits the pool to maxGoroutines; zero or less means no limit.
func NewRunner(maxGoroutines int) *Runner {
	p := pool.New()
	if maxGoroutines > 0 {
		p = p.WithMaxGoroutines(maxGoroutines)
	}
	r := &Runner{
		pool:    p,
		wake:    make(chan struct{}, 1),
		closing: make(chan struct{}),
		fed:     make(chan struct{}),
	}
	go r.feed()
	return r
}

// Submit queues work for the pool with no completion. It never blocks.
func (r *Runner) Submit(work func()) {
	metrics.IncrCounterWithGroup("async", "submit_total", 1)
	r.inflight.Add(1)
	r.queueLock.Lock()
	r.queue = append(r.queue, work)
	r.queueLock.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) feed() {
	defer close(r.fed)
	for {
		select {
		case <-r.wake:
			r.dispatch()
		case <-r.closing:
			r.dispatch()
			return
		}
	}
}

// dispatch moves the queued work into the pool in submission order, waiting
// for free workers as needed.
func (r *Runner) dispatch() {
	r.queueLock.Lock()
	batch := r.queue
	r.queue = nil
	r.queueLock.Unlock()

	for _, work := range batch {
		r.pool.Go(func() {
			defer r.inflight.Done()
			work()
		})
	}
}

// Go runs work on the pool and queues done(result, err) for the next Flush.
func Go[T any](r *Runner, work func() (T, error), done func(T, error)) {
	r.Submit(func() {
		v, err := work()
		if done != nil {
			r.completions.Post(func() { done(v, err) })
		}
	})
}

// Flush runs the completions that arrived since the last Flush, in arrival
// order, on the calling goroutine. It returns how many ran.
func (r *Runner) Flush() int {
	batch := r.completions.Swap()
	for _, fn := range batch {
		fn()
	}
	if len(batch) > 0 {
		metrics.IncrCounterWithGroup("async", "completion_total", metrics.Value(len(batch)))
	}
	return len(batch)
}

// Wait blocks until submitted work has finished. Completions stay queued for
// Flush. The runner stays usable.
func (r *Runner) Wait() {
	r.inflight.Wait()
}

// Close runs the queued work, waits for the pool and re-raises a panic from
// any task. The runner must not be used afterwards.
func (r *Runner) Close() {
	close(r.closing)
	<-r.fed
	r.pool.Wait()
}
