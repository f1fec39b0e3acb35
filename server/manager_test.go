package server

import (
	"context"
	stdnet "net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcx/hopnet/async"
	"github.com/lcx/hopnet/message"
	"github.com/lcx/hopnet/net"
)

type recordConn struct {
	mu        sync.Mutex
	sent      []message.Message
	connected bool
	// limit caps queued messages for TrySend; zero means unlimited
	limit int
	// block makes Send wait until it is closed
	block chan struct{}
}

func (r *recordConn) ID() uint64              { return 7 }
func (r *recordConn) RemoteAddr() stdnet.Addr { return &stdnet.TCPAddr{} }
func (r *recordConn) Close() error            { return nil }
func (r *recordConn) Connected() bool         { return r.connected }

func (r *recordConn) Send(m message.Message) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return nil
}

func (r *recordConn) TrySend(m message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.sent) >= r.limit {
		return net.ErrSendQueueFull
	}
	r.sent = append(r.sent, m)
	return nil
}

func (r *recordConn) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func testNetCfg() *net.NetCfg {
	cfg := net.DefaultNetCfg()
	cfg.Port = 0
	cfg.ConnectTimeoutMS = 1000
	return cfg
}

func startServer(t *testing.T) (*Manager, *async.Runner) {
	t.Helper()
	runner := async.NewRunner(4)
	m := NewManager(testNetCfg())
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Stop() })
	return m, runner
}

func dialClient(t *testing.T, m *Manager, inbox chan<- message.Message) net.Conn {
	t.Helper()
	c, err := net.Dial(context.Background(), m.Addr().String(), testNetCfg(), net.HandlerFuncs{
		Message: func(_ net.Conn, msg message.Message) {
			if inbox != nil {
				inbox <- msg
			}
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func collect(t *testing.T, m *Manager, n int) []Received {
	t.Helper()
	var got []Received
	require.Eventually(t, func() bool {
		m.ProcessMessages(func(r Received) { got = append(got, r) })
		return len(got) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestProcessMessagesInArrivalOrder(t *testing.T) {
	m, _ := startServer(t)
	c := dialClient(t, m, nil)

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, c.Send(message.NewCheckName(name)))
	}

	got := collect(t, m, 3)
	require.Len(t, got, 3)
	for i, name := range []string{"a", "b", "c"} {
		assert.Equal(t, name, got[i].Message.(*message.CheckNameMessage).Name)
		assert.NotNil(t, got[i].Conn)
	}
	assert.Equal(t, 0, m.ProcessMessages(func(Received) { t.Fatal("mailbox should be empty") }))
}

func TestSendToDisconnectedReturnsFalse(t *testing.T) {
	m := NewManager(nil)
	rc := &recordConn{connected: false}
	assert.False(t, m.Send(rc, message.NewCheckName("x")))
	assert.Equal(t, 0, rc.count())
}

func TestSendQueuesWithoutWaiting(t *testing.T) {
	m := NewManager(nil)
	rc := &recordConn{connected: true}

	assert.True(t, m.Send(rc, message.NewCheckName("x")))
	assert.Equal(t, 1, rc.count())
}

func TestSendDoesNotBlockOnStalledConnection(t *testing.T) {
	m := NewManager(nil)
	release := make(chan struct{})
	defer close(release)
	stalled := &recordConn{connected: true, limit: 1, block: release}

	// a busy runner must not matter either
	runner := async.NewRunner(1)
	runner.Submit(func() { <-release })

	done := make(chan []bool, 1)
	go func() {
		var results []bool
		for i := 0; i < 3; i++ {
			results = append(results, m.Send(stalled, message.NewCheckName("x")))
		}
		done <- results
	}()

	select {
	case results := <-done:
		assert.Equal(t, []bool{true, false, false}, results)
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a stalled connection")
	}
	assert.Equal(t, 1, stalled.count())
}

func TestSendKeepsOrderPerConnection(t *testing.T) {
	m := NewManager(nil)
	rc := &recordConn{connected: true}

	const n = 50
	for i := 0; i < n; i++ {
		require.True(t, m.Send(rc, message.NewCheckName(strconv.Itoa(i))))
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	require.Len(t, rc.sent, n)
	for i, msg := range rc.sent {
		assert.Equal(t, strconv.Itoa(i), msg.(*message.CheckNameMessage).Name)
	}
}

func TestReplyReachesClient(t *testing.T) {
	m, _ := startServer(t)
	inbox := make(chan message.Message, 1)
	c := dialClient(t, m, inbox)
	require.NoError(t, c.Send(message.NewCheckName("ann")))

	got := collect(t, m, 1)
	assert.True(t, m.Send(got[0].Conn, message.NewConfirmName("ann", true)))

	select {
	case msg := <-inbox:
		assert.Equal(t, message.KindConfirmName, msg.Kind())
	case <-time.After(2 * time.Second):
		t.Fatal("reply not received")
	}
}

func TestBroadcastWithFilter(t *testing.T) {
	m, _ := startServer(t)
	inA := make(chan message.Message, 1)
	inB := make(chan message.Message, 1)
	a := dialClient(t, m, inA)
	dialClient(t, m, inB)
	require.Eventually(t, func() bool { return len(m.Connections()) == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Send(message.NewCheckName("a")))
	first := collect(t, m, 1)[0].Conn

	n := m.Broadcast(message.NewLevels(nil), func(c net.Conn) bool { return c.ID() != first.ID() })
	assert.Equal(t, 1, n)
	select {
	case <-inB:
	case <-time.After(2 * time.Second):
		t.Fatal("filtered broadcast not received")
	}
	select {
	case <-inA:
		t.Fatal("excluded connection received broadcast")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, 2, m.Broadcast(message.NewLevels(nil), nil))
}

func TestConnectionTracking(t *testing.T) {
	m, _ := startServer(t)
	c := dialClient(t, m, nil)
	require.Eventually(t, func() bool { return len(m.Connections()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return len(m.Connections()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestStop(t *testing.T) {
	m := NewManager(testNetCfg())
	assert.ErrorIs(t, m.Stop(), errNotStarted)

	require.NoError(t, m.Start())
	dialClient(t, m, nil)
	assert.NoError(t, m.Stop())
}

func TestLoopRunsHandlerThenCompletions(t *testing.T) {
	m, runner := startServer(t)
	c := dialClient(t, m, nil)

	var order []string
	loop := NewLoop(m, runner, func(r Received) {
		order = append(order, "handle")
		async.Go(runner, func() (int, error) { return 1, nil }, func(int, error) {
			order = append(order, "complete")
		})
	}, 100)

	require.NoError(t, c.Send(message.NewCheckName("a")))
	require.Eventually(t, func() bool {
		loop.Tick()
		return len(order) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"handle", "complete"}, order)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestServerCfgValidate(t *testing.T) {
	assert.NoError(t, DefaultServerCfg().Validate())
	assert.Error(t, (&ServerCfg{TickRate: 0}).Validate())
	assert.Error(t, (&ServerCfg{TickRate: 20, AsyncWorkers: -1}).Validate())
}
