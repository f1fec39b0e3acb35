package net

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxSwapOrder(t *testing.T) {
	var mb Mailbox[int]
	mb.Post(1)
	mb.Post(2)
	assert.Equal(t, 2, mb.Len())

	assert.Equal(t, []int{1, 2}, mb.Swap())
	assert.Equal(t, 0, mb.Len())

	mb.Post(3)
	assert.Equal(t, []int{3}, mb.Swap())
	assert.Empty(t, mb.Swap())
}

func TestMailboxConcurrentPostNoLossNoDup(t *testing.T) {
	const producers = 8
	const perProducer = 5000

	var mb Mailbox[int]
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				mb.Post(p*perProducer + i)
			}
		}(p)
	}

	seen := make(map[int]int, producers*perProducer)
	lastPerProducer := make([]int, producers)
	for i := range lastPerProducer {
		lastPerProducer[i] = -1
	}
	drain := func() {
		for _, v := range mb.Swap() {
			seen[v]++
			p, i := v/perProducer, v%perProducer
			require.Greater(t, i, lastPerProducer[p], "producer order broken")
			lastPerProducer[p] = i
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		drain()
	}
	drain()

	assert.Len(t, seen, producers*perProducer)
	for v, n := range seen {
		if n != 1 {
			t.Fatalf("value %d delivered %d times", v, n)
		}
	}
}
