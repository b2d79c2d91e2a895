package queue

import (
	"sync"
	"time"
)

// Channel is the default Queue: an unbounded FIFO backed by a growable slice
// guarded by a mutex, with a capacity-1 channel standing in for a condition
// variable — the same "signal on push, bounded wait on pop" idiom ring.Ring
// uses, chosen for the same reason (sync.Cond.Wait has no timeout). Push
// never blocks or drops, matching spec.md §3's "unbounded FIFO byte-message
// queues".
type Channel struct {
	mu     sync.Mutex
	items  [][]byte
	signal chan struct{}
}

// NewChannel returns an empty Channel. capacityHint only sizes the initial
// backing slice; the queue grows past it rather than dropping or blocking.
func NewChannel(capacityHint int) *Channel {
	return &Channel{
		items:  make([][]byte, 0, capacityHint),
		signal: make(chan struct{}, 1),
	}
}

func (c *Channel) PopNowait() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.popLocked()
}

func (c *Channel) popLocked() ([]byte, bool) {
	if len(c.items) == 0 {
		return nil, false
	}
	data := c.items[0]
	c.items[0] = nil
	c.items = c.items[1:]
	return data, true
}

func (c *Channel) PopTimeout(d time.Duration) ([]byte, bool) {
	if data, ok := c.PopNowait(); ok {
		return data, true
	}
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return c.PopNowait()
		}
		select {
		case <-c.signal:
		case <-time.After(remaining):
		}
		if data, ok := c.PopNowait(); ok {
			return data, true
		}
	}
}

// Push enqueues data, growing the backing slice if needed.
func (c *Channel) Push(data []byte) {
	c.mu.Lock()
	c.items = append(c.items, data)
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

var _ Queue = (*Channel)(nil)
