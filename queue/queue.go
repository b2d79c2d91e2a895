// Package queue defines the capability interface the transport manager uses
// to hand frames to, and take frames from, its caller. spec.md's original
// queues are duck-typed (anything exposing get/get_nowait/put_nowait); a
// statically typed rewrite turns that into a small interface so any FIFO —
// channel-backed, ring-backed, or a test double — can plug in without the
// manager caring which.
package queue

import "time"

// Queue is the capability a caller's inbound/outbound message FIFO must
// expose. spec.md §3 requires both queues be unbounded, so Push must never
// block or drop — the deliverer worker calls it from its hot loop and a
// blocking Push would stall the whole transport.
type Queue interface {
	// PopNowait returns the next message without waiting. ok is false if
	// the queue is currently empty.
	PopNowait() (data []byte, ok bool)

	// PopTimeout waits up to d for a message before giving up.
	PopTimeout(d time.Duration) (data []byte, ok bool)

	// Push enqueues a message without blocking.
	Push(data []byte)
}
