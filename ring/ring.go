// Package ring implements the single-producer/single-consumer byte ring that
// sits between the serial reader and the deliverer: a fixed arena carrying
// length-prefixed frames, guarded by one mutex, with a non-blocking signal a
// waiting consumer can pick up with a bounded wait.
package ring

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSize is the arena size spec.md names: 1 MiB.
const DefaultSize = 1 << 20

// maxFrame bounds a single stored payload; it matches cobs.MaxFrameLen
// without importing cobs, since the ring is frame-format agnostic.
const maxFrame = 65535

// Ring is a fixed-capacity byte arena storing [u16 length LE][payload]
// records. head is the next write offset, tail the next read offset, both
// monotonically increasing counts of bytes ever written/read; occupancy is
// head-tail and never exceeds len(buf). Exactly one goroutine may call Push,
// and exactly one (a different or the same) may call Pop, concurrently.
type Ring struct {
	mu      sync.Mutex
	buf     []byte
	size    uint64
	head    uint64
	tail    uint64
	dropped atomic.Uint64
	signal  chan struct{}
	scratch []byte
}

// New allocates a ring with the given arena size in bytes.
func New(size int) *Ring {
	return &Ring{
		buf:     make([]byte, size),
		size:    uint64(size),
		signal:  make(chan struct{}, 1),
		scratch: make([]byte, 2+maxFrame),
	}
}

// Push stores data as a length-prefixed frame. It returns false and
// increments Dropped without touching the arena if the frame plus its
// 2-byte header would not fit in the free space — the incoming frame is
// discarded, never the oldest stored one. On success exactly one signal is
// delivered to a waiter, if any is listening.
func (r *Ring) Push(data []byte) bool {
	if len(data) > maxFrame {
		r.dropped.Add(1)
		return false
	}
	r.mu.Lock()
	need := uint64(2 + len(data))
	free := r.size - (r.head - r.tail)
	if need > free {
		r.mu.Unlock()
		r.dropped.Add(1)
		return false
	}
	rec := r.scratch[:need]
	binary.LittleEndian.PutUint16(rec[0:2], uint16(len(data)))
	copy(rec[2:], data)
	r.writeAt(r.head, rec)
	r.head += need
	r.mu.Unlock()
	r.trySignal()
	return true
}

// Pop removes the oldest frame into out, returning its length. It returns
// (0, false) if the ring is empty. If out is too small to hold the stored
// frame, Pop returns (0, false) without advancing tail — callers size out
// generously (the deliverer uses a 64 KiB scratch buffer, above maxFrame)
// to avoid this becoming a stall.
func (r *Ring) Pop(out []byte) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.head == r.tail {
		return 0, false
	}
	var hdr [2]byte
	r.readAt(r.tail, hdr[:])
	length := binary.LittleEndian.Uint16(hdr[:])
	if int(length) > len(out) {
		return 0, false
	}
	r.readAt(r.tail+2, out[:length])
	r.tail += 2 + uint64(length)
	return int(length), true
}

// Occupancy returns the number of bytes currently stored, including frame
// headers.
func (r *Ring) Occupancy() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head - r.tail
}

// Dropped returns the number of frames discarded for lack of space.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// Signal wakes a waiter without requiring a push — the manager uses this as
// the single synthetic shutdown signal so a blocked Wait call returns
// promptly instead of riding out its full timeout.
func (r *Ring) Signal() {
	r.trySignal()
}

func (r *Ring) trySignal() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Wait blocks until Signal/Push fires or timeout elapses, returning whether
// it was woken by a signal. A spurious wake (signal fired just before the
// ring went empty again) is harmless: the caller re-checks occupancy itself.
func (r *Ring) Wait(timeout time.Duration) bool {
	select {
	case <-r.signal:
		return true
	case <-time.After(timeout):
		return false
	}
}

// writeAt copies data into buf starting at pos mod size, wrapping at the
// arena boundary in at most two copies.
func (r *Ring) writeAt(pos uint64, data []byte) {
	start := pos % r.size
	n := copy(r.buf[start:], data)
	if n < len(data) {
		copy(r.buf, data[n:])
	}
}

// readAt mirrors writeAt for reads.
func (r *Ring) readAt(pos uint64, out []byte) {
	start := pos % r.size
	n := copy(out, r.buf[start:])
	if n < len(out) {
		copy(out[n:], r.buf)
	}
}
