package transport

import "sync/atomic"

// Stats tracks cumulative transport counters. All fields are safe for
// concurrent reads while workers run; the spec gives no per-frame timing
// source, so unlike a general device driver's metrics this carries counts
// only, no latency histograms.
type Stats struct {
	FramesRead      atomic.Uint64 // decoded frames pushed into the ring
	FramesDelivered atomic.Uint64 // frames popped from the ring and enqueued
	FramesDropped   atomic.Uint64 // ring overflow + malformed-frame drops
	BytesWritten    atomic.Uint64 // bytes handed to the serial port by the writer
	WriteTimeouts   atomic.Uint64 // writer batches not fully written (timeout, short write or error)
}

// Snapshot is a point-in-time copy of Stats, safe to read without further
// synchronization.
type Snapshot struct {
	FramesRead      uint64
	FramesDelivered uint64
	FramesDropped   uint64
	BytesWritten    uint64
	WriteTimeouts   uint64
}

func (s *Stats) snapshot() Snapshot {
	return Snapshot{
		FramesRead:      s.FramesRead.Load(),
		FramesDelivered: s.FramesDelivered.Load(),
		FramesDropped:   s.FramesDropped.Load(),
		BytesWritten:    s.BytesWritten.Load(),
		WriteTimeouts:   s.WriteTimeouts.Load(),
	}
}
