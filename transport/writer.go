package transport

import "time"

// writerDequeueTimeout is the outbound-queue timed dequeue. Do not change:
// this value trades idle CPU for small-message latency, and shortening it
// to a full blocking dequeue measurably slows firmware upload throughput
// by stalling follow-on messages behind the first one in a batch.
const writerDequeueTimeout = 1 * time.Millisecond

const writerBatchCap = 64 * 1024
const writerWriteTimeout = 2 * time.Second

// runWriter dequeues from the outbound queue, opportunistically coalesces
// further ready messages into the same buffer, and issues a single serial
// write per batch. It runs until alive is cleared or accepting goes false.
func (m *Manager) runWriter() {
	defer m.wg.Done()

	buf := make([]byte, 0, writerBatchCap)
	var pending []byte
	for m.alive.Load() && m.accepting.Load() {
		msg := pending
		pending = nil
		if msg == nil {
			var ok bool
			msg, ok = m.outbound.PopTimeout(writerDequeueTimeout)
			if !ok {
				continue
			}
		}

		buf = buf[:0]
		buf = append(buf, msg...)

		for len(buf) < writerBatchCap {
			more, ok := m.outbound.PopNowait()
			if !ok {
				break
			}
			if len(buf)+len(more) > writerBatchCap {
				// Would overflow the batch: write what we have now and
				// start the next batch with more, keeping enqueue order.
				pending = more
				break
			}
			buf = append(buf, more...)
		}

		n, err := m.port.WriteTimeout(buf, writerWriteTimeout)
		if err != nil || n < len(buf) {
			m.stats.WriteTimeouts.Add(1)
			continue
		}
		m.stats.BytesWritten.Add(uint64(n))
	}
}
