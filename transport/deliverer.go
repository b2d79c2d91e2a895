package transport

import "time"

// deliverBatchMax is the number of frames the deliverer pops and enqueues
// per pass before re-checking alive. Each Pop takes the ring mutex on its
// own; the batch only keeps the loop from waiting between frames.
const deliverBatchMax = 256

const delivererWait = 10 * time.Millisecond

// runDeliverer pops frames from the ring and enqueues them into the inbound
// queue, batching up to deliverBatchMax frames per pass. It runs until
// alive is cleared, then drains whatever remains in the ring.
func (m *Manager) runDeliverer() {
	defer m.wg.Done()

	buf := make([]byte, frameBufSize)
	for m.alive.Load() {
		if m.ring.Occupancy() == 0 {
			m.ring.Wait(delivererWait)
			continue
		}
		for i := 0; i < deliverBatchMax; i++ {
			n, ok := m.ring.Pop(buf)
			if !ok {
				break
			}
			if !m.accepting.Load() {
				continue
			}
			frame := make([]byte, n)
			copy(frame, buf[:n])
			m.inbound.Push(frame)
			m.stats.FramesDelivered.Add(1)
		}
	}

	for {
		_, ok := m.ring.Pop(buf)
		if !ok {
			break
		}
	}
}
