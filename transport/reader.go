package transport

import (
	"errors"
	"time"

	"github.com/sistemicorp/P1150/cobs"
	"github.com/sistemicorp/P1150/serialport"
)

const (
	readerScratchSize = 16 * 1024
	frameBufSize      = 64 * 1024
	readerWait        = 3 * time.Millisecond
	backoffStep       = 1 * time.Millisecond
	backoffMax        = 3 * time.Millisecond
)

// runReader drains the serial port, splits the byte stream on 0x00
// delimiters, COBS-decodes each frame, and pushes the decoded payload into
// the ring. It runs until alive is cleared.
func (m *Manager) runReader() {
	defer m.wg.Done()
	log := m.log.WithComponent("reader")

	scratch := make([]byte, readerScratchSize)
	frameBuf := make([]byte, 0, frameBufSize)
	decodeScratch := make([]byte, frameBufSize)
	var backoff time.Duration

	for m.alive.Load() {
		n, err := m.port.ReadNonBlocking(scratch, readerWait)
		if err != nil {
			if errors.Is(err, serialport.ErrPortGone) {
				log.Error("port gone, reader exiting")
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if n > 0 {
			for _, b := range scratch[:n] {
				if b == 0x00 {
					if m.accepting.Load() && len(frameBuf) > 0 {
						dn, derr := cobs.Decode(decodeScratch, frameBuf)
						if derr != nil {
							m.stats.FramesDropped.Add(1)
						} else if m.ring.Push(decodeScratch[:dn]) {
							m.stats.FramesRead.Add(1)
						} else {
							m.stats.FramesDropped.Add(1)
						}
					}
					frameBuf = frameBuf[:0]
					continue
				}
				if len(frameBuf) >= cap(frameBuf) {
					// Overflow resync: discard everything accumulated so
					// far and keep scanning for the next delimiter.
					frameBuf = frameBuf[:0]
					continue
				}
				frameBuf = append(frameBuf, b)
			}
			backoff = 0
			continue
		}

		event, _ := m.port.WaitRX(readerWait)
		if event == serialport.EventReady {
			continue
		}
		if backoff > 0 {
			time.Sleep(backoff)
		}
		if backoff < backoffMax {
			backoff += backoffStep
		}
	}
}
