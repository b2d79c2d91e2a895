package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sistemicorp/P1150/cobs"
	"github.com/sistemicorp/P1150/queue"
	"github.com/sistemicorp/P1150/serialport"
)

func newLoopbackManager(t *testing.T) (*Manager, *serialport.Port, *queue.Channel, *queue.Channel) {
	t.Helper()
	master, slave, err := serialport.OpenPTY(nil, nil)
	if err != nil {
		t.Skipf("pty unavailable in this sandbox: %v", err)
	}
	t.Cleanup(func() { slave.Close() })

	inbound := queue.NewChannel(64)
	outbound := queue.NewChannel(64)
	mgr := NewManager(Config{PortName: "loopback", Inbound: inbound, Outbound: outbound})
	mgr.open = func(string, int) (*serialport.Port, error) { return master, nil }
	require.NoError(t, mgr.Start())
	t.Cleanup(func() { mgr.Shutdown() })
	return mgr, slave, inbound, outbound
}

func TestRoundTripSingleFrame(t *testing.T) {
	mgr, slave, inbound, _ := newLoopbackManager(t)

	payload := []byte{0x01, 0x02, 0x03}
	encoded := cobs.AppendEncode(nil, payload)
	_, err := slave.WriteTimeout(encoded, time.Second)
	require.NoError(t, err)

	var got []byte
	require.Eventually(t, func() bool {
		data, ok := inbound.PopNowait()
		if ok {
			got = data
		}
		return ok
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, payload, got)
	require.Equal(t, uint64(1), mgr.Stats().FramesRead)
	require.Equal(t, uint64(1), mgr.Stats().FramesDelivered)
}

func TestOutboundBytesReachWire(t *testing.T) {
	_, slave, _, outbound := newLoopbackManager(t)

	outbound.Push([]byte{0xAA, 0xBB, 0xCC})

	buf := make([]byte, 64)
	var wireGot []byte
	require.Eventually(t, func() bool {
		n, _ := slave.ReadNonBlocking(buf, 20*time.Millisecond)
		wireGot = append(wireGot, buf[:n]...)
		return len(wireGot) >= 3
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC}, wireGot)
}

func TestOverflowResyncDeliversFollowingFrame(t *testing.T) {
	_, slave, inbound, _ := newLoopbackManager(t)

	junk := make([]byte, 3*frameBufSize)
	for i := range junk {
		junk[i] = byte(i%255 + 1) // never zero, never terminates early
	}
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	frame := cobs.AppendEncode(nil, payload)

	wire := append(append(junk, 0x00), frame...)

	go func() {
		off := 0
		for off < len(wire) {
			n, _ := slave.WriteTimeout(wire[off:], 2*time.Second)
			if n == 0 {
				time.Sleep(time.Millisecond)
				continue
			}
			off += n
		}
	}()

	var got []byte
	require.Eventually(t, func() bool {
		data, ok := inbound.PopNowait()
		if ok {
			got = data
		}
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, payload, got)
}

func TestShutdownJoinsWithinBudget(t *testing.T) {
	mgr, _, _, _ := newLoopbackManager(t)

	start := time.Now()
	require.NoError(t, mgr.Shutdown())
	require.Less(t, time.Since(start), shutdownJoinBudget)
	require.False(t, mgr.IsRunning())

	// Idempotent: a second call is a harmless no-op.
	require.NoError(t, mgr.Shutdown())
}

func TestStartIsNoopWhenAlreadyRunning(t *testing.T) {
	mgr, _, _, _ := newLoopbackManager(t)
	require.NoError(t, mgr.Start())
	require.True(t, mgr.IsRunning())
}
