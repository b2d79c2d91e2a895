package serialport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPTYLoopbackRoundTrip(t *testing.T) {
	master, slave, err := OpenPTY(nil, nil)
	if err != nil {
		t.Skipf("pty unavailable in this sandbox: %v", err)
	}
	defer master.Close()
	defer slave.Close()

	payload := []byte{0x01, 0x02, 0x03}
	n, err := master.WriteTimeout(payload, time.Second)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	buf := make([]byte, 64)
	var got []byte
	deadline := time.Now().Add(time.Second)
	for len(got) < len(payload) && time.Now().Before(deadline) {
		n, err := slave.ReadNonBlocking(buf, 20*time.Millisecond)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.Equal(t, payload, got)
}

func TestBaudRatesTableCoversSpecSet(t *testing.T) {
	for _, baud := range []int{9600, 19200, 38400, 57600, 115200} {
		_, ok := BaudRates[baud]
		require.True(t, ok, "missing baud %d", baud)
	}
}
