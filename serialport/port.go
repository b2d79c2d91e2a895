package serialport

import (
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/daedaluz/fdev/poll"
	ioctl "github.com/daedaluz/goioctl"
	"golang.org/x/sys/unix"
)

// BaudRates are the fixed rates spec.md names explicitly; anything else
// (including rates above 115200) is configured through Termios2's BOTHER
// custom-speed path.
var BaudRates = map[int]CFlag{
	9600:   B9600,
	19200:  B19200,
	38400:  B38400,
	57600:  B57600,
	115200: B115200,
	230400: B230400,
	460800: B460800,
	921600: B921600,
}

// dtrPulse is how long DTR is held low during the pulse Open sends after
// asserting RTS/DTR, per spec.md §4.3.
const dtrPulse = 10 * time.Millisecond

// Port is an open serial device. All methods are safe to call concurrently
// except Close, which is idempotent but races with in-flight Read/Write.
type Port struct {
	closed atomic.Bool
	f      int
}

// Open opens name at the given baud rate with 8N1 framing, no flow control,
// and both read and write timeouts disabled at the termios layer (VMIN=0,
// VTIME=0) — latency is controlled by the bounded waits in ReadNonBlocking,
// WriteTimeout and WaitRX instead.
func Open(name string, baud int) (*Port, error) {
	fd, err := syscall.Open(name, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, newErr("open", CodeOpenFailed, err)
	}
	p := &Port{f: fd}

	attrs := &Termios2{}
	if err := ioctl.Ioctl(uintptr(fd), tcgets2, uintptr(unsafe.Pointer(attrs))); err != nil {
		syscall.Close(fd)
		return nil, newErr("open:getattr2", CodeIOCtl, err)
	}
	attrs.MakeRaw()
	attrs.Cflag |= CREAD | CLOCAL
	if cflag, ok := BaudRates[baud]; ok {
		attrs.SetSpeed(cflag)
	} else {
		attrs.SetCustomSpeed(uint32(baud))
	}
	attrs.Cc[VMIN] = 0
	attrs.Cc[VTIME] = 0
	if err := ioctl.Ioctl(uintptr(fd), tcsets2, uintptr(unsafe.Pointer(attrs))); err != nil {
		syscall.Close(fd)
		return nil, newErr("open:setattr2", CodeIOCtl, err)
	}

	if err := p.pulseDTR(); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	return p, nil
}

// pulseDTR asserts RTS/DTR, drops DTR for dtrPulse, then re-asserts it,
// leaving both lines asserted.
func (p *Port) pulseDTR() error {
	lines := ModemLine(TIOCM_RTS | TIOCM_DTR)
	if err := p.EnableModemLines(lines); err != nil {
		return newErr("pulsedtr:assert", CodeIOCtl, err)
	}
	if err := p.DisableModemLines(TIOCM_DTR); err != nil {
		return newErr("pulsedtr:drop", CodeIOCtl, err)
	}
	time.Sleep(dtrPulse)
	if err := p.EnableModemLines(TIOCM_DTR); err != nil {
		return newErr("pulsedtr:reassert", CodeIOCtl, err)
	}
	return nil
}

// Fd returns the underlying file descriptor, or -1 if the port is closed.
func (p *Port) Fd() int {
	if p.closed.Load() {
		return -1
	}
	return p.f
}

// Close closes the port. Safe to call more than once; subsequent calls
// return ErrClosed. Drops RTS/DTR before the fd goes away, per spec.md
// §4.7's shutdown sequence; a line discipline with no modem lines (a PTY)
// simply fails that ioctl, which Close ignores.
func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return ErrClosed
	}
	fd := p.f
	_ = p.DisableModemLines(TIOCM_RTS | TIOCM_DTR)
	p.f = -1
	if err := syscall.Close(fd); err != nil {
		return wrapErrno("close", err)
	}
	return nil
}

// ReadNonBlocking implements spec.md §4.3's best-effort drain: it waits up
// to wait for input to become readable, returns 0 if none arrives in that
// time, and otherwise reads up to len(buf) bytes. It does not return at
// once when nothing is buffered; the wait always runs first. A read
// that sees EOF on a still-open fd (the port disappeared, e.g. USB unplug)
// surfaces ErrPortGone rather than silently returning 0, per spec.md §9's
// "port loss as an explicit event" design note.
func (p *Port) ReadNonBlocking(buf []byte, wait time.Duration) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	fd := p.f
	if err := poll.WaitInput(fd, wait); err != nil {
		return 0, nil
	}
	for {
		n, err := syscall.Read(fd, buf)
		if err == nil {
			if n == 0 && fd >= 0 {
				return 0, ErrPortGone
			}
			return n, nil
		}
		if err == syscall.EINTR {
			continue
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			return 0, nil
		}
		return 0, wrapErrno("read", err)
	}
}

// WriteTimeout writes up to len(data) bytes with a bounded wait. On timeout
// it cancels and returns 0; the caller still owns the unwritten batch.
func (p *Port) WriteTimeout(data []byte, timeout time.Duration) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	fd := p.f
	deadline := time.Now().Add(timeout)
	for {
		n, err := syscall.Write(fd, data)
		if err == nil {
			return n, nil
		}
		if err == syscall.EINTR {
			continue
		}
		if err != syscall.EAGAIN && err != syscall.EWOULDBLOCK {
			return 0, wrapErrno("write", err)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, perr := unix.Poll(fds, int(remaining/time.Millisecond))
		if perr != nil || n == 0 {
			return 0, nil
		}
	}
}

// Event is the outcome of WaitRX.
type Event int

const (
	EventTimeout Event = iota
	EventReady
	EventError
)

// WaitRX blocks up to timeout until the port reports incoming data, a
// break, or an error condition. Platforms without reliable event signaling
// may report EventTimeout spuriously; the reader worker is robust to that.
func (p *Port) WaitRX(timeout time.Duration) (Event, error) {
	if p.closed.Load() {
		return EventError, ErrClosed
	}
	if err := poll.WaitInput(p.f, timeout); err != nil {
		return EventTimeout, nil
	}
	return EventReady, nil
}

func (p *Port) SetAttr(when Action, attrs *Termios) error {
	return ioctl.Ioctl(uintptr(p.f), tcsets+uintptr(when), uintptr(unsafe.Pointer(attrs)))
}

// EnableModemLines sets the indicated modem bits, leaving others untouched.
func (p *Port) EnableModemLines(line ModemLine) error {
	return ioctl.Ioctl(uintptr(p.f), tiocmbis, uintptr(unsafe.Pointer(&line)))
}

// DisableModemLines clears the indicated modem bits.
func (p *Port) DisableModemLines(line ModemLine) error {
	return ioctl.Ioctl(uintptr(p.f), tiocmbic, uintptr(unsafe.Pointer(&line)))
}
