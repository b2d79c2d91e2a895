package serialport

import (
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// Winsize mirrors the kernel's struct winsize for TIOCSWINSZ/TIOCGWINSZ.
type Winsize struct {
	Row, Col, Xpixel, Ypixel uint16
}

// openRaw opens path without baud/DTR configuration — used for pseudo-
// terminals, which have no modem control lines to assert.
func openRaw(path string) (*Port, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, newErr("open", CodeOpenFailed, err)
	}
	return &Port{f: fd}, nil
}

// SetLockPT locks or unlocks the peer end of a pseudoterminal master.
func (p *Port) SetLockPT(locked bool) error {
	var v int32
	if locked {
		v = 1
	}
	if err := ioctl.Ioctl(uintptr(p.f), tiocsptlck, uintptr(unsafe.Pointer(&v))); err != nil {
		return newErr("setlockpt", CodeIOCtl, err)
	}
	return nil
}

// GetPTPeer opens the slave end of a pseudoterminal master, equivalent to
// opening /dev/pts/N directly but without needing to resolve N. flags are
// the open(2) flags the slave is opened with.
func (p *Port) GetPTPeer(flags int) (*Port, error) {
	fd, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(p.f), tiocgptpeer, uintptr(flags))
	if errno != 0 {
		return nil, newErr("getptpeer", CodeIOCtl, errno)
	}
	return &Port{f: int(fd)}, nil
}

// SetWinSize sets the pseudoterminal's reported window size.
func (p *Port) SetWinSize(w *Winsize) error {
	if err := ioctl.Ioctl(uintptr(p.f), tiocswinsz, uintptr(unsafe.Pointer(w))); err != nil {
		return newErr("setwinsize", CodeIOCtl, err)
	}
	return nil
}

// OpenPTY finds an available pseudoterminal and returns a master and slave
// port. Used by transport's tests as the "loopback stub port" spec.md §8
// asks for: writes to master arrive as reads on slave and vice versa,
// without needing real hardware. With a nil termp the slave is switched to
// raw mode, so bytes pass through unchanged in both directions.
func OpenPTY(termp *Termios, winp *Winsize) (master, slave *Port, err error) {
	master, err = openRaw("/dev/ptmx")
	if err != nil {
		return nil, nil, err
	}
	if err := master.SetLockPT(false); err != nil {
		master.Close()
		return nil, nil, err
	}
	slave, err = master.GetPTPeer(syscall.O_RDWR | syscall.O_NOCTTY)
	if err != nil {
		master.Close()
		return nil, nil, err
	}
	if termp == nil {
		raw := &Termios{}
		if err := ioctl.Ioctl(uintptr(slave.f), tcgets, uintptr(unsafe.Pointer(raw))); err != nil {
			master.Close()
			slave.Close()
			return nil, nil, newErr("openpty:getattr", CodeIOCtl, err)
		}
		raw.MakeRaw()
		termp = raw
	}
	if termp != nil {
		if err := slave.SetAttr(TCSANOW, termp); err != nil {
			master.Close()
			slave.Close()
			return nil, nil, err
		}
	}
	if winp != nil {
		if err := slave.SetWinSize(winp); err != nil {
			master.Close()
			slave.Close()
			return nil, nil, err
		}
	}
	return master, slave, nil
}
