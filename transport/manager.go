// Package transport implements the serial I/O engine: a manager owning a
// reader, deliverer and writer worker, a ring buffer between reader and
// deliverer, and the application-facing inbound/outbound queues.
package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sistemicorp/P1150/internal/logging"
	"github.com/sistemicorp/P1150/queue"
	"github.com/sistemicorp/P1150/ring"
	"github.com/sistemicorp/P1150/serialport"
)

// ringSize is the arena size spec.md names for the reader/deliverer ring.
const ringSize = ring.DefaultSize

// shutdownJoinBudget is the target the manager aims to join all three
// workers within after Shutdown is called.
const shutdownJoinBudget = 200 * time.Millisecond

// Config configures a Manager. Baud defaults to 115200 if zero.
type Config struct {
	PortName string
	Baud     int
	Inbound  queue.Queue // deliverer pushes decoded frames here
	Outbound queue.Queue // writer consumes frames from here
	Logger   *logging.Logger
}

// Manager owns a serial port and the three workers that move bytes between
// it and the caller's queues. Constructed idle; Start opens the port and
// spawns workers; Shutdown tears everything down and is idempotent.
type Manager struct {
	portName string
	baud     int
	inbound  queue.Queue
	outbound queue.Queue
	log      *logging.Logger

	mu   sync.Mutex // serializes Start/Shutdown transitions
	port *serialport.Port
	ring *ring.Ring
	wg   sync.WaitGroup

	// open is overridden by tests to hand the manager an already-open
	// loopback port instead of dialing a real device path.
	open func(name string, baud int) (*serialport.Port, error)

	alive     atomic.Bool // workers loop while true
	accepting atomic.Bool // workers may touch queues/ring while true

	stats Stats
}

// NewManager fills in config defaults (baud, logger) and returns an idle
// Manager; it does not check the config. Inbound and Outbound must be
// supplied by the caller — the manager holds only references to them, never
// owning their lifecycle.
func NewManager(cfg Config) *Manager {
	baud := cfg.Baud
	if baud == 0 {
		baud = 115200
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Manager{
		portName: cfg.PortName,
		baud:     baud,
		inbound:  cfg.Inbound,
		outbound: cfg.Outbound,
		log:      log,
		open:     serialport.Open,
	}
}

// Start opens the port and spawns the reader, deliverer and writer
// goroutines. A no-op if already running. On port-open failure the manager
// stays idle and the error is returned.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.alive.Load() {
		return nil
	}

	port, err := m.open(m.portName, m.baud)
	if err != nil {
		return newErr("start", CodePortOpenFailed, err)
	}

	m.port = port
	m.ring = ring.New(ringSize)
	m.accepting.Store(true)
	m.alive.Store(true)

	m.wg.Add(3)
	go m.runReader()
	go m.runDeliverer()
	go m.runWriter()

	m.log.Info("transport started", "port", m.portName, "baud", m.baud)
	return nil
}

// IsRunning reports whether the manager is actively servicing its port.
func (m *Manager) IsRunning() bool {
	return m.alive.Load() && m.accepting.Load() && m.port != nil
}

// Shutdown stops all workers and closes the port. Idempotent: calling it
// more than once, or before Start, is safe and returns nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.alive.Load() {
		return nil
	}

	// Barrier: workers stop touching queues/ring before we clear alive,
	// so a worker mid-loop observes accepting=false on its very next
	// check rather than racing the port close below.
	m.accepting.Store(false)
	m.alive.Store(false)

	if m.port != nil {
		m.port.Close()
	}
	if m.ring != nil {
		m.ring.Signal()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownJoinBudget):
		m.log.Warn("shutdown exceeded join budget", "budget_ms", shutdownJoinBudget.Milliseconds())
		<-done
	}

	m.port = nil
	m.log.Info("transport stopped")
	return nil
}

// Stats returns a point-in-time snapshot of transport counters.
func (m *Manager) Stats() Snapshot {
	return m.stats.snapshot()
}
