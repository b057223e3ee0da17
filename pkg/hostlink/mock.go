package hostlink

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/stepresp/pkg/acquire"
	"github.com/itohio/stepresp/pkg/config"
	"github.com/itohio/stepresp/pkg/queue"
	"github.com/itohio/stepresp/pkg/sched"
)

// ErrPortClosed is returned by Mock reads and writes after Close.
var ErrPortClosed = errors.New("port closed")

// Mock simulates a board with an RC circuit on its ADC input. It runs the
// real device Controller and Responder against an in-memory byte stream, so
// the whole protocol is exercised without hardware.
type Mock struct {
	cfg *config.MockConfig

	ctrl      *acquire.Controller
	responder *acquire.Responder
	rc        *rcCircuit

	mu     sync.Mutex
	cond   *sync.Cond
	rx     bytes.Buffer // device to host
	closed bool
}

// NewMock creates a simulated board. Nil configs take their defaults.
func NewMock(cfg *config.MockConfig, dev *config.DeviceConfig) *Mock {
	def := config.Default()
	if cfg == nil {
		cfg = &def.Mock
	}
	if dev == nil {
		dev = &def.Device
	}

	capacity := dev.Capacity
	if capacity <= 0 {
		capacity = def.Device.Capacity
	}
	q, _ := queue.New(capacity)

	m := &Mock{cfg: cfg}
	m.cond = sync.NewCond(&m.mu)

	resolution := dev.Resolution
	if resolution == 0 {
		resolution = acquire.DefaultResolution
	}
	vref := dev.VRef
	if vref == 0 {
		vref = acquire.DefaultVRef
	}
	m.rc = &rcCircuit{
		tau:        cfg.TimeConstant,
		final:      cfg.FinalVoltage,
		noise:      cfg.NoiseLevel,
		vref:       vref,
		resolution: resolution,
	}

	out := deviceOutput{m}
	m.ctrl = acquire.New(q, m.rc, m.rc, sched.NewTicker(cfg.TickUnit), out, acquire.Config{
		Resolution:   resolution,
		VRef:         float32(vref),
		FillTimeout:  dev.FillTimeout,
		PollInterval: dev.PollInterval,
	})
	m.rc.session = m.ctrl.Session
	m.responder = acquire.NewResponder(m.ctrl, out)

	return m
}

// MockOpener returns an Opener that creates a fresh simulated board per open.
func MockOpener(cfg *config.MockConfig, dev *config.DeviceConfig) Opener {
	return func(port string, baud int) (Transport, error) {
		return NewMock(cfg, dev), nil
	}
}

// Controller returns the simulated board's acquisition controller.
func (m *Mock) Controller() *acquire.Controller {
	return m.ctrl
}

// Read returns bytes written by the board, blocking until some are available
// or the port is closed.
func (m *Mock) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.rx.Len() == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.rx.Len() == 0 {
		return 0, ErrPortClosed
	}
	return m.rx.Read(p)
}

// Write delivers host bytes to the board. Control bytes take effect before
// Write returns.
func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return 0, ErrPortClosed
	}

	for _, b := range p {
		m.responder.Handle(b)
	}
	return len(p), nil
}

// ResetInputBuffer discards bytes the host has not read yet.
func (m *Mock) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx.Reset()
	return nil
}

// ResetOutputBuffer is a no-op; writes are never buffered.
func (m *Mock) ResetOutputBuffer() error {
	return nil
}

// Close aborts any running acquisition and unblocks pending reads.
func (m *Mock) Close() error {
	m.responder.Abort()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
	return nil
}

type deviceOutput struct {
	m *Mock
}

func (o deviceOutput) Write(p []byte) (int, error) {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	if o.m.closed {
		return 0, ErrPortClosed
	}
	n, err := o.m.rx.Write(p)
	o.m.cond.Broadcast()
	return n, err
}

// rcCircuit is both the stimulus pin and the ADC of the simulated board.
// The capacitor is discharged while the pin is low and charges towards the
// final voltage with time constant tau while it is high.
type rcCircuit struct {
	tau        time.Duration
	final      float64
	noise      float64
	vref       float64
	resolution uint32

	session func() acquire.Session
	high    atomic.Bool
	n       atomic.Uint32 // samples since the pin went high
}

func (c *rcCircuit) High() {
	c.n.Store(0)
	c.high.Store(true)
}

func (c *rcCircuit) Low() {
	c.high.Store(false)
}

func (c *rcCircuit) Get() uint16 {
	if !c.high.Load() {
		return 0
	}

	n := c.n.Add(1) - 1
	periodMs := 0
	if c.session != nil {
		periodMs = c.session().PeriodMs
	}
	return c.code(c.voltage(n, periodMs))
}

// voltage returns the capacitor voltage at sample n.
func (c *rcCircuit) voltage(n uint32, periodMs int) float64 {
	v := c.final
	if c.tau > 0 {
		t := time.Duration(n) * time.Duration(periodMs) * time.Millisecond
		v *= 1 - math.Exp(-t.Seconds()/c.tau.Seconds())
	}

	noise := (math.Sin(float64(n)*1.7) + math.Cos(float64(n)*0.37)) * c.noise * 0.5
	return v + noise
}

// code converts a voltage to an ADC reading.
func (c *rcCircuit) code(v float64) uint16 {
	top := float64(c.resolution - 1)
	raw := v / c.vref * float64(c.resolution)
	if raw < 0 {
		raw = 0
	} else if raw > top {
		raw = top
	}
	return uint16(raw)
}
