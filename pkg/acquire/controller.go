// Package acquire runs a step response acquisition on the device: it raises
// the stimulus pin, samples the ADC from a periodic tick into a bounded queue
// until the queue is full, then drains the queue as CSV lines followed by the
// "End" sentinel.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/itohio/stepresp/pkg/queue"
	"github.com/itohio/stepresp/pkg/sample"
	"github.com/itohio/stepresp/pkg/sched"
)

const (
	// DefaultResolution is the number of ADC codes of a 12-bit converter.
	DefaultResolution = 4096
	// DefaultVRef is the ADC reference voltage in volts.
	DefaultVRef = 3.3
	// DefaultPollInterval is how often the fill wait checks the queue.
	DefaultPollInterval = 100 * time.Microsecond
)

var (
	// ErrAcquisitionTimeout is returned when the queue does not fill in time.
	ErrAcquisitionTimeout = errors.New("acquisition timeout")

	// ErrBusy is returned by Run while another session is in progress.
	ErrBusy = errors.New("acquisition already running")
)

// State is the acquisition state.
type State uint32

// Acquisition states.
const (
	Idle State = iota
	Armed
	Sampling
	Draining
	Complete
	Failed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Sampling:
		return "sampling"
	case Draining:
		return "draining"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pin is the digital stimulus output. machine.Pin satisfies it.
type Pin interface {
	High()
	Low()
}

// Source yields one raw ADC reading per call. machine.ADC satisfies it.
// Get is called from the sampling tick and must not block.
type Source interface {
	Get() uint16
}

// Config holds the conversion and timing parameters of a Controller.
type Config struct {
	Resolution   uint32        // ADC codes; readings are in [0, Resolution-1]
	VRef         float32       // reference voltage (V)
	FillTimeout  time.Duration // bound on the fill wait; 0 waits for ctx only
	PollInterval time.Duration // fill wait poll period
}

// Session is a snapshot of the current or last acquisition.
type Session struct {
	State        State
	PeriodMs     int
	ElapsedTicks uint32
	Overflows    uint32
}

// Controller owns the queue, the sample source, the stimulus pin and the
// scheduler for the duration of a session. Sessions are run one at a time.
type Controller struct {
	cfg      Config
	queue    *queue.Queue
	source   Source
	stimulus Pin
	sched    sched.Scheduler
	out      io.Writer

	produce func() // bound once so ticks do not allocate
	ticks   atomic.Uint32
	state   atomic.Uint32
	period  atomic.Int32
	running atomic.Bool

	line []byte
}

// New creates a controller. Zero fields of cfg take their defaults.
func New(q *queue.Queue, source Source, stimulus Pin, s sched.Scheduler, out io.Writer, cfg Config) *Controller {
	if cfg.Resolution == 0 {
		cfg.Resolution = DefaultResolution
	}
	if cfg.VRef == 0 {
		cfg.VRef = DefaultVRef
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	c := &Controller{
		cfg:      cfg,
		queue:    q,
		source:   source,
		stimulus: stimulus,
		sched:    s,
		out:      out,
		line:     make([]byte, 0, 32),
	}
	c.produce = c.tick
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Capacity returns the number of samples per session.
func (c *Controller) Capacity() int {
	return c.queue.Cap()
}

// Session returns a snapshot of the current or last session.
func (c *Controller) Session() Session {
	return Session{
		State:        c.State(),
		PeriodMs:     int(c.period.Load()),
		ElapsedTicks: c.ticks.Load(),
		Overflows:    c.queue.Overflows(),
	}
}

// Run performs one acquisition with the given sampling period and writes
// exactly Capacity data lines and one sentinel line to the output. An invalid
// period is rejected before the stimulus is touched.
func (c *Controller) Run(ctx context.Context, periodMs int) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.running.Store(false)

	if err := c.sched.Configure(periodMs); err != nil {
		return fmt.Errorf("configure period %d ms: %w", periodMs, err)
	}

	c.queue.Reset()
	c.ticks.Store(0)
	c.period.Store(int32(periodMs))
	c.setState(Idle)

	c.stimulus.High()
	c.setState(Armed)

	if err := c.sched.Start(c.produce); err != nil {
		c.stimulus.Low()
		return c.fail(fmt.Errorf("start sampling: %w", err))
	}
	c.setState(Sampling)

	waitErr := c.waitFull(ctx)

	// Stop returns only after the last tick completed, so the queue is ours.
	c.sched.Stop()
	c.stimulus.Low()

	if waitErr != nil {
		return c.fail(waitErr)
	}

	c.setState(Draining)
	if err := c.drain(ctx, periodMs); err != nil {
		return c.fail(err)
	}

	c.setState(Complete)
	return nil
}

// tick is the producer callback.
func (c *Controller) tick() {
	c.queue.Push(c.source.Get())
	c.ticks.Add(1)
}

func (c *Controller) waitFull(ctx context.Context) error {
	var deadline <-chan time.Time
	if c.cfg.FillTimeout > 0 {
		timer := time.NewTimer(c.cfg.FillTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for !c.queue.IsFull() {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %w", ErrAcquisitionTimeout, ctx.Err())
			}
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w: %d of %d samples after %v",
				ErrAcquisitionTimeout, c.queue.Len(), c.queue.Cap(), c.cfg.FillTimeout)
		default:
		}
		time.Sleep(c.cfg.PollInterval)
	}

	return nil
}

func (c *Controller) drain(ctx context.Context, periodMs int) error {
	n := c.queue.Cap()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, err := c.queue.Pop()
		if err != nil {
			return fmt.Errorf("drain sample %d of %d: %w", i, n, err)
		}

		c.line = sample.AppendLine(c.line[:0], sample.Point{
			TimestampMs: sample.TimestampMs(i, periodMs),
			Voltage:     sample.Voltage32(raw, c.cfg.Resolution, c.cfg.VRef),
		})
		if _, err := c.out.Write(c.line); err != nil {
			return fmt.Errorf("write sample %d: %w", i, err)
		}
	}

	c.line = append(append(c.line[:0], sample.Sentinel...), sample.LineTerminator...)
	if _, err := c.out.Write(c.line); err != nil {
		return fmt.Errorf("write sentinel: %w", err)
	}

	return nil
}

func (c *Controller) setState(s State) {
	c.state.Store(uint32(s))
}

func (c *Controller) fail(err error) error {
	c.setState(Failed)
	return err
}
