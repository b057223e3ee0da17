// Package sched drives a producer callback at a fixed period.
package sched

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrInvalidPeriod is returned when the period is not positive.
	ErrInvalidPeriod = errors.New("sampling period must be positive")

	// ErrRunning is returned by Start when the scheduler is already running.
	ErrRunning = errors.New("scheduler already running")
)

// Scheduler invokes a callback every period milliseconds.
//
// The callback must be short, must not block and must not allocate. Stop must
// not return until any in-flight callback has completed, so a caller may
// safely touch state shared with the callback once Stop returns.
type Scheduler interface {
	Configure(periodMs int) error
	Start(cb func()) error
	Stop()
}

var (
	_ Scheduler = (*Ticker)(nil)
	_ Scheduler = (*Manual)(nil)
)

// Ticker is a Scheduler backed by a goroutine and a time.Ticker.
type Ticker struct {
	// Unit is the wall-clock length of one period millisecond. Zero means
	// time.Millisecond; simulations shorten it to run faster than real time.
	Unit time.Duration

	mu      sync.Mutex
	period  time.Duration
	quit    chan struct{}
	done    chan struct{}
	running bool
}

// NewTicker creates a ticker scheduler with the given time unit.
func NewTicker(unit time.Duration) *Ticker {
	return &Ticker{Unit: unit}
}

// Configure sets the tick interval. It takes effect on the next Start.
func (t *Ticker) Configure(periodMs int) error {
	if periodMs <= 0 {
		return ErrInvalidPeriod
	}
	unit := t.Unit
	if unit <= 0 {
		unit = time.Millisecond
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.period = time.Duration(periodMs) * unit
	return nil
}

// Start begins invoking cb every period.
func (t *Ticker) Start(cb func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrRunning
	}
	if t.period <= 0 {
		return ErrInvalidPeriod
	}

	t.quit = make(chan struct{})
	t.done = make(chan struct{})
	t.running = true

	go t.loop(t.period, cb, t.quit, t.done)

	return nil
}

// Stop disables further ticks and waits for the tick goroutine to exit.
// Calling Stop on a stopped ticker is a no-op.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	close(t.quit)
	done := t.done
	t.running = false
	t.mu.Unlock()

	<-done
}

// Running reports whether the ticker is started.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Ticker) loop(period time.Duration, cb func(), quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			// A tick and a quit may be ready together; quit wins.
			select {
			case <-quit:
				return
			default:
			}
			cb()
		}
	}
}

// Manual is a Scheduler whose ticks are driven explicitly through Tick. It is
// used where sampling has to be deterministic.
type Manual struct {
	mu      sync.Mutex
	period  int
	cb      func()
	running bool
	ticks   int
}

// Configure records the period.
func (m *Manual) Configure(periodMs int) error {
	if periodMs <= 0 {
		return ErrInvalidPeriod
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.period = periodMs
	return nil
}

// Start arms the scheduler with cb.
func (m *Manual) Start(cb func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrRunning
	}
	if m.period <= 0 {
		return ErrInvalidPeriod
	}
	m.cb = cb
	m.running = true
	return nil
}

// Stop disarms the scheduler. Because Tick holds the lock while invoking the
// callback, Stop returns only after an in-flight tick finished.
func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.cb = nil
}

// Tick invokes the callback once if the scheduler is running and reports
// whether it did.
func (m *Manual) Tick() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	m.ticks++
	m.cb()
	return true
}

// Period returns the configured period in milliseconds.
func (m *Manual) Period() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.period
}

// Running reports whether the scheduler is started.
func (m *Manual) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Ticks returns the number of callbacks delivered so far.
func (m *Manual) Ticks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks
}
