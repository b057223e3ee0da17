package board

import (
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// outPin is the part of gpio.PinOut the stimulus uses.
type outPin interface {
	String() string
	Out(l gpio.Level) error
}

// Stimulus drives the step input through a GPIO line.
type Stimulus struct {
	pin  outPin
	errs atomic.Uint32
}

// OpenStimulus looks up the named GPIO line and drives it low.
func OpenStimulus(name string) (*Stimulus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %s not found", name)
	}
	return newStimulus(p)
}

func newStimulus(p outPin) (*Stimulus, error) {
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio %s: %w", p, err)
	}
	return &Stimulus{pin: p}, nil
}

// High raises the stimulus.
func (s *Stimulus) High() {
	s.set(gpio.High)
}

// Low drops the stimulus.
func (s *Stimulus) Low() {
	s.set(gpio.Low)
}

// Errors returns the number of failed writes.
func (s *Stimulus) Errors() uint32 {
	return s.errs.Load()
}

func (s *Stimulus) set(l gpio.Level) {
	if err := s.pin.Out(l); err != nil {
		s.errs.Add(1)
	}
}
