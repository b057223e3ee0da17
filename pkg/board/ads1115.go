// Package board adapts Linux single board computer peripherals to the
// acquisition controller: an ADS1115 ADC on I2C as the sample source and a
// GPIO line as the stimulus.
package board

import (
	"fmt"
	"sync/atomic"

	"github.com/itohio/stepresp/pkg/acquire"
	"github.com/itohio/stepresp/pkg/config"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01

	// ADS1115Resolution is the number of codes of the non-negative half of
	// the ADS1115 range.
	ADS1115Resolution = 32768
	// ADS1115FullScale is the input voltage at ADS1115Resolution (PGA ±4.096 V).
	ADS1115FullScale = 4.096
)

var (
	_ acquire.Source = (*ADS1115)(nil)
	_ acquire.Pin    = (*Stimulus)(nil)
)

// ADS1115 reads one channel of an ADS1115 running in continuous conversion
// mode. Get only fetches the latest conversion, so it is short enough for the
// sampling tick.
type ADS1115 struct {
	dev conn.Conn
	bus i2c.BusCloser

	channel  int
	dataRate int

	ptr  [1]byte
	buf  [2]byte
	last uint16
	errs atomic.Uint32
}

// OpenADS1115 opens the configured I2C bus and starts continuous conversions.
func OpenADS1115(cfg config.BoardConfig) (*ADS1115, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}

	a, err := newADS1115(&i2c.Dev{Addr: cfg.I2CAddress, Bus: bus}, cfg.Channel, cfg.DataRate)
	if err != nil {
		bus.Close()
		return nil, err
	}
	a.bus = bus
	return a, nil
}

func newADS1115(dev conn.Conn, channel, dataRate int) (*ADS1115, error) {
	word, err := configWord(channel, dataRate, true)
	if err != nil {
		return nil, err
	}
	if err := dev.Tx([]byte{pointerConfig, byte(word >> 8), byte(word & 0xFF)}, nil); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}

	return &ADS1115{
		dev:      dev,
		channel:  channel,
		dataRate: dataRate,
		ptr:      [1]byte{pointerConv},
	}, nil
}

// Get returns the latest conversion. Negative readings are clamped to zero.
// A failed bus transfer repeats the previous reading and is counted.
func (a *ADS1115) Get() uint16 {
	if err := a.dev.Tx(a.ptr[:], a.buf[:]); err != nil {
		a.errs.Add(1)
		return a.last
	}

	raw := int16(a.buf[0])<<8 | int16(a.buf[1])
	if raw < 0 {
		raw = 0
	}
	a.last = uint16(raw)
	return a.last
}

// Errors returns the number of failed reads.
func (a *ADS1115) Errors() uint32 {
	return a.errs.Load()
}

// Close releases the I2C bus.
func (a *ADS1115) Close() error {
	if a.bus != nil {
		return a.bus.Close()
	}
	return nil
}

// configWord builds the ADS1115 config register for a single ended channel
// with PGA ±4.096 V and the comparator disabled.
func configWord(channel, dataRate int, continuous bool) (uint16, error) {
	var mux byte
	switch channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, fmt.Errorf("invalid channel %d", channel)
	}

	var dr byte
	switch dataRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		return 0, fmt.Errorf("invalid data rate %d", dataRate)
	}

	var word uint16 = 0x8000 // OS
	word |= uint16(mux) << 12
	word |= 0x1 << 9 // PGA ±4.096 V
	if !continuous {
		word |= 1 << 8
	}
	word |= uint16(dr) << 5
	word |= 0x3 // comparator disabled
	return word, nil
}
