package hostlink

import (
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the baud rate of the board's USB serial console.
	DefaultBaudRate = 115200
	// DefaultOpenRetries is how many times opening a port is retried.
	DefaultOpenRetries = 3
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// SerialOpener returns an Opener for real serial ports. The port is retried
// with exponential backoff because a board that was just soft-restarted or
// plugged in may not have enumerated yet.
func SerialOpener(retries int) Opener {
	if retries <= 0 {
		retries = DefaultOpenRetries
	}

	return func(name string, baud int) (Transport, error) {
		if baud <= 0 {
			baud = DefaultBaudRate
		}
		mode := &serial.Mode{
			BaudRate: baud,
		}

		var port serial.Port
		op := func() error {
			p, err := serial.Open(name, mode)
			if err != nil {
				return err
			}
			port = p
			return nil
		}
		notify := func(err error, next time.Duration) {
			log.Printf("Failed to open serial port %s, retrying in %v: %v", name, next, err)
		}

		b := backoff.WithMaxRetries(&backoff.ExponentialBackOff{
			InitialInterval:     50 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      5 * time.Second,
			Clock:               backoff.SystemClock,
		}, uint64(retries-1))

		if err := backoff.RetryNotify(op, b, notify); err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
		}

		return port, nil
	}
}
