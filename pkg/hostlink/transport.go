package hostlink

import (
	"io"

	"go.bug.st/serial"
)

// Transport is the byte channel to the board. serial.Port satisfies it.
type Transport interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Opener opens a transport to the named port.
type Opener func(port string, baud int) (Transport, error)

// Ensure serial.Port implements Transport.
var _ Transport = serial.Port(nil)

// Ensure Mock implements Transport.
var _ Transport = (*Mock)(nil)
