// Package hostlink is the host side of the acquisition protocol. It resets the
// board over a serial transport, triggers a run and parses the resulting line
// stream into an aligned XY dataset.
package hostlink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/itohio/stepresp/pkg/acquire"
	"github.com/itohio/stepresp/pkg/sample"
)

const (
	// DefaultBootLines is the number of banner lines the board prints after
	// a soft restart. It is tied to the firmware; see acquire.BootBanner.
	DefaultBootLines = 6
	// DefaultMinPoints is the fewest data lines accepted before "End".
	DefaultMinPoints = 1
)

var (
	// ErrTransport wraps open, read and write failures on the transport.
	ErrTransport = errors.New("transport error")

	// ErrProtocolViolation is returned for streams that cannot be a valid
	// acquisition, e.g. a sentinel before any data.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrAcquisitionTimeout is returned when the sentinel does not arrive
	// before the deadline.
	ErrAcquisitionTimeout = acquire.ErrAcquisitionTimeout
)

var (
	abortSeq   = []byte{acquire.CtrlAbort}
	restartSeq = []byte{acquire.CtrlCommand, acquire.CtrlRestart}
)

// Link performs acquisitions over transports obtained from an Opener.
type Link struct {
	open Opener

	BootLines int // lines discarded after restart
	MinPoints int // fewer well-formed lines before the sentinel is a protocol violation
}

// New creates a Link. A nil opener opens real serial ports.
func New(open Opener) *Link {
	if open == nil {
		open = SerialOpener(DefaultOpenRetries)
	}
	return &Link{
		open:      open,
		BootLines: DefaultBootLines,
		MinPoints: DefaultMinPoints,
	}
}

// Acquire runs one acquisition on a serial port with default settings.
func Acquire(ctx context.Context, port string, baud int, trigger string, timeout time.Duration) (*sample.Dataset, error) {
	return New(nil).Acquire(ctx, port, baud, trigger, timeout)
}

type lineResult struct {
	line string
	err  error
}

// Acquire opens port, resets the board, sends trigger and collects data lines
// until the "End" sentinel. It returns either a complete dataset or an error
// wrapping ErrTransport, ErrProtocolViolation or ErrAcquisitionTimeout; never a
// partial dataset. A timeout of zero relies on ctx alone. The transport is
// released on every path.
func (l *Link) Acquire(ctx context.Context, port string, baud int, trigger string, timeout time.Duration) (*sample.Dataset, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t, err := l.open(port, baud)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer release(t)

	if err := handshake(t); err != nil {
		return nil, err
	}

	// Closed before release closes the transport, which unblocks the reader.
	lines := make(chan lineResult)
	done := make(chan struct{})
	defer close(done)
	go readLines(t, lines, done)

	for i := 0; i < l.BootLines; i++ {
		if _, err := next(ctx, lines); err != nil {
			return nil, fmt.Errorf("skip boot line %d: %w", i+1, err)
		}
	}

	if _, err := io.WriteString(t, trigger+"\n"); err != nil {
		return nil, fmt.Errorf("%w: send trigger: %w", ErrTransport, err)
	}

	return l.collect(ctx, lines)
}

// handshake stops whatever the board is running and soft-restarts it.
func handshake(t Transport) error {
	if err := t.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("%w: reset output buffer: %w", ErrTransport, err)
	}
	if _, err := t.Write(abortSeq); err != nil {
		return fmt.Errorf("%w: send abort: %w", ErrTransport, err)
	}
	if err := t.ResetInputBuffer(); err != nil {
		return fmt.Errorf("%w: reset input buffer: %w", ErrTransport, err)
	}
	if _, err := t.Write(restartSeq); err != nil {
		return fmt.Errorf("%w: send restart: %w", ErrTransport, err)
	}
	return nil
}

// release aborts the remote program, drops buffered bytes and closes the
// transport. Failures are logged; they never replace the session result.
func release(t Transport) {
	if err := t.ResetOutputBuffer(); err != nil {
		log.Printf("Error resetting output buffer: %v", err)
	}
	if _, err := t.Write(abortSeq); err != nil {
		log.Printf("Error sending abort: %v", err)
	}
	if err := t.ResetInputBuffer(); err != nil {
		log.Printf("Error resetting input buffer: %v", err)
	}
	if err := t.Close(); err != nil {
		log.Printf("Error closing transport: %v", err)
	}
}

// readLines reads newline terminated lines from r until it fails or done is
// closed. A final partial line is delivered together with the read error.
func readLines(r io.Reader, out chan<- lineResult, done <-chan struct{}) {
	br := bufio.NewReader(r)
	for {
		s, err := br.ReadString('\n')
		select {
		case out <- lineResult{line: s, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// next returns the next trimmed line. A non-empty line may accompany an error.
func next(ctx context.Context, lines <-chan lineResult) (string, error) {
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", ErrAcquisitionTimeout, ctx.Err())
		}
		return "", ctx.Err()
	case r := <-lines:
		line := sample.TrimLine(r.line)
		if r.err != nil {
			return line, fmt.Errorf("%w: read: %w", ErrTransport, r.err)
		}
		return line, nil
	}
}

func (l *Link) collect(ctx context.Context, lines <-chan lineResult) (*sample.Dataset, error) {
	ds := sample.NewDataset(256)
	var deviceErr string

	for {
		line, err := next(ctx, lines)

		if strings.TrimSpace(line) != "" {
			if sample.IsSentinel(line) {
				return l.finish(ds, deviceErr)
			}

			x, y, perr := sample.ParseLine(line)
			if perr != nil {
				ds.Skipped++
				if strings.HasPrefix(line, sample.ErrorPrefix) {
					deviceErr = strings.TrimPrefix(line, sample.ErrorPrefix)
				}
				log.Printf("Failed to parse line '%s': %v", line, perr)
			} else {
				ds.Append(x, y)
			}
		}

		if err != nil {
			return nil, err
		}
	}
}

func (l *Link) finish(ds *sample.Dataset, deviceErr string) (*sample.Dataset, error) {
	if ds.Len() >= l.MinPoints {
		return ds, nil
	}
	if deviceErr != "" {
		return nil, fmt.Errorf("%w: device reported %q", ErrProtocolViolation, deviceErr)
	}
	return nil, fmt.Errorf("%w: sentinel after %d data lines, want at least %d",
		ErrProtocolViolation, ds.Len(), l.MinPoints)
}
