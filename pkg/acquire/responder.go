package acquire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/itohio/stepresp/pkg/sample"
)

// Control bytes understood by the Responder.
const (
	CtrlAbort   = 0x03 // stop a running acquisition
	CtrlCommand = 0x02 // enter command mode
	CtrlRestart = 0x04 // soft restart, emits BootBanner
)

// BootBanner is written after a soft restart. Hosts skip exactly this many
// lines before trusting the stream, so its length is part of the protocol.
var BootBanner = [...]string{
	"MPY: sync filesystems",
	"MPY: soft reboot",
	"stepresp firmware",
	`Type "help()" for more information.`,
	">>> ",
	"waiting for trigger",
}

// Responder interprets the host byte stream for a Controller: abort,
// command mode, soft restart and "<periodMs>\n" trigger lines.
//
// Handle must be called from a single goroutine. Acquisitions run on their
// own goroutine; everything written to the output while one is running comes
// from that goroutine only.
type Responder struct {
	ctrl *Controller
	out  io.Writer

	mu      sync.Mutex
	parent  context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	command bool

	line     [16]byte
	pos      int
	overlong bool
}

// NewResponder creates a responder that writes banners and error reports to
// out, which should be the controller's output.
func NewResponder(ctrl *Controller, out io.Writer) *Responder {
	return &Responder{
		ctrl:   ctrl,
		out:    out,
		parent: context.Background(),
	}
}

// Serve reads bytes from in and handles them until in fails or ctx is done.
// A running acquisition is aborted before Serve returns. io.EOF is not
// reported as an error.
func (r *Responder) Serve(ctx context.Context, in io.Reader) error {
	r.mu.Lock()
	r.parent = ctx
	r.mu.Unlock()
	defer r.Abort()

	br := bufio.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		r.Handle(b)
	}
}

// Handle processes one byte from the host.
func (r *Responder) Handle(b byte) {
	switch b {
	case CtrlAbort:
		r.Abort()
		r.resetLine()
	case CtrlCommand:
		r.mu.Lock()
		r.command = true
		r.mu.Unlock()
		r.resetLine()
	case CtrlRestart:
		r.Abort()
		r.resetLine()
		r.writeBanner()
	case '\r', '\n':
		if r.pos > 0 && !r.overlong {
			r.trigger(string(r.line[:r.pos]))
		}
		r.resetLine()
	default:
		if r.pos < len(r.line) {
			r.line[r.pos] = b
			r.pos++
		} else {
			r.overlong = true
		}
	}
}

// Busy reports whether an acquisition is running.
func (r *Responder) Busy() bool {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// CommandMode reports whether the host put the device in command mode.
func (r *Responder) CommandMode() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.command
}

// Wait blocks until the running acquisition, if any, has finished.
func (r *Responder) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Abort cancels the running acquisition, if any, and waits for it to stop.
func (r *Responder) Abort() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Responder) resetLine() {
	r.pos = 0
	r.overlong = false
}

func (r *Responder) writeBanner() {
	for _, l := range BootBanner {
		if _, err := io.WriteString(r.out, l+sample.LineTerminator); err != nil {
			return
		}
	}
}

func (r *Responder) trigger(param string) {
	if r.Busy() {
		return
	}

	periodMs, err := strconv.Atoi(strings.TrimSpace(param))
	if err != nil {
		r.report(fmt.Errorf("invalid period %q", strings.TrimSpace(param)))
		return
	}

	r.mu.Lock()
	ctx, cancel := context.WithCancel(r.parent)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		if err := r.ctrl.Run(ctx, periodMs); err != nil && !errors.Is(err, context.Canceled) {
			r.report(err)
		}
	}()
}

// report writes a failure line and the sentinel so the host never waits for
// data that will not come.
func (r *Responder) report(err error) {
	_, _ = io.WriteString(r.out, sample.ErrorPrefix+err.Error()+sample.LineTerminator+sample.Sentinel+sample.LineTerminator)
}
