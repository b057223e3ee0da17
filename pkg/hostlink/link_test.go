package hostlink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/itohio/stepresp/pkg/acquire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort is a scripted board: it prints bootLines banner lines after a
// restart and the script lines after a trigger.
type fakePort struct {
	bootLines int
	script    []string
	eof       bool // close the stream after the script

	r *io.PipeReader
	w *io.PipeWriter

	mu     sync.Mutex
	events []string
}

func newFakePort(bootLines int, script ...string) *fakePort {
	r, w := io.Pipe()
	return &fakePort{bootLines: bootLines, script: script, r: r, w: w}
}

func (f *fakePort) opener() Opener {
	return func(port string, baud int) (Transport, error) {
		f.record(fmt.Sprintf("open %s %d", port, baud))
		return f, nil
	}
}

func (f *fakePort) record(e string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakePort) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakePort) emit(lines []string, eof bool) {
	go func() {
		for _, l := range lines {
			if _, err := io.WriteString(f.w, l); err != nil {
				return
			}
		}
		if eof {
			f.w.Close()
		}
	}()
}

func (f *fakePort) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.record(fmt.Sprintf("write %q", p))

	switch {
	case bytes.IndexByte(p, acquire.CtrlRestart) >= 0:
		banner := make([]string, f.bootLines)
		for i := range banner {
			banner[i] = fmt.Sprintf("banner %d\r\n", i)
		}
		f.emit(banner, false)
	case bytes.HasSuffix(p, []byte("\n")):
		lines := make([]string, 0, len(f.script))
		for _, l := range f.script {
			lines = append(lines, l+"\r\n")
		}
		f.emit(lines, f.eof)
	}

	return len(p), nil
}

func (f *fakePort) ResetInputBuffer() error {
	f.record("reset input")
	return nil
}

func (f *fakePort) ResetOutputBuffer() error {
	f.record("reset output")
	return nil
}

func (f *fakePort) Close() error {
	f.record("close")
	return f.r.CloseWithError(ErrPortClosed)
}

var releaseEvents = []string{"reset output", `write "\x03"`, "reset input", "close"}

func acquireFake(t *testing.T, f *fakePort, timeout time.Duration) (*Link, func() ([]float64, []float64, int, error)) {
	t.Helper()
	l := New(f.opener())
	l.BootLines = f.bootLines
	return l, func() ([]float64, []float64, int, error) {
		ds, err := l.Acquire(context.Background(), "/dev/test", 115200, "10", timeout)
		if err != nil {
			assert.Nil(t, ds)
			return nil, nil, 0, err
		}
		return ds.Xs, ds.Ys, ds.Skipped, nil
	}
}

func TestAcquire_RoundTrip(t *testing.T) {
	f := newFakePort(DefaultBootLines, "0,1.0", "10,1.2", "20,1.4", "End")
	_, run := acquireFake(t, f, time.Second)

	xs, ys, skipped, err := run()
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 10, 20}, xs)
	assert.Equal(t, []float64{1.0, 1.2, 1.4}, ys)
	assert.Zero(t, skipped)
}

func TestAcquire_HandshakeAndRelease(t *testing.T) {
	f := newFakePort(2, "0,1.0", "End")
	_, run := acquireFake(t, f, time.Second)

	_, _, _, err := run()
	require.NoError(t, err)

	want := []string{
		"open /dev/test 115200",
		"reset output",
		`write "\x03"`,
		"reset input",
		`write "\x02\x04"`,
		`write "10\n"`,
	}
	want = append(want, releaseEvents...)
	assert.Equal(t, want, f.Events())
}

func TestAcquire_MalformedLines(t *testing.T) {
	tests := []struct {
		name    string
		script  []string
		xs      []float64
		ys      []float64
		skipped int
	}{
		{
			name:    "unparseable field",
			script:  []string{"1,2.5", "bad,data", "2,3.5", "End"},
			xs:      []float64{1, 2},
			ys:      []float64{2.5, 3.5},
			skipped: 1,
		},
		{
			name:    "insufficient columns",
			script:  []string{"5", "3,4.0", "End"},
			xs:      []float64{3},
			ys:      []float64{4.0},
			skipped: 1,
		},
		{
			name:    "extra columns and blank lines",
			script:  []string{"", "0,1.5,extra", "  ", "10,2.5", "End"},
			xs:      []float64{0, 10},
			ys:      []float64{1.5, 2.5},
			skipped: 0,
		},
		{
			name:    "non finite",
			script:  []string{"0,NaN", "10,Inf", "20,0.5", "End"},
			xs:      []float64{20},
			ys:      []float64{0.5},
			skipped: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakePort(DefaultBootLines, tt.script...)
			_, run := acquireFake(t, f, time.Second)

			xs, ys, skipped, err := run()
			require.NoError(t, err)
			assert.Equal(t, tt.xs, xs)
			assert.Equal(t, tt.ys, ys)
			assert.Equal(t, tt.skipped, skipped)
		})
	}
}

func TestAcquire_MissingSentinel(t *testing.T) {
	f := newFakePort(DefaultBootLines, "0,1.0", "10,1.2")
	_, run := acquireFake(t, f, 50*time.Millisecond)

	start := time.Now()
	_, _, _, err := run()
	assert.ErrorIs(t, err, ErrAcquisitionTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	events := f.Events()
	require.GreaterOrEqual(t, len(events), len(releaseEvents))
	assert.Equal(t, releaseEvents, events[len(events)-len(releaseEvents):])
}

func TestAcquire_BannerTimeout(t *testing.T) {
	// The board prints fewer banner lines than the host expects.
	f := newFakePort(2, "0,1.0", "End")
	l := New(f.opener())
	l.BootLines = 3

	ds, err := l.Acquire(context.Background(), "/dev/test", 115200, "10", 50*time.Millisecond)
	assert.Nil(t, ds)
	assert.ErrorIs(t, err, ErrAcquisitionTimeout)
}

func TestAcquire_Canceled(t *testing.T) {
	f := newFakePort(DefaultBootLines, "0,1.0")
	l := New(f.opener())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	ds, err := l.Acquire(ctx, "/dev/test", 115200, "10", 0)
	assert.Nil(t, ds)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrAcquisitionTimeout)
}

func TestAcquire_EOF(t *testing.T) {
	f := newFakePort(DefaultBootLines, "0,1.0", "10,1.2")
	f.eof = true
	_, run := acquireFake(t, f, time.Second)

	_, _, _, err := run()
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "close", f.Events()[len(f.Events())-1])
}

func TestAcquire_ProtocolViolation(t *testing.T) {
	tests := []struct {
		name      string
		minPoints int
		script    []string
		wantErr   bool
		contains  string
	}{
		{"sentinel only", 1, []string{"End"}, true, "sentinel after 0 data lines"},
		{"device error", 1, []string{`Error: invalid period "x"`, "End"}, true, "invalid period"},
		{"too few points", 3, []string{"0,1", "10,2", "End"}, true, "want at least 3"},
		{"empty allowed", 0, []string{"End"}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakePort(DefaultBootLines, tt.script...)
			l := New(f.opener())
			l.MinPoints = tt.minPoints

			ds, err := l.Acquire(context.Background(), "/dev/test", 115200, "10", time.Second)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Zero(t, ds.Len())
				return
			}
			assert.Nil(t, ds)
			assert.ErrorIs(t, err, ErrProtocolViolation)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestAcquire_OpenFailure(t *testing.T) {
	openErr := errors.New("no such device")
	l := New(func(port string, baud int) (Transport, error) {
		return nil, openErr
	})

	ds, err := l.Acquire(context.Background(), "/dev/none", 115200, "10", time.Second)
	assert.Nil(t, ds)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, openErr)
}

func TestAcquire_Sequential(t *testing.T) {
	for i := 0; i < 3; i++ {
		f := newFakePort(DefaultBootLines, "0,1.0", "10,2.0", "End")
		_, run := acquireFake(t, f, time.Second)

		xs, _, _, err := run()
		require.NoError(t, err, "acquisition %d", i)
		assert.Len(t, xs, 2)
	}
}
