package hostlink

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/itohio/stepresp/pkg/acquire"
	"github.com/itohio/stepresp/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMockConfig() (*config.MockConfig, *config.DeviceConfig) {
	return &config.MockConfig{
			TimeConstant: 50 * time.Millisecond,
			FinalVoltage: 3.0,
			NoiseLevel:   0,
			TickUnit:     10 * time.Microsecond,
		}, &config.DeviceConfig{
			Capacity:    50,
			Resolution:  4096,
			VRef:        3.3,
			FillTimeout: 2 * time.Second,
		}
}

func TestMock_Acquire(t *testing.T) {
	mockCfg, devCfg := testMockConfig()
	l := New(MockOpener(mockCfg, devCfg))

	ds, err := l.Acquire(context.Background(), "mock", 115200, "10", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 50, ds.Len())
	assert.Zero(t, ds.Skipped)

	for i := 0; i < ds.Len(); i++ {
		assert.Equal(t, float64(i*10), ds.Xs[i])
		if i > 0 {
			assert.GreaterOrEqual(t, ds.Ys[i], ds.Ys[i-1], "sample %d", i)
		}
	}
	assert.Zero(t, ds.Ys[0])
	assert.InDelta(t, 3.0, ds.Ys[ds.Len()-1], 0.01)
}

func TestMock_InvalidTrigger(t *testing.T) {
	mockCfg, devCfg := testMockConfig()
	l := New(MockOpener(mockCfg, devCfg))

	ds, err := l.Acquire(context.Background(), "mock", 115200, "abc", time.Second)
	assert.Nil(t, ds)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Contains(t, err.Error(), "invalid period")
}

func TestMock_TimeoutAbortsDevice(t *testing.T) {
	mockCfg, devCfg := testMockConfig()
	mockCfg.TickUnit = time.Second // first tick after 10s
	devCfg.FillTimeout = 0

	var m *Mock
	l := New(func(port string, baud int) (Transport, error) {
		m = NewMock(mockCfg, devCfg)
		return m, nil
	})

	ds, err := l.Acquire(context.Background(), "mock", 115200, "10", 100*time.Millisecond)
	assert.Nil(t, ds)
	assert.ErrorIs(t, err, ErrAcquisitionTimeout)

	require.NotNil(t, m)
	assert.Equal(t, acquire.Failed, m.Controller().State())
	assert.False(t, m.responder.Busy())
}

func TestMock_RestartBanner(t *testing.T) {
	m := NewMock(testMockConfig())
	defer m.Close()

	_, err := m.Write([]byte{acquire.CtrlAbort, acquire.CtrlCommand, acquire.CtrlRestart})
	require.NoError(t, err)

	buf := make([]byte, 1024)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), acquire.BootBanner[0])

	require.NoError(t, m.ResetInputBuffer())
	require.NoError(t, m.ResetOutputBuffer())
}

func TestMock_Close(t *testing.T) {
	m := NewMock(nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := m.Read(make([]byte, 16))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrPortClosed)
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Close")
	}

	_, err := m.Write([]byte("10\n"))
	assert.ErrorIs(t, err, ErrPortClosed)
	_, err = io.WriteString(deviceOutput{m}, "late")
	assert.ErrorIs(t, err, ErrPortClosed)
}

func TestRCCircuit(t *testing.T) {
	c := &rcCircuit{
		tau:        100 * time.Millisecond,
		final:      2.0,
		vref:       3.3,
		resolution: 4096,
	}

	assert.Zero(t, c.Get(), "discharged while low")

	c.High()
	assert.InDelta(t, 0, c.voltage(0, 10), 1e-9)
	assert.InDelta(t, 2.0*0.632, c.voltage(10, 10), 0.01) // t = tau
	assert.Equal(t, uint16(4095), c.code(5.0))
	assert.Equal(t, uint16(0), c.code(-1.0))
	assert.Equal(t, uint16(2048), c.code(c.vref/2))
}
