package sink

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itohio/stepresp/pkg/analysis"
	"github.com/itohio/stepresp/pkg/config"
	"github.com/itohio/stepresp/pkg/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDataset(n int) *sample.Dataset {
	ds := sample.NewDataset(n)
	for i := 0; i < n; i++ {
		ds.Append(float64(i*10), 0.5+float64(i)*0.25)
	}
	return ds
}

func TestCSV_Show(t *testing.T) {
	var buf bytes.Buffer
	c := NewCSV(&buf)

	require.NoError(t, c.Show(testDataset(3), "Time (ms)", "Voltage (V)"))
	require.NoError(t, c.Close())

	want := "Time (ms),Voltage (V)\n0,0.5\n10,0.75\n20,1\n"
	assert.Equal(t, want, buf.String())
}

func TestCSV_QuotesLabels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSV(&buf).Show(sample.NewDataset(0), "t, ms", `v "raw"`))
	assert.Equal(t, "\"t, ms\",\"v \"\"raw\"\"\"\n", buf.String())
}

func TestOpenCSV_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	c, err := OpenCSV(path)
	require.NoError(t, err)
	require.NoError(t, c.Show(testDataset(2), "x", "y"))
	require.NoError(t, c.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x,y\n0,0.5\n10,0.75\n", string(data))
}

func TestOpenCSV_BadPath(t *testing.T) {
	_, err := OpenCSV(filepath.Join(t.TempDir(), "missing", "out.csv"))
	assert.Error(t, err)
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	err          error
	messages     []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, published{topic, retained, payload.([]byte)})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func TestMQTT_Show(t *testing.T) {
	client := &fakeClient{}
	m := newMQTT(client, config.MQTTConfig{Topic: "lab/step", MaxPoints: 4}, "RC")

	m.Annotate(analysis.StepResponse{Points: 10, TimeConstant: 33})
	require.NoError(t, m.Show(testDataset(10), "t", "v"))
	require.NoError(t, m.Show(testDataset(2), "t", "v"))
	require.NoError(t, m.Close())

	require.Len(t, client.messages, 2)
	assert.Equal(t, "lab/step", client.messages[0].topic)
	assert.True(t, client.messages[0].retained)
	assert.True(t, client.disconnected)

	var msg Message
	require.NoError(t, json.Unmarshal(client.messages[0].payload, &msg))
	assert.Equal(t, "RC", msg.Title)
	assert.Equal(t, "t", msg.XLabel)
	assert.Len(t, msg.Xs, 4)
	assert.Len(t, msg.Ys, 4)
	assert.Equal(t, []float64{0, 20, 50, 70}, msg.Xs)
	require.NotNil(t, msg.Metrics)
	assert.Equal(t, 33.0, msg.Metrics.TimeConstant)

	// Metrics apply to one dataset only.
	msg = Message{}
	require.NoError(t, json.Unmarshal(client.messages[1].payload, &msg))
	assert.Nil(t, msg.Metrics)
	assert.Len(t, msg.Xs, 2)
}

func TestMQTT_Defaults(t *testing.T) {
	m := newMQTT(&fakeClient{}, config.MQTTConfig{}, "")
	assert.Equal(t, DefaultTopic, m.topic)
	assert.Equal(t, DefaultMaxPoints, m.maxPoints)
}

func TestMQTT_PublishError(t *testing.T) {
	client := &fakeClient{err: errors.New("broker gone")}
	m := newMQTT(client, config.MQTTConfig{}, "")

	err := m.Show(testDataset(2), "t", "v")
	assert.ErrorIs(t, err, client.err)
}

type failingSink struct {
	err    error
	shown  int
	closed bool
}

func (s *failingSink) Show(*sample.Dataset, string, string) error {
	s.shown++
	return s.err
}

func (s *failingSink) Close() error {
	s.closed = true
	return s.err
}

func TestMulti(t *testing.T) {
	errA := errors.New("a failed")
	a := &failingSink{err: errA}
	b := &failingSink{}
	client := &fakeClient{}
	mq := newMQTT(client, config.MQTTConfig{}, "")

	m := Multi{a, b, mq}
	m.Annotate(analysis.StepResponse{Points: 2})

	err := m.Show(testDataset(2), "t", "v")
	assert.ErrorIs(t, err, errA)
	assert.Equal(t, 1, a.shown)
	assert.Equal(t, 1, b.shown, "later sinks run after a failure")
	require.Len(t, client.messages, 1)
	assert.Contains(t, string(client.messages[0].payload), `"metrics"`)

	assert.ErrorIs(t, m.Close(), errA)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
