package sink

import (
	"encoding/json"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itohio/stepresp/pkg/analysis"
	"github.com/itohio/stepresp/pkg/config"
	"github.com/itohio/stepresp/pkg/sample"
)

const (
	// DefaultTopic is used when the configuration names none.
	DefaultTopic = "stepresp/dataset"
	// DefaultMaxPoints bounds the published dataset size.
	DefaultMaxPoints = 500

	disconnectQuiesceMs = 250
)

// Message is the JSON document published for each dataset.
type Message struct {
	Title   string                 `json:"title,omitempty"`
	XLabel  string                 `json:"xlabel"`
	YLabel  string                 `json:"ylabel"`
	Xs      []float64              `json:"xs"`
	Ys      []float64              `json:"ys"`
	Metrics *analysis.StepResponse `json:"metrics,omitempty"`
}

// publisher is the part of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes datasets as retained JSON messages.
type MQTT struct {
	client    publisher
	topic     string
	title     string
	maxPoints int

	mu      sync.Mutex
	metrics *analysis.StepResponse
}

// NewMQTT connects to the broker named in cfg.
func NewMQTT(cfg config.MQTTConfig, title string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	return newMQTT(client, cfg, title), nil
}

func newMQTT(client publisher, cfg config.MQTTConfig, title string) *MQTT {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	maxPoints := cfg.MaxPoints
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &MQTT{
		client:    client,
		topic:     topic,
		title:     title,
		maxPoints: maxPoints,
	}
}

// Annotate attaches metrics to the next published dataset.
func (m *MQTT) Annotate(r analysis.StepResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = &r
}

// Show implements Sink.
func (m *MQTT) Show(ds *sample.Dataset, xlabel, ylabel string) error {
	m.mu.Lock()
	metrics := m.metrics
	m.metrics = nil
	m.mu.Unlock()

	b, err := m.payload(ds, xlabel, ylabel, metrics)
	if err != nil {
		return err
	}

	token := m.client.Publish(m.topic, 0, true, b)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt publish: %w", token.Error())
	}
	return nil
}

// Close implements Sink.
func (m *MQTT) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}

func (m *MQTT) payload(ds *sample.Dataset, xlabel, ylabel string, metrics *analysis.StepResponse) ([]byte, error) {
	small := ds.Downsample(m.maxPoints)
	b, err := json.Marshal(Message{
		Title:   m.title,
		XLabel:  xlabel,
		YLabel:  ylabel,
		Xs:      small.Xs,
		Ys:      small.Ys,
		Metrics: metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt payload: %w", err)
	}
	return b, nil
}
