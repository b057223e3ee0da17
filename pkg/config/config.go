package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Device      DeviceConfig      `yaml:"device"`
	Plot        PlotConfig        `yaml:"plot"`
	Output      OutputConfig      `yaml:"output"`
	Mock        MockConfig        `yaml:"mock"`
	Board       BoardConfig       `yaml:"board"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	BootLines   int    `yaml:"boot_lines"`   // Banner lines skipped after a soft restart
	OpenRetries int    `yaml:"open_retries"` // Attempts to open the port before giving up
}

// AcquisitionConfig contains host-side acquisition parameters.
type AcquisitionConfig struct {
	Trigger   string        `yaml:"trigger"`    // Parameter sent to start a run (period in ms)
	Timeout   time.Duration `yaml:"timeout"`    // Bound on the whole session
	MinPoints int           `yaml:"min_points"` // Fewer points before "End" is a protocol violation
}

// DeviceConfig contains device-side sampling parameters.
type DeviceConfig struct {
	PeriodMs     int           `yaml:"period_ms"`
	Capacity     int           `yaml:"capacity"`   // Samples per run
	Resolution   uint32        `yaml:"resolution"` // ADC codes (4096 for 12-bit)
	VRef         float64       `yaml:"vref"`       // ADC reference voltage (V)
	FillTimeout  time.Duration `yaml:"fill_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// PlotConfig contains labels handed to the sink.
type PlotConfig struct {
	Title  string `yaml:"title"`
	XLabel string `yaml:"xlabel"`
	YLabel string `yaml:"ylabel"`
}

// OutputConfig selects the sinks that receive a finished dataset.
type OutputConfig struct {
	CSV  string     `yaml:"csv"` // File path, "-" for stdout, empty to disable
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains MQTT sink configuration. Empty Server disables it.
type MQTTConfig struct {
	Server    string `yaml:"server"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Topic     string `yaml:"topic"`
	MaxPoints int    `yaml:"max_points"`
}

// MockConfig contains simulated board configuration.
type MockConfig struct {
	TimeConstant time.Duration `yaml:"time_constant"` // RC time constant
	FinalVoltage float64       `yaml:"final_voltage"` // Steady state voltage (V)
	NoiseLevel   float64       `yaml:"noise_level"`   // Peak noise (V)
	TickUnit     time.Duration `yaml:"tick_unit"`     // Wall clock per simulated millisecond
}

// BoardConfig contains Linux board hardware configuration.
type BoardConfig struct {
	I2CBus      string `yaml:"i2c_bus"`
	I2CAddress  uint16 `yaml:"i2c_address"`
	Channel     int    `yaml:"channel"`   // ADS1115 input, 0-3
	DataRate    int    `yaml:"data_rate"` // ADS1115 samples per second
	StimulusPin string `yaml:"stimulus_pin"`
	SerialPort  string `yaml:"serial_port"` // Port the host connects to
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyACM0", // "COM3" on Windows
			Baud:        115200,
			BootLines:   6,
			OpenRetries: 3,
		},
		Acquisition: AcquisitionConfig{
			Trigger:   "10",
			Timeout:   10 * time.Second,
			MinPoints: 1,
		},
		Device: DeviceConfig{
			PeriodMs:     10, // 100 Hz
			Capacity:     200,
			Resolution:   4096,
			VRef:         3.3,
			FillTimeout:  5 * time.Second,
			PollInterval: 100 * time.Microsecond,
		},
		Plot: PlotConfig{
			Title:  "Step response",
			XLabel: "Time (ms)",
			YLabel: "Voltage (V)",
		},
		Output: OutputConfig{
			CSV: "-",
			MQTT: MQTTConfig{
				ClientID:  "stepresp",
				Topic:     "stepresp/dataset",
				MaxPoints: 500,
			},
		},
		Mock: MockConfig{
			TimeConstant: 330 * time.Millisecond,
			FinalVoltage: 3.04,
			NoiseLevel:   0.002,
			TickUnit:     10 * time.Microsecond,
		},
		Board: BoardConfig{
			I2CBus:      "1",
			I2CAddress:  0x48,
			Channel:     0,
			DataRate:    860,
			StimulusPin: "GPIO17",
			SerialPort:  "/dev/ttyGS0",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
// MinPoints and NoiseLevel may legitimately be zero and are left alone.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = def.Serial.Baud
	}
	if c.Serial.BootLines < 0 {
		c.Serial.BootLines = def.Serial.BootLines
	}
	if c.Serial.OpenRetries <= 0 {
		c.Serial.OpenRetries = def.Serial.OpenRetries
	}

	if c.Acquisition.Trigger == "" {
		c.Acquisition.Trigger = def.Acquisition.Trigger
	}
	if c.Acquisition.Timeout <= 0 {
		c.Acquisition.Timeout = def.Acquisition.Timeout
	}
	if c.Acquisition.MinPoints < 0 {
		c.Acquisition.MinPoints = def.Acquisition.MinPoints
	}

	if c.Device.PeriodMs <= 0 {
		c.Device.PeriodMs = def.Device.PeriodMs
	}
	if c.Device.Capacity <= 0 {
		c.Device.Capacity = def.Device.Capacity
	}
	if c.Device.Resolution == 0 {
		c.Device.Resolution = def.Device.Resolution
	}
	if c.Device.VRef == 0 {
		c.Device.VRef = def.Device.VRef
	}
	if c.Device.PollInterval <= 0 {
		c.Device.PollInterval = def.Device.PollInterval
	}

	if c.Plot.XLabel == "" {
		c.Plot.XLabel = def.Plot.XLabel
	}
	if c.Plot.YLabel == "" {
		c.Plot.YLabel = def.Plot.YLabel
	}

	if c.Output.MQTT.ClientID == "" {
		c.Output.MQTT.ClientID = def.Output.MQTT.ClientID
	}
	if c.Output.MQTT.Topic == "" {
		c.Output.MQTT.Topic = def.Output.MQTT.Topic
	}

	if c.Mock.TimeConstant <= 0 {
		c.Mock.TimeConstant = def.Mock.TimeConstant
	}
	if c.Mock.FinalVoltage == 0 {
		c.Mock.FinalVoltage = def.Mock.FinalVoltage
	}
	if c.Mock.TickUnit <= 0 {
		c.Mock.TickUnit = def.Mock.TickUnit
	}

	if c.Board.I2CBus == "" {
		c.Board.I2CBus = def.Board.I2CBus
	}
	if c.Board.I2CAddress == 0 {
		c.Board.I2CAddress = def.Board.I2CAddress
	}
	if c.Board.DataRate == 0 {
		c.Board.DataRate = def.Board.DataRate
	}
	if c.Board.StimulusPin == "" {
		c.Board.StimulusPin = def.Board.StimulusPin
	}
	if c.Board.SerialPort == "" {
		c.Board.SerialPort = def.Board.SerialPort
	}
}
