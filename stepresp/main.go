package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/itohio/stepresp/pkg/analysis"
	"github.com/itohio/stepresp/pkg/config"
	"github.com/itohio/stepresp/pkg/hostlink"
	"github.com/itohio/stepresp/pkg/sink"
)

func main() {
	var (
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		baudFlag    = flag.Int("b", 0, "Baud rate override")
		triggerFlag = flag.String("trigger", "", "Trigger parameter override (sampling period in ms)")
		timeoutFlag = flag.Duration("timeout", 0, "Acquisition timeout override (e.g., 15s)")
		mockFlag    = flag.Bool("mock", false, "Use simulated board instead of serial port")
		csvFlag     = flag.String("csv", "", "CSV output override (file path, - for stdout)")
		listFlag    = flag.Bool("list", false, "List serial ports and exit")
	)
	flag.Parse()

	if *listFlag {
		listPorts()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Command line overrides
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *baudFlag > 0 {
		cfg.Serial.Baud = *baudFlag
	}
	if *triggerFlag != "" {
		cfg.Acquisition.Trigger = *triggerFlag
	}
	if *timeoutFlag > 0 {
		cfg.Acquisition.Timeout = *timeoutFlag
	}
	if *csvFlag != "" {
		cfg.Output.CSV = *csvFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = run(ctx, cfg, *mockFlag)
	stop()
	if err != nil {
		log.Fatalf("Step response failed: %v", err)
	}
}

func listPorts() {
	ports, err := hostlink.Ports()
	if err != nil {
		log.Fatalf("Failed to list ports: %v", err)
	}
	for _, p := range ports {
		fmt.Println(p.Name)
	}
}

func run(ctx context.Context, cfg *config.Config, mock bool) error {
	open := hostlink.SerialOpener(cfg.Serial.OpenRetries)
	port := cfg.Serial.Port
	if mock {
		open = hostlink.MockOpener(&cfg.Mock, &cfg.Device)
		port = "mock"
	}

	link := hostlink.New(open)
	link.BootLines = cfg.Serial.BootLines
	link.MinPoints = cfg.Acquisition.MinPoints

	sinks, err := openSinks(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Printf("Error closing outputs: %v", err)
		}
	}()

	log.Printf("Acquiring from %s (trigger %q, timeout %v)", port, cfg.Acquisition.Trigger, cfg.Acquisition.Timeout)
	start := time.Now()
	ds, err := link.Acquire(ctx, port, cfg.Serial.Baud, cfg.Acquisition.Trigger, cfg.Acquisition.Timeout)
	if err != nil {
		return fmt.Errorf("acquire from %s: %w", port, err)
	}
	log.Printf("Acquired %d points (%d skipped) in %v", ds.Len(), ds.Skipped, time.Since(start).Round(time.Millisecond))

	r, err := analysis.Analyze(ds)
	if err != nil {
		log.Printf("Skipping analysis: %v", err)
	} else {
		log.Printf("Initial %.4g, final %.4g, amplitude %.4g", r.Initial, r.Final, r.Amplitude)
		log.Printf("Time constant %.4g, rise time %.4g, settling time %.4g (settled: %v), max slope %.4g at %.4g",
			r.TimeConstant, r.RiseTime, r.SettlingTime, r.Settled, r.MaxSlope, r.MaxSlopeAt)
		sinks.Annotate(r)
	}

	return sinks.Show(ds, cfg.Plot.XLabel, cfg.Plot.YLabel)
}

func openSinks(cfg *config.Config) (sink.Multi, error) {
	var sinks sink.Multi

	if cfg.Output.CSV != "" {
		c, err := sink.OpenCSV(cfg.Output.CSV)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, c)
	}

	if cfg.Output.MQTT.Server != "" {
		m, err := sink.NewMQTT(cfg.Output.MQTT, cfg.Plot.Title)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, m)
	}

	return sinks, nil
}
