package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/itohio/stepresp/pkg/acquire"
	"github.com/itohio/stepresp/pkg/board"
	"github.com/itohio/stepresp/pkg/config"
	"github.com/itohio/stepresp/pkg/queue"
	"github.com/itohio/stepresp/pkg/sched"
	"go.bug.st/serial"
)

func main() {
	var (
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		portFlag   = flag.String("p", "", "Serial port to serve the host on (e.g., /dev/ttyGS0)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Board.SerialPort = *portFlag
	}

	adc, err := board.OpenADS1115(cfg.Board)
	if err != nil {
		log.Fatalf("Failed to open ADC: %v", err)
	}
	defer adc.Close()

	stimulus, err := board.OpenStimulus(cfg.Board.StimulusPin)
	if err != nil {
		log.Fatalf("Failed to open stimulus pin: %v", err)
	}

	port, err := serial.Open(cfg.Board.SerialPort, &serial.Mode{BaudRate: cfg.Serial.Baud})
	if err != nil {
		log.Fatalf("Failed to open serial port %s: %v", cfg.Board.SerialPort, err)
	}

	q, err := queue.New(cfg.Device.Capacity)
	if err != nil {
		log.Fatalf("Failed to create queue: %v", err)
	}

	ctrl := acquire.New(q, adc, stimulus, sched.NewTicker(time.Millisecond), port, acquire.Config{
		Resolution:   board.ADS1115Resolution,
		VRef:         board.ADS1115FullScale,
		FillTimeout:  cfg.Device.FillTimeout,
		PollInterval: cfg.Device.PollInterval,
	})
	responder := acquire.NewResponder(ctrl, port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Serve blocks in Read; closing the port releases it.
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	log.Printf("Serving on %s (ADS1115 channel %d at %d SPS, stimulus %s)",
		cfg.Board.SerialPort, cfg.Board.Channel, cfg.Board.DataRate, cfg.Board.StimulusPin)

	err = responder.Serve(ctx, port)
	stimulus.Low()

	s := ctrl.Session()
	log.Printf("Last session: %s, period %d ms, %d ticks, %d overflows, %d ADC errors, %d GPIO errors",
		s.State, s.PeriodMs, s.ElapsedTicks, s.Overflows, adc.Errors(), stimulus.Errors())

	if err != nil && ctx.Err() == nil {
		log.Fatalf("Serial port failed: %v", err)
	}
}
