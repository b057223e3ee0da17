//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"

	"github.com/itohio/stepresp/pkg/acquire"
	"github.com/itohio/stepresp/pkg/queue"
	"github.com/itohio/stepresp/pkg/sched"
)

var serial = machine.Serial

func main() {
	// Stimulus starts low so the circuit is discharged before the first run
	PIN_STIMULUS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_STIMULUS.Low()

	PIN_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})
	adc := machine.ADC{Pin: PIN_ADC}
	adc.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	serial.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	q, err := queue.New(QUEUE_CAPACITY)
	if err != nil {
		println("queue:", err.Error())
		return
	}

	ctrl := acquire.New(q, adc, PIN_STIMULUS, sched.NewTicker(TICK_UNIT), serial, acquire.Config{
		Resolution:   ADC_CODES,
		VRef:         VREF,
		FillTimeout:  FILL_TIMEOUT,
		PollInterval: POLL_INTERVAL,
	})
	responder := acquire.NewResponder(ctrl, serial)

	// Main loop: feed host bytes to the responder, acquisitions run on their own goroutine
	for {
		for serial.Buffered() > 0 {
			data, err := serial.ReadByte()
			if err != nil {
				break
			}
			responder.Handle(data)
		}

		time.Sleep(100 * time.Microsecond)
	}
}
