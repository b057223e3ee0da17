//go:build tinygo

package main

import (
	"machine"
	"time"
)

const (
	// Sampling configuration
	QUEUE_CAPACITY = 200                    // Samples per acquisition
	TICK_UNIT      = time.Millisecond       // Scheduler unit, trigger periods are in ms
	FILL_TIMEOUT   = 10 * time.Second       // Abort a run whose queue does not fill
	POLL_INTERVAL  = 100 * time.Microsecond // Fill wait poll period

	// ADC configuration
	ADC_REFERENCE_MV = 3300  // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12    // ADC resolution in bits (12-bit = 0-4095)
	ADC_CODES        = 65536 // machine.ADC.Get scales every resolution to 16 bits
	VREF             = 3.3

	// Stimulus pin
	PIN_STIMULUS = machine.D7

	// ADC pin
	PIN_ADC = machine.A1

	// Serial configuration
	// A data line is at most "4294967295,3.3000002\r\n" = 23 bytes.
	// 200 lines * 23 bytes = 4,600 bytes per acquisition, drained after sampling,
	// so the baud rate only bounds the drain time (~0.4 s at 115200).
	UART_BAUD_RATE = 115200
)
