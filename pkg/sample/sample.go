// Package sample holds the numeric helpers shared by the device and the host:
// ADC to voltage conversion, the CSV line codec and the XY dataset.
package sample

import (
	"github.com/chewxy/math32"
)

// Point is one entry of a reconstructed time series. Timestamps are
// synthetic: index * period, not captured per sample.
type Point struct {
	TimestampMs uint32
	Voltage     float32
}

// Voltage converts a raw ADC reading to volts.
// Formula: V = raw / resolution * vref
func Voltage(raw uint32, resolution uint32, vref float64) float64 {
	if resolution == 0 {
		return 0
	}
	return (float64(raw) / float64(resolution)) * vref
}

// Voltage32 is the float32 form of Voltage used on the device, where float64
// is emulated in software. Readings above the configured resolution are
// clamped to vref.
func Voltage32(raw uint16, resolution uint32, vref float32) float32 {
	if resolution == 0 {
		return 0
	}
	return math32.Min((float32(raw)/float32(resolution))*vref, vref)
}

// TimestampMs returns the synthetic timestamp of the sample at index.
func TimestampMs(index int, periodMs int) uint32 {
	return uint32(index) * uint32(periodMs)
}
