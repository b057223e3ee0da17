// Package analysis derives step response metrics from an acquired dataset.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/itohio/stepresp/pkg/sample"
)

// ErrTooFewPoints is returned for datasets that cannot describe a step.
var ErrTooFewPoints = errors.New("too few points")

const (
	// FinalFraction is the trailing share of points averaged into Final.
	FinalFraction = 0.1
	// TimeConstantLevel is the normalized response at one time constant.
	TimeConstantLevel = 0.632
	// SettlingBand is the settling tolerance relative to the amplitude.
	SettlingBand = 0.02
	// SlopeWindow is the moving average window applied to slopes.
	SlopeWindow = 3
)

// StepResponse holds metrics of one acquisition. Times are in X units
// relative to the first point. A time whose level is never reached is zero.
type StepResponse struct {
	Points       int     `json:"points"`
	Initial      float64 `json:"initial"`
	Final        float64 `json:"final"` // mean of the trailing FinalFraction of points
	Amplitude    float64 `json:"amplitude"`
	TimeConstant float64 `json:"time_constant"`
	RiseTime     float64 `json:"rise_time"` // 10% to 90%
	SettlingTime float64 `json:"settling_time"`
	Settled      bool    `json:"settled"`
	MaxSlope     float64 `json:"max_slope"` // Y units per X unit, smoothed
	MaxSlopeAt   float64 `json:"max_slope_at"`
}

// Analyze computes step response metrics for ds.
func Analyze(ds *sample.Dataset) (StepResponse, error) {
	if ds == nil || ds.Len() < 2 {
		n := 0
		if ds != nil {
			n = ds.Len()
		}
		return StepResponse{}, fmt.Errorf("%w: %d, want at least 2", ErrTooFewPoints, n)
	}

	xs, ys := ds.Xs, ds.Ys
	r := StepResponse{
		Points:  len(xs),
		Initial: ys[0],
		Final:   finalValue(ys),
	}
	r.Amplitude = r.Final - r.Initial

	if r.Amplitude != 0 {
		if x, ok := crossing(xs, ys, r.Initial, r.Amplitude, TimeConstantLevel); ok {
			r.TimeConstant = x - xs[0]
		}
		lo, okLo := crossing(xs, ys, r.Initial, r.Amplitude, 0.1)
		hi, okHi := crossing(xs, ys, r.Initial, r.Amplitude, 0.9)
		if okLo && okHi {
			r.RiseTime = hi - lo
		}
		r.SettlingTime, r.Settled = settling(xs, ys, r.Final, math.Abs(r.Amplitude)*SettlingBand)
	}

	slopes := sample.MovingAverage(nil, Derivatives(xs, ys), SlopeWindow)
	for i, s := range slopes {
		if math.Abs(s) > math.Abs(r.MaxSlope) {
			r.MaxSlope = s
			r.MaxSlopeAt = xs[i] - xs[0]
		}
	}

	return r, nil
}

// Derivatives returns n-1 slopes for n points:
// d[i] = (ys[i+1] - ys[i]) / (xs[i+1] - xs[i]). Pairs with a non-increasing X
// yield zero.
func Derivatives(xs, ys []float64) []float64 {
	n := min(len(xs), len(ys))
	if n < 2 {
		return nil
	}

	d := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		dx := xs[i+1] - xs[i]
		if dx > 0 {
			d[i] = (ys[i+1] - ys[i]) / dx
		}
	}
	return d
}

func finalValue(ys []float64) float64 {
	n := int(math.Ceil(float64(len(ys)) * FinalFraction))
	if n < 1 {
		n = 1
	}

	var sum float64
	for _, y := range ys[len(ys)-n:] {
		sum += y
	}
	return sum / float64(n)
}

// crossing returns the interpolated X at which the response normalized to
// [initial, initial+amplitude] first reaches level.
func crossing(xs, ys []float64, initial, amplitude, level float64) (float64, bool) {
	prev := 0.
	for i, y := range ys {
		norm := (y - initial) / amplitude
		if norm >= level {
			if i == 0 || norm == prev {
				return xs[i], true
			}
			f := (level - prev) / (norm - prev)
			return xs[i-1] + f*(xs[i]-xs[i-1]), true
		}
		prev = norm
	}
	return 0, false
}

// settling returns the time after which ys stays within band of final. It is
// not settled when the last point is still outside.
func settling(xs, ys []float64, final, band float64) (float64, bool) {
	last := -1
	for i, y := range ys {
		if math.Abs(y-final) > band {
			last = i
		}
	}

	switch {
	case last == -1:
		return 0, true
	case last == len(ys)-1:
		return 0, false
	default:
		return xs[last+1] - xs[0], true
	}
}
