package sample

// MovingAverage writes the trailing moving average of values over window
// points into dst and returns it. The first window-1 outputs average over the
// points seen so far. Destination-based: reuses dst if it has sufficient
// capacity. A window below 2 copies values unchanged.
func MovingAverage(dst []float64, values []float64, window int) []float64 {
	if cap(dst) >= len(values) {
		dst = dst[:len(values)]
	} else {
		dst = make([]float64, len(values))
	}

	if window < 2 {
		copy(dst, values)
		return dst
	}

	var sum float64
	for i, v := range values {
		sum += v
		n := window
		if i >= window {
			sum -= values[i-window]
		} else {
			n = i + 1
		}
		dst[i] = sum / float64(n)
	}

	return dst
}
