package sample

// DownsampleFloats downsamples values to at most maxPoints using simple decimation.
// Destination-based: reuses dst if it has sufficient capacity, otherwise allocates new.
// If maxPoints <= 0 or len(values) <= maxPoints, all values are copied.
func DownsampleFloats(dst []float64, values []float64, maxPoints int) []float64 {
	if maxPoints <= 0 || len(values) <= maxPoints {
		if cap(dst) >= len(values) {
			dst = dst[:len(values)]
			copy(dst, values)
			return dst
		}
		result := make([]float64, len(values))
		copy(result, values)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]float64, 0, maxPoints)
	}

	step := float64(len(values)) / float64(maxPoints)

	for i := 0; i < maxPoints; i++ {
		idx := int(float64(i) * step)
		if idx < len(values) {
			dst = append(dst, values[idx])
		}
	}

	return dst
}

// Downsample returns a copy of d reduced to at most maxPoints points. Xs and
// Ys are decimated with the same indices so pairs stay aligned.
func (d *Dataset) Downsample(maxPoints int) *Dataset {
	return &Dataset{
		Xs:      DownsampleFloats(nil, d.Xs, maxPoints),
		Ys:      DownsampleFloats(nil, d.Ys, maxPoints),
		Skipped: d.Skipped,
	}
}
