package sample

// DownsampleSamples decimates samples to maxPoints. Anomalous samples that
// fall between decimation points are kept as well, so the result may be
// longer than maxPoints. Reuses dst when it has sufficient capacity.
func DownsampleSamples(dst []Sample, samples []Sample, maxPoints int) []Sample {
	if len(samples) <= maxPoints {
		return copyInto(dst, samples)
	}

	dst = reset(dst, maxPoints)
	step := float64(len(samples)) / float64(maxPoints)
	next := 0
	for i, s := range samples {
		switch {
		case i == int(float64(next)*step):
			dst = append(dst, s)
			next++
		case s.Anomalous:
			dst = append(dst, s)
		}
	}

	return dst
}

// DownsampleValues reduces values to at most maxPoints by decimation.
// Reuses dst when it has sufficient capacity.
func DownsampleValues(dst []float64, values []float64, maxPoints int) []float64 {
	if len(values) <= maxPoints {
		return copyInto(dst, values)
	}

	dst = reset(dst, maxPoints)
	step := float64(len(values)) / float64(maxPoints)
	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(values) {
			dst = append(dst, values[idx])
		}
	}

	return dst
}

func copyInto[T any](dst, src []T) []T {
	if cap(dst) >= len(src) {
		dst = dst[:len(src)]
		copy(dst, src)
		return dst
	}
	result := make([]T, len(src))
	copy(result, src)
	return result
}

func reset[T any](dst []T, n int) []T {
	if cap(dst) >= n {
		return dst[:0]
	}
	return make([]T, 0, n)
}
