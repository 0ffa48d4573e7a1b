package audio

import "math"

// RMS returns the root-mean-square level of samples, capped at 1.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Min(math.Sqrt(sum/float64(len(samples))), 1)
}
