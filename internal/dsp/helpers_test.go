package dsp

import "math"

func sinAt(freq, rate float64, i int) float64 {
	return 0.5 * math.Sin(2*math.Pi*freq*float64(i)/rate)
}
