package dsp

import "math"

// DefaultGateThreshold is the block RMS below which input is silenced.
const DefaultGateThreshold = 0.01

// RMS returns sqrt(mean(sample^2)) over block.
func RMS(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, s := range block {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(block)))
}

// GateBlock zeroes the whole block in place when its RMS is below threshold
// and leaves it untouched otherwise. There is no attack or release ramp, so
// speech onsets that straddle a block boundary can be clipped.
func GateBlock(block []float32, threshold float64) (rms float64, gated bool) {
	rms = RMS(block)
	if rms >= threshold {
		return rms, false
	}
	for i := range block {
		block[i] = 0
	}
	return rms, true
}
