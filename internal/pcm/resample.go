// Package pcm converts captured float audio into the 16 kHz PCM frames the
// live service expects, and decodes the service's PCM replies.
package pcm

import "math"

// TargetRate is the sample rate of every outbound frame.
const TargetRate = 16000

// Resample converts samples captured at inputRate to TargetRate.
func Resample(samples []float32, inputRate int) []float32 {
	return ResampleTo(samples, inputRate, TargetRate)
}

// ResampleTo converts samples from inputRate to outputRate using linear
// interpolation between neighbouring source samples. Equal rates return the
// input unchanged.
func ResampleTo(samples []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || inputRate <= 0 || outputRate <= 0 {
		return samples
	}
	if len(samples) == 0 {
		return []float32{}
	}

	ratio := float64(inputRate) / float64(outputRate)
	outLen := int(math.Round(float64(len(samples)) / ratio))
	last := len(samples) - 1

	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		if lo > last {
			lo = last
		}
		if hi > last {
			hi = last
		}
		frac := pos - math.Floor(pos)
		a := float64(samples[lo])
		b := float64(samples[hi])
		out[i] = float32(a + (b-a)*frac)
	}
	return out
}
