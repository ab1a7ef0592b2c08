// Package dsp holds the fixed vocal chain applied to captured audio before it
// is encoded, plus the mixing, analysis and gating stages around it.
package dsp

import "math"

// qResonanceDB is the resonance applied to the low/high-pass stages. It is
// expressed in dB, as audio engines conventionally do for those filter types.
const qResonanceDB = 1.0

type biquadCoefficients struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// Biquad is a second-order IIR section in transposed direct form II.
type Biquad struct {
	c      biquadCoefficients
	z1, z2 float64
}

func newBiquad(b0, b1, b2, a0, a1, a2 float64) *Biquad {
	return &Biquad{c: biquadCoefficients{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}}
}

// NewHighPass returns a high-pass section at cutoff Hz.
func NewHighPass(sampleRate, cutoff float64) *Biquad {
	cosw, alpha := lowHighPassTerms(sampleRate, cutoff)
	return newBiquad(
		(1+cosw)/2, -(1 + cosw), (1+cosw)/2,
		1+alpha, -2*cosw, 1-alpha,
	)
}

// NewLowPass returns a low-pass section at cutoff Hz.
func NewLowPass(sampleRate, cutoff float64) *Biquad {
	cosw, alpha := lowHighPassTerms(sampleRate, cutoff)
	return newBiquad(
		(1-cosw)/2, 1-cosw, (1-cosw)/2,
		1+alpha, -2*cosw, 1-alpha,
	)
}

// NewPeaking returns a peaking EQ section centred on freq with linear q and
// gainDB boost (negative cuts).
func NewPeaking(sampleRate, freq, q, gainDB float64) *Biquad {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * clampFrequency(freq, sampleRate) / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosw := math.Cos(w0)
	return newBiquad(
		1+alpha*a, -2*cosw, 1-alpha*a,
		1+alpha/a, -2*cosw, 1-alpha/a,
	)
}

func lowHighPassTerms(sampleRate, cutoff float64) (cosw, alpha float64) {
	w0 := 2 * math.Pi * clampFrequency(cutoff, sampleRate) / sampleRate
	q := math.Pow(10, qResonanceDB/20)
	return math.Cos(w0), math.Sin(w0) / (2 * q)
}

func clampFrequency(freq, sampleRate float64) float64 {
	nyquist := sampleRate / 2
	if freq <= 0 {
		return 1
	}
	if freq >= nyquist {
		return nyquist * 0.999
	}
	return freq
}

// Process filters samples in place.
func (b *Biquad) Process(samples []float32) {
	c := b.c
	z1, z2 := b.z1, b.z2
	for i, s := range samples {
		x := float64(s)
		y := c.b0*x + z1
		z1 = c.b1*x - c.a1*y + z2
		z2 = c.b2*x - c.a2*y
		samples[i] = float32(y)
	}
	b.z1, b.z2 = z1, z2
}

// MagnitudeAt returns the filter's linear gain at freq Hz.
func (b *Biquad) MagnitudeAt(sampleRate, freq float64) float64 {
	w := 2 * math.Pi * freq / sampleRate
	cos1, sin1 := math.Cos(w), math.Sin(w)
	cos2, sin2 := math.Cos(2*w), math.Sin(2*w)

	numRe := b.c.b0 + b.c.b1*cos1 + b.c.b2*cos2
	numIm := -(b.c.b1*sin1 + b.c.b2*sin2)
	denRe := 1 + b.c.a1*cos1 + b.c.a2*cos2
	denIm := -(b.c.a1*sin1 + b.c.a2*sin2)

	return math.Hypot(numRe, numIm) / math.Hypot(denRe, denIm)
}

// Reset clears the filter memory.
func (b *Biquad) Reset() {
	b.z1, b.z2 = 0, 0
}
