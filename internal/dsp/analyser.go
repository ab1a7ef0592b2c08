package dsp

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Analyser defaults, matching a conventional spectrum tap.
const (
	DefaultFFTSize           = 2048
	DefaultSmoothingConstant = 0.8
	DefaultMinDecibels       = -100.0
	DefaultMaxDecibels       = -30.0
)

// Analyser is a read-only spectral tap. Write is called on the audio path
// and only copies samples; the FFT runs when a reader asks for data.
type Analyser struct {
	mu       sync.Mutex
	ring     []float32
	writePos int
	filled   int

	fft      *fourier.FFT
	frame    []float64
	coeffs   []complex128
	smoothed []float64

	smoothing   float64
	minDecibels float64
	maxDecibels float64
	binCount    int
}

// NewAnalyser returns an analyser over the last fftSize samples. fftSize is
// rounded up to a power of two.
func NewAnalyser(fftSize int) *Analyser {
	size := 32
	for size < fftSize {
		size <<= 1
	}
	return &Analyser{
		ring:        make([]float32, size),
		fft:         fourier.NewFFT(size),
		frame:       make([]float64, size),
		coeffs:      make([]complex128, size/2+1),
		smoothed:    make([]float64, size/2),
		smoothing:   DefaultSmoothingConstant,
		minDecibels: DefaultMinDecibels,
		maxDecibels: DefaultMaxDecibels,
		binCount:    size / 2,
	}
}

// FrequencyBinCount is half the FFT size.
func (a *Analyser) FrequencyBinCount() int {
	return a.binCount
}

// Write records the latest samples.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := len(a.ring)
	if len(samples) >= size {
		copy(a.ring, samples[len(samples)-size:])
		a.writePos = 0
		a.filled = size
		return
	}
	for _, s := range samples {
		a.ring[a.writePos] = s
		a.writePos = (a.writePos + 1) % size
	}
	a.filled += len(samples)
	if a.filled > size {
		a.filled = size
	}
}

// TimeDomainData returns the last fftSize samples in chronological order.
func (a *Analyser) TimeDomainData() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]float32, len(a.ring))
	first := copy(out, a.ring[a.writePos:])
	copy(out[first:], a.ring[:a.writePos])
	return out
}

// FloatFrequencyData returns the smoothed magnitude spectrum in dB.
func (a *Analyser) FloatFrequencyData() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.updateSpectrum()
	out := make([]float64, a.binCount)
	for i, m := range a.smoothed {
		out[i] = toDecibels(m)
	}
	return out
}

// ByteFrequencyData returns the spectrum scaled into [0, 255] over the
// analyser's decibel range.
func (a *Analyser) ByteFrequencyData() []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.updateSpectrum()
	out := make([]uint8, a.binCount)
	span := a.maxDecibels - a.minDecibels
	for i, m := range a.smoothed {
		scaled := 255 * (toDecibels(m) - a.minDecibels) / span
		switch {
		case scaled <= 0:
			out[i] = 0
		case scaled >= 255:
			out[i] = 255
		default:
			out[i] = uint8(scaled)
		}
	}
	return out
}

func (a *Analyser) updateSpectrum() {
	size := len(a.ring)
	for i := 0; i < size; i++ {
		a.frame[i] = float64(a.ring[(a.writePos+i)%size])
	}
	window.Blackman(a.frame)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	scale := 1 / float64(size)
	for i := 0; i < a.binCount; i++ {
		c := a.coeffs[i]
		magnitude := math.Hypot(real(c), imag(c)) * scale
		a.smoothed[i] = a.smoothing*a.smoothed[i] + (1-a.smoothing)*magnitude
	}
}

func toDecibels(magnitude float64) float64 {
	if magnitude <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(magnitude)
}
