package dsp

import "math"

// CompressorParams configures a Compressor. Times are in seconds.
type CompressorParams struct {
	ThresholdDB float64
	KneeDB      float64
	Ratio       float64
	Attack      float64
	Release     float64
}

// Compressor is a feed-forward dynamics compressor with a soft knee and a
// one-pole attack/release envelope on the gain reduction.
type Compressor struct {
	params       CompressorParams
	attackCoeff  float64
	releaseCoeff float64
	reductionDB  float64
}

// NewCompressor builds a compressor running at sampleRate.
func NewCompressor(sampleRate float64, params CompressorParams) *Compressor {
	if params.Ratio < 1 {
		params.Ratio = 1
	}
	if params.KneeDB < 0 {
		params.KneeDB = 0
	}
	return &Compressor{
		params:       params,
		attackCoeff:  timeCoefficient(params.Attack, sampleRate),
		releaseCoeff: timeCoefficient(params.Release, sampleRate),
	}
}

func timeCoefficient(seconds, sampleRate float64) float64 {
	if seconds <= 0 || sampleRate <= 0 {
		return 0
	}
	return math.Exp(-1 / (seconds * sampleRate))
}

// StaticCurve returns the compressor output level in dB for a steady input
// level, ignoring attack and release.
func (c *Compressor) StaticCurve(inputDB float64) float64 {
	t := c.params.ThresholdDB
	w := c.params.KneeDB
	r := c.params.Ratio

	over := inputDB - t
	switch {
	case 2*over < -w:
		return inputDB
	case w > 0 && 2*math.Abs(over) <= w:
		k := over + w/2
		return inputDB + (1/r-1)*k*k/(2*w)
	default:
		return t + over/r
	}
}

// Process compresses samples in place.
func (c *Compressor) Process(samples []float32) {
	for i, s := range samples {
		level := math.Abs(float64(s))
		inputDB := -120.0
		if level > 1e-6 {
			inputDB = 20 * math.Log10(level)
		}
		target := c.StaticCurve(inputDB) - inputDB

		coeff := c.releaseCoeff
		if target < c.reductionDB {
			coeff = c.attackCoeff
		}
		c.reductionDB = coeff*c.reductionDB + (1-coeff)*target

		samples[i] = float32(float64(s) * math.Pow(10, c.reductionDB/20))
	}
}

// ReductionDB reports the current gain reduction (zero or negative).
func (c *Compressor) ReductionDB() float64 {
	return c.reductionDB
}

// Gain is a fixed linear gain stage.
type Gain struct {
	Factor float32
}

// Process scales samples in place.
func (g Gain) Process(samples []float32) {
	for i := range samples {
		samples[i] *= g.Factor
	}
}
