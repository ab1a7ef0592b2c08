package dsp

// Fixed vocal chain parameters.
const (
	HighPassCutoff = 85.0

	PresenceFrequency = 3000.0
	PresenceQ         = 1.0
	PresenceGainDB    = 3.0

	LowPassCutoff = 6000.0

	MakeupGain = 1.5
)

// VocalCompressor holds the chain's compressor settings.
var VocalCompressor = CompressorParams{
	ThresholdDB: -20,
	KneeDB:      30,
	Ratio:       12,
	Attack:      0.003,
	Release:     0.25,
}

// Chain is the fixed microphone shaping cascade: rumble high-pass, presence
// peak, hiss low-pass, compressor and makeup gain, in that order.
type Chain struct {
	highPass   *Biquad
	presence   *Biquad
	lowPass    *Biquad
	compressor *Compressor
	makeup     Gain
}

// NewChain builds the chain for audio running at sampleRate.
func NewChain(sampleRate int) *Chain {
	rate := float64(sampleRate)
	return &Chain{
		highPass:   NewHighPass(rate, HighPassCutoff),
		presence:   NewPeaking(rate, PresenceFrequency, PresenceQ, PresenceGainDB),
		lowPass:    NewLowPass(rate, LowPassCutoff),
		compressor: NewCompressor(rate, VocalCompressor),
		makeup:     Gain{Factor: MakeupGain},
	}
}

// Process runs samples through every stage in place.
func (c *Chain) Process(samples []float32) {
	c.highPass.Process(samples)
	c.presence.Process(samples)
	c.lowPass.Process(samples)
	c.compressor.Process(samples)
	c.makeup.Process(samples)
}
