package dsp

import (
	"math"
	"testing"
)

const testRate = 48000.0

func TestHighPassAttenuatesRumble(t *testing.T) {
	t.Parallel()

	f := NewHighPass(testRate, HighPassCutoff)
	if g := f.MagnitudeAt(testRate, 20); g > 0.1 {
		t.Fatalf("expected 20 Hz to be attenuated, gain=%v", g)
	}
	if g := f.MagnitudeAt(testRate, 1000); math.Abs(g-1) > 0.01 {
		t.Fatalf("expected 1 kHz to pass, gain=%v", g)
	}
}

func TestLowPassAttenuatesHiss(t *testing.T) {
	t.Parallel()

	f := NewLowPass(testRate, LowPassCutoff)
	if g := f.MagnitudeAt(testRate, 18000); g > 0.1 {
		t.Fatalf("expected 18 kHz to be attenuated, gain=%v", g)
	}
	if g := f.MagnitudeAt(testRate, 500); math.Abs(g-1) > 0.01 {
		t.Fatalf("expected 500 Hz to pass, gain=%v", g)
	}
}

func TestPeakingBoostsCentre(t *testing.T) {
	t.Parallel()

	f := NewPeaking(testRate, PresenceFrequency, PresenceQ, PresenceGainDB)
	gotDB := 20 * math.Log10(f.MagnitudeAt(testRate, PresenceFrequency))
	if math.Abs(gotDB-PresenceGainDB) > 0.01 {
		t.Fatalf("expected +%v dB at centre, got %v", PresenceGainDB, gotDB)
	}
	if g := f.MagnitudeAt(testRate, 100); math.Abs(g-1) > 0.01 {
		t.Fatalf("expected unity far from centre, gain=%v", g)
	}
}

func TestBiquadProcessRemovesDC(t *testing.T) {
	t.Parallel()

	f := NewHighPass(testRate, HighPassCutoff)
	samples := make([]float32, 48000)
	for i := range samples {
		samples[i] = 0.5
	}
	f.Process(samples)
	if tail := math.Abs(float64(samples[len(samples)-1])); tail > 1e-3 {
		t.Fatalf("expected DC to decay, tail=%v", tail)
	}

	f.Reset()
	if f.z1 != 0 || f.z2 != 0 {
		t.Fatalf("expected reset state")
	}
}
