package dsp

import "testing"

func TestBlockProcessorRegroupsIntoFixedBlocks(t *testing.T) {
	t.Parallel()

	var blocks [][]float32
	p := NewBlockProcessor(4, func(block []float32) {
		blocks = append(blocks, append([]float32(nil), block...))
	})

	p.Push([]float32{1, 2, 3})
	if len(blocks) != 0 {
		t.Fatalf("expected no block yet")
	}
	p.Push([]float32{4, 5, 6, 7, 8, 9})
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0][0] != 1 || blocks[0][3] != 4 || blocks[1][0] != 5 || blocks[1][3] != 8 {
		t.Fatalf("unexpected blocks: %v", blocks)
	}
}

func TestBlockProcessorReleaseStopsDelivery(t *testing.T) {
	t.Parallel()

	calls := 0
	p := NewBlockProcessor(2, func([]float32) { calls++ })
	p.Release()
	p.Push([]float32{1, 2, 3, 4})
	if calls != 0 || !p.Released() {
		t.Fatalf("expected released processor to drop input, calls=%d", calls)
	}
	if p.BlockSize() != 2 {
		t.Fatalf("unexpected block size: %d", p.BlockSize())
	}
}

func TestMixerSumsSecondaryAfterPrimary(t *testing.T) {
	t.Parallel()

	m := NewMixer(4)
	m.PushSecondary([]float32{1, 1, 1, 1, 1, 2})
	if m.Pending() != 4 {
		t.Fatalf("expected backlog bounded to 4, got %d", m.Pending())
	}

	primary := []float32{0.5, 0.5}
	m.MixInto(primary)
	if primary[0] != 1.5 || primary[1] != 1.5 {
		t.Fatalf("unexpected mix: %v", primary)
	}
	if m.Pending() != 2 {
		t.Fatalf("expected 2 pending, got %d", m.Pending())
	}

	tail := []float32{0, 0, 0}
	m.MixInto(tail)
	if tail[0] != 1 || tail[1] != 2 || tail[2] != 0 {
		t.Fatalf("unexpected tail mix: %v", tail)
	}
}

func TestAnalyserFindsTonePeak(t *testing.T) {
	t.Parallel()

	a := NewAnalyser(DefaultFFTSize)
	if a.FrequencyBinCount() != DefaultFFTSize/2 {
		t.Fatalf("unexpected bin count: %d", a.FrequencyBinCount())
	}

	const rate = 48000.0
	tone := make([]float32, DefaultFFTSize)
	for i := range tone {
		tone[i] = float32(sinAt(3000, rate, i))
	}
	a.Write(tone)

	data := a.ByteFrequencyData()
	peak := 0
	for i := range data {
		if data[i] > data[peak] {
			peak = i
		}
	}
	wantBin := int(3000 / (rate / DefaultFFTSize))
	if peak < wantBin-2 || peak > wantBin+2 {
		t.Fatalf("expected peak near bin %d, got %d", wantBin, peak)
	}

	td := a.TimeDomainData()
	if len(td) != DefaultFFTSize || td[1] != tone[1] {
		t.Fatalf("unexpected time domain data")
	}
}
