package dsp

import "sync"

// Mixer sums a secondary source into the primary signal after the chain.
// The secondary source is pushed from its own capture callback and drained
// as primary audio arrives; the backlog is bounded and drops oldest samples.
type Mixer struct {
	mu      sync.Mutex
	pending []float32
	limit   int
}

// NewMixer keeps at most limit secondary samples waiting to be mixed.
func NewMixer(limit int) *Mixer {
	if limit <= 0 {
		limit = 48000
	}
	return &Mixer{pending: make([]float32, 0, limit), limit: limit}
}

// PushSecondary queues secondary samples for mixing.
func (m *Mixer) PushSecondary(samples []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = append(m.pending, samples...)
	if excess := len(m.pending) - m.limit; excess > 0 {
		n := copy(m.pending, m.pending[excess:])
		m.pending = m.pending[:n]
	}
}

// MixInto adds as many queued secondary samples as are available into
// primary, in place.
func (m *Mixer) MixInto(primary []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(primary)
	if len(m.pending) < n {
		n = len(m.pending)
	}
	for i := 0; i < n; i++ {
		primary[i] += m.pending[i]
	}
	rest := copy(m.pending, m.pending[n:])
	m.pending = m.pending[:rest]
}

// Pending returns the number of secondary samples waiting.
func (m *Mixer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
