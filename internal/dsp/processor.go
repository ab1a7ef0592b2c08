package dsp

import (
	"sync"
	"sync/atomic"
)

// DefaultBlockSize is the processing block length in samples.
const DefaultBlockSize = 4096

// BlockProcessor regroups arbitrarily sized capture buffers into fixed-size
// blocks and hands each full block to its callback. After Release, pushes are
// ignored and no further blocks are delivered.
type BlockProcessor struct {
	mu       sync.Mutex
	block    []float32
	filled   int
	onBlock  func(block []float32)
	released atomic.Bool
}

// NewBlockProcessor delivers blocks of blockSize samples to onBlock. The
// block slice is reused between calls; onBlock must not retain it.
func NewBlockProcessor(blockSize int, onBlock func(block []float32)) *BlockProcessor {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &BlockProcessor{
		block:   make([]float32, blockSize),
		onBlock: onBlock,
	}
}

// Push appends samples, emitting every block that fills up.
func (p *BlockProcessor) Push(samples []float32) {
	if p.released.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(samples) > 0 {
		n := copy(p.block[p.filled:], samples)
		p.filled += n
		samples = samples[n:]
		if p.filled < len(p.block) {
			return
		}
		p.filled = 0
		if p.released.Load() {
			return
		}
		p.onBlock(p.block)
	}
}

// Release detaches the callback.
func (p *BlockProcessor) Release() {
	p.released.Store(true)
}

// Released reports whether Release was called.
func (p *BlockProcessor) Released() bool {
	return p.released.Load()
}

// BlockSize returns the configured block length.
func (p *BlockProcessor) BlockSize() int {
	return len(p.block)
}
