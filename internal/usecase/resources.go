package usecase

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"earshot/internal/dsp"
	"earshot/internal/ports"
)

// pipeline is the processing graph wired once the remote session opens.
type pipeline struct {
	chain     *dsp.Chain
	mixer     *dsp.Mixer
	analyser  *dsp.Analyser
	processor *dsp.BlockProcessor
}

// activeResources holds every live handle of one connection attempt.
// Handles are attached as they are acquired; once torn down, attaching
// fails and the caller must release the handle itself.
type activeResources struct {
	logger    *slog.Logger
	accepting atomic.Bool

	mu       sync.Mutex
	torn     bool
	engine   ports.AudioContext
	mic      ports.CaptureStream
	system   ports.CaptureStream
	pipeline *pipeline
}

func newActiveResources(logger *slog.Logger) *activeResources {
	r := &activeResources{logger: logger}
	r.accepting.Store(true)
	return r
}

func (r *activeResources) attachEngine(engine ports.AudioContext) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.torn {
		return false
	}
	r.engine = engine
	return true
}

func (r *activeResources) attachMicrophone(mic ports.CaptureStream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.torn {
		return false
	}
	r.mic = mic
	return true
}

func (r *activeResources) attachSystem(system ports.CaptureStream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.torn {
		return false
	}
	r.system = system
	return true
}

func (r *activeResources) attachPipeline(p *pipeline) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.torn {
		return false
	}
	r.pipeline = p
	return true
}

func (r *activeResources) audioContext() ports.AudioContext {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine
}

func (r *activeResources) sources() (mic, system ports.CaptureStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mic, r.system
}

func (r *activeResources) analyser() *dsp.Analyser {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pipeline == nil {
		return nil
	}
	return r.pipeline.analyser
}

// tornDown reports whether teardown has started. Capture must not be
// started on sources of torn down resources.
func (r *activeResources) tornDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.torn
}

// acceptingFrames reports whether outbound blocks may still be sent.
func (r *activeResources) acceptingFrames() bool {
	return r != nil && r.accepting.Load()
}

// teardown releases everything in reverse acquisition order. It is safe on
// a nil receiver, on partially attached resources and when called again.
func (r *activeResources) teardown(stopPlayback func()) {
	if r != nil {
		r.accepting.Store(false)
	}
	if stopPlayback != nil {
		stopPlayback()
	}
	if r == nil {
		return
	}

	r.mu.Lock()
	r.torn = true
	p := r.pipeline
	mic, system, engine := r.mic, r.system, r.engine
	r.pipeline, r.mic, r.system, r.engine = nil, nil, nil, nil
	r.mu.Unlock()

	if p != nil && p.processor != nil {
		p.processor.Release()
	}
	for _, source := range []ports.CaptureStream{mic, system} {
		if source == nil {
			continue
		}
		if err := source.Stop(); err != nil {
			r.logger.Debug("capture source stop failed", slog.String("error", err.Error()))
		}
	}
	for _, source := range []ports.CaptureStream{mic, system} {
		if source == nil {
			continue
		}
		if err := source.Close(); err != nil {
			r.logger.Debug("capture track release failed", slog.String("error", err.Error()))
		}
	}
	if engine != nil {
		if err := engine.Close(); err != nil {
			r.logger.Debug("audio context close failed", slog.String("error", err.Error()))
		}
	}
}
