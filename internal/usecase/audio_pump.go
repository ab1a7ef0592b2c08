package usecase

import (
	"log/slog"

	"earshot/internal/dsp"
	"earshot/internal/metrics"
	"earshot/internal/pcm"
	"earshot/internal/ports"
)

// mixerBacklogSeconds bounds queued secondary audio to one second.
const mixerBacklogSeconds = 1

// startPipeline wires the DSP graph between the capture sources and the
// per-block send path, then starts capture.
func (c *SessionController) startPipeline(resources *activeResources, handle ports.LiveHandle) error {
	out := resources.audioContext()
	if out == nil {
		return nil
	}
	rate := out.SampleRate()

	chain := dsp.NewChain(rate)
	mixer := dsp.NewMixer(rate * mixerBacklogSeconds)
	analyser := dsp.NewAnalyser(dsp.DefaultFFTSize)
	processor := dsp.NewBlockProcessor(c.cfg.BlockSize, func(block []float32) {
		c.sendBlock(resources, handle, rate, block)
	})
	if !resources.attachPipeline(&pipeline{chain: chain, mixer: mixer, analyser: analyser, processor: processor}) {
		processor.Release()
		return nil
	}

	// A disconnect may tear resources down while capture is starting, so
	// each source is checked right before it starts. Streams refuse to start
	// once closed.
	mic, system := resources.sources()
	if system != nil && !resources.tornDown() {
		if err := system.Start(mixer.PushSecondary); err != nil {
			c.logger.Warn("system audio start failed", slog.String("error", err.Error()))
		}
	}
	if mic == nil || resources.tornDown() {
		return nil
	}
	err := mic.Start(func(samples []float32) {
		chain.Process(samples)
		mixer.MixInto(samples)
		analyser.Write(samples)
		processor.Push(samples)
	})
	if err != nil && resources.tornDown() {
		return nil
	}
	return err
}

// sendBlock gates, resamples, encodes and sends one block. It runs on the
// audio callback: it never blocks and a failed send only drops the block.
func (c *SessionController) sendBlock(resources *activeResources, handle ports.LiveHandle, rate int, block []float32) {
	if !c.active.Load() || !resources.acceptingFrames() {
		c.metrics.FrameDropped(metrics.DropInactive)
		return
	}

	if _, gated := dsp.GateBlock(block, c.live.Load().NoiseGateThreshold); gated {
		c.metrics.FrameGated()
	}
	frame := pcm.Encode(pcm.Resample(block, rate))
	if err := handle.Send(ports.OutboundMessage{Media: &frame}); err != nil {
		c.metrics.FrameDropped(metrics.DropSendError)
		c.logger.Debug("dropping audio block", slog.String("error", err.Error()))
		return
	}
	c.metrics.FrameSent()
}
