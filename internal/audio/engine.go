package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"earshot/internal/domain"
	"earshot/internal/logging"
	"earshot/internal/pcm"
	"earshot/internal/ports"
)

// System audio sources.
const (
	SystemAudioNone     = "none"
	SystemAudioLoopback = "loopback"
	SystemAudioFFmpeg   = "ffmpeg"
)

const DefaultSampleRate = 48000

var (
	ErrSystemAudioDisabled = errors.New("system audio capture is disabled")
	ErrStreamClosed        = errors.New("capture stream is closed")
)

// EngineConfig controls hardware capture.
type EngineConfig struct {
	SampleRate  int
	SystemAudio string
	FFmpeg      FFmpegConfig
	Logger      *slog.Logger
}

// MalgoEngine implements ports.AudioEngine on miniaudio.
type MalgoEngine struct {
	cfg     EngineConfig
	speaker *Speaker
	logger  *slog.Logger
}

func NewMalgoEngine(cfg EngineConfig, speaker *Speaker) *MalgoEngine {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.SystemAudio == "" {
		cfg.SystemAudio = SystemAudioNone
	}
	return &MalgoEngine{cfg: cfg, speaker: speaker, logger: logging.OrDiscard(cfg.Logger)}
}

// periodFor maps the latency hint onto miniaudio buffering.
func periodFor(latency domain.LatencyPreference) (uint32, malgo.PerformanceProfile) {
	switch latency {
	case domain.LatencyBalanced:
		return 20, malgo.LowLatency
	case domain.LatencyPlayback:
		return 60, malgo.Conservative
	default:
		return 10, malgo.LowLatency
	}
}

func (e *MalgoEngine) NewContext(_ context.Context, latency domain.LatencyPreference) (ports.AudioContext, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, func(message string) {
		e.logger.Debug("miniaudio", slog.String("message", message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	period, profile := periodFor(latency)
	return &deviceContext{
		engine:  e,
		ctx:     mctx,
		period:  period,
		profile: profile,
	}, nil
}

type deviceContext struct {
	engine  *MalgoEngine
	ctx     *malgo.AllocatedContext
	period  uint32
	profile malgo.PerformanceProfile

	closeOnce sync.Once
}

func (c *deviceContext) SampleRate() int {
	return c.engine.cfg.SampleRate
}

func (c *deviceContext) OpenMicrophone(_ context.Context, constraints ports.MicrophoneConstraints) (ports.CaptureStream, error) {
	if constraints.EchoCancellation || constraints.AutoGainControl || constraints.NoiseSuppression {
		c.engine.logger.Debug("capture backend applies no echo cancellation, gain control or noise suppression")
	}
	channels := constraints.Channels
	if channels <= 0 {
		channels = 1
	}
	stream, err := c.openDevice(malgo.Capture, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}
	return stream, nil
}

func (c *deviceContext) OpenSystemAudio(ctx context.Context) (ports.CaptureStream, error) {
	switch c.engine.cfg.SystemAudio {
	case SystemAudioLoopback:
		stream, err := c.openDevice(malgo.Loopback, 2)
		if err != nil {
			return nil, fmt.Errorf("failed to open loopback capture: %w", err)
		}
		return stream, nil
	case SystemAudioFFmpeg:
		ffmpeg := c.engine.cfg.FFmpeg
		ffmpeg.SampleRate = c.SampleRate()
		return NewFFmpegCapture(ffmpeg).Open(ctx)
	default:
		return nil, ErrSystemAudioDisabled
	}
}

func (c *deviceContext) openDevice(kind malgo.DeviceType, channels int) (*deviceStream, error) {
	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(channels)
	cfg.SampleRate = uint32(c.SampleRate())
	cfg.PeriodSizeInMilliseconds = c.period
	cfg.PerformanceProfile = c.profile

	stream := &deviceStream{channels: channels}
	device, err := malgo.InitDevice(c.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			stream.deliver(input)
		},
	})
	if err != nil {
		return nil, err
	}
	stream.device = device
	return stream, nil
}

func (c *deviceContext) CreateBuffer(buf pcm.Buffer) (ports.PlayingBuffer, error) {
	if c.engine.speaker == nil {
		return nil, errors.New("no speaker configured")
	}
	return c.engine.speaker.NewBuffer(buf), nil
}

func (c *deviceContext) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ctx.Uninit()
		c.ctx.Free()
	})
	return err
}

// deviceStream is an initialized miniaudio capture device. mu serializes
// Start, Stop and Close so the device is never started once uninitialized.
type deviceStream struct {
	device   *malgo.Device
	channels int
	handler  atomic.Pointer[func([]float32)]

	mu     sync.Mutex
	closed bool
}

func (s *deviceStream) deliver(input []byte) {
	handler := s.handler.Load()
	if handler == nil {
		return
	}
	(*handler)(downmix(float32LE(input), s.channels))
}

func (s *deviceStream) Start(onSamples func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.handler.Store(&onSamples)
	return s.device.Start()
}

func (s *deviceStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler.Store(nil)
	if s.closed || !s.device.IsStarted() {
		return nil
	}
	return s.device.Stop()
}

func (s *deviceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.handler.Store(nil)
	s.device.Uninit()
	return nil
}
