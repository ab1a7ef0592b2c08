package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"earshot/internal/ports"
)

// FFmpegConfig selects the ffmpeg input used for system audio, typically a
// PulseAudio monitor source.
type FFmpegConfig struct {
	Command     string
	InputFormat string
	Device      string
	SampleRate  int
}

// FFmpegCapture streams system audio as mono float32 PCM using ffmpeg.
type FFmpegCapture struct {
	cfg FFmpegConfig
}

func NewFFmpegCapture(cfg FFmpegConfig) *FFmpegCapture {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.Device == "" {
		cfg.Device = "default.monitor"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	return &FFmpegCapture{cfg: cfg}
}

func (c *FFmpegCapture) args() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.cfg.InputFormat,
		"-i", c.cfg.Device,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(c.cfg.SampleRate),
		"-f", "f32le",
		"-",
	}
}

// Open starts ffmpeg. Output is read from the start and dropped until a
// handler is set, so audio captured before Start never arrives late.
func (c *FFmpegCapture) Open(ctx context.Context) (ports.CaptureStream, error) {
	cmd := exec.CommandContext(ctx, c.cfg.Command, c.args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, stringsTrimSpaceSafe(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	s := &ffmpegStream{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}
	go s.pump()
	return s, nil
}

type ffmpegStream struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	handler atomic.Pointer[func([]float32)]

	mu       sync.Mutex
	closed   bool
	stopOnce sync.Once
	stopErr  error
}

const ffmpegChunkBytes = 4096

func (s *ffmpegStream) pump() {
	buf := make([]byte, ffmpegChunkBytes)
	pending := 0
	for {
		n, err := s.stdout.Read(buf[pending:])
		pending += n
		if whole := pending - pending%4; whole > 0 {
			if handler := s.handler.Load(); handler != nil {
				(*handler)(float32LE(buf[:whole]))
			}
			pending = copy(buf, buf[whole:pending])
		}
		if err != nil {
			return
		}
	}
}

func (s *ffmpegStream) Start(onSamples func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.handler.Store(&onSamples)
	return nil
}

func (s *ffmpegStream) Stop() error {
	s.handler.Store(nil)
	return nil
}

// Close terminates ffmpeg, interrupting first and killing if it lingers.
func (s *ffmpegStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.handler.Store(nil)
	s.mu.Unlock()

	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
