package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFFmpegCaptureDeliversFloatSamples(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nsleep 0.6\nprintf '\\x00\\x00\\x80\\x3f\\x00\\x00\\x00\\xbf'\nsleep 2\n")
	stream, err := NewFFmpegCapture(FFmpegConfig{Command: script}).Open(context.Background())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	got := make(chan []float32, 4)
	if err := stream.Start(func(samples []float32) { got <- samples }); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	var samples []float32
	deadline := time.After(2 * time.Second)
	for len(samples) < 2 {
		select {
		case chunk := <-got:
			samples = append(samples, chunk...)
		case <-deadline:
			t.Fatalf("timed out waiting for samples, got %v", samples)
		}
	}
	if samples[0] != 1 || samples[1] != -0.5 {
		t.Fatalf("unexpected samples: %v", samples)
	}

	if err := stream.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

func TestFFmpegCaptureDropsOutputBeforeStart(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "stale.sh", "#!/usr/bin/env bash\nprintf '\\x00\\x00\\x80\\x3f'\nsleep 0.8\nprintf '\\x00\\x00\\x00\\xbf'\nsleep 2\n")
	stream, err := NewFFmpegCapture(FFmpegConfig{Command: script}).Open(context.Background())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer stream.Close()

	time.Sleep(100 * time.Millisecond)

	got := make(chan []float32, 4)
	if err := stream.Start(func(samples []float32) { got <- samples }); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case chunk := <-got:
		if len(chunk) == 0 || chunk[0] != -0.5 {
			t.Fatalf("expected output written before start to be dropped, got %v", chunk)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for samples")
	}
}

func TestFFmpegCaptureStartAfterClose(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "idle.sh", "#!/usr/bin/env bash\nsleep 2\n")
	stream, err := NewFFmpegCapture(FFmpegConfig{Command: script}).Open(context.Background())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	called := false
	err = stream.Start(func([]float32) { called = true })
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
	if called {
		t.Fatalf("handler must not run after close")
	}
}

func TestFFmpegCaptureEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewFFmpegCapture(FFmpegConfig{Command: script}).Open(ctx)
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !strings.Contains(err.Error(), "exited before capture started") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFFmpegCaptureArgs(t *testing.T) {
	t.Parallel()

	args := strings.Join(NewFFmpegCapture(FFmpegConfig{SampleRate: 44100}).args(), " ")
	for _, want := range []string{"-f pulse", "-i default.monitor", "-ac 1", "-ar 44100", "-f f32le"} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in %q", want, args)
		}
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-c", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func TestStringsTrimSpaceSafe(t *testing.T) {
	t.Parallel()

	if got := stringsTrimSpaceSafe("  hi\n"); got != "hi" {
		t.Fatalf("unexpected trim result: %q", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
