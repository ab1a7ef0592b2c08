package usecase

import (
	"errors"
	"testing"

	"earshot/internal/logging"
	"earshot/internal/pcm"
	"earshot/internal/ports"
)

func TestPlaybackQueueTracksOverlappingBuffers(t *testing.T) {
	t.Parallel()

	out := &fakeAudioContext{rate: 48000}
	q := newPlaybackQueue(nil)
	buf := pcm.Buffer{SampleRate: pcm.ReplySampleRate, Channels: [][]float32{{0.1, 0.2}}}

	for i := 0; i < 3; i++ {
		if err := q.Play(out, buf, nil); err != nil {
			t.Fatalf("play failed: %v", err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected three playing buffers, got %d", q.Len())
	}

	buffers := out.playingBuffers()
	buffers[1].end()
	if q.Len() != 2 {
		t.Fatalf("ended buffer must be removed, got %d", q.Len())
	}

	q.StopAll()
	if q.Len() != 0 {
		t.Fatalf("expected empty set after StopAll")
	}
	if buffers[0].stopCount() != 1 || buffers[2].stopCount() != 1 {
		t.Fatalf("expected remaining buffers stopped")
	}
	if buffers[1].stopCount() != 0 {
		t.Fatalf("finished buffer must not be stopped")
	}
}

func TestPlaybackQueueStopAllDuringCreateDropsBuffer(t *testing.T) {
	t.Parallel()

	q := newPlaybackQueue(nil)
	out := &fakeAudioContext{rate: 48000}
	out.beforeCreate = q.StopAll
	buf := pcm.Buffer{SampleRate: pcm.ReplySampleRate, Channels: [][]float32{{0.1}}}

	if err := q.Play(out, buf, nil); !errors.Is(err, errPlaybackStopped) {
		t.Fatalf("expected errPlaybackStopped, got %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("dropped buffer must not be tracked, got %d", q.Len())
	}
	if buffers := out.playingBuffers(); len(buffers) != 1 || buffers[0].stopCount() != 1 {
		t.Fatalf("expected the created buffer to be stopped")
	}

	out.beforeCreate = nil
	if err := q.Play(out, buf, func() bool { return false }); !errors.Is(err, errPlaybackStopped) {
		t.Fatalf("expected refused admission, got %v", err)
	}
	if n := len(out.playingBuffers()); n != 1 {
		t.Fatalf("refused chunk must not create a buffer, got %d buffers", n)
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	t.Parallel()

	out := &fakeAudioContext{rate: 48000}
	mic := &fakeCapture{}
	system := &fakeCapture{}
	q := newPlaybackQueue(nil)
	r := newActiveResources(logging.Discard())
	r.attachEngine(out)
	r.attachMicrophone(mic)
	r.attachSystem(system)
	for i := 0; i < 2; i++ {
		if err := q.Play(out, pcm.Buffer{SampleRate: pcm.ReplySampleRate, Channels: [][]float32{{0}}}, r.acceptingFrames); err != nil {
			t.Fatalf("play failed: %v", err)
		}
	}

	r.teardown(q.StopAll)
	r.teardown(q.StopAll)

	if q.Len() != 0 {
		t.Fatalf("expected playing set empty, got %d", q.Len())
	}
	for i, b := range out.playingBuffers() {
		if b.stopCount() != 1 {
			t.Fatalf("buffer %d stopped %d times", i, b.stopCount())
		}
	}
	for name, c := range map[string]*fakeCapture{"mic": mic, "system": system} {
		if _, stopped, closed := c.counts(); stopped != 1 || closed != 1 {
			t.Fatalf("%s stopped/closed %d/%d times", name, stopped, closed)
		}
	}
	if out.closeCount() != 1 {
		t.Fatalf("expected context closed once, got %d", out.closeCount())
	}
	if r.acceptingFrames() {
		t.Fatalf("expected resources to stop accepting frames")
	}
	if r.attachMicrophone(&fakeCapture{}) {
		t.Fatalf("torn down resources must refuse new handles")
	}
}

func TestTeardownToleratesPartialAndNilResources(t *testing.T) {
	t.Parallel()

	var missing *activeResources
	missing.teardown(nil)

	r := newActiveResources(logging.Discard())
	r.attachEngine(&fakeAudioContext{})
	r.teardown(nil)
	r.teardown(nil)
}

func TestPlaybackQueueStartFailureLeavesSetEmpty(t *testing.T) {
	t.Parallel()

	q := newPlaybackQueue(nil)
	err := q.Play(failingOutput{fakeAudioContext: &fakeAudioContext{}}, pcm.Buffer{}, nil)
	if err == nil {
		t.Fatalf("expected start error")
	}
	if q.Len() != 0 {
		t.Fatalf("failed buffer must not stay in the set")
	}
}

type failingOutput struct {
	*fakeAudioContext
}

func (f failingOutput) CreateBuffer(pcm.Buffer) (ports.PlayingBuffer, error) {
	return failingBuffer{}, nil
}

type failingBuffer struct{}

func (failingBuffer) Start(func()) error { return errors.New("device lost") }
func (failingBuffer) Stop()              {}
