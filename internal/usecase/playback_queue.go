package usecase

import (
	"errors"
	"sync"

	"earshot/internal/metrics"
	"earshot/internal/pcm"
	"earshot/internal/ports"
)

// playbackQueue tracks reply-audio buffers that are currently playing.
// Chunks of one reply may overlap; each removes itself once it ends.
type playbackQueue struct {
	metrics *metrics.Metrics

	mu      sync.Mutex
	nextID  uint64
	gen     uint64
	playing map[uint64]ports.PlayingBuffer
}

// errPlaybackStopped reports a buffer dropped because playback was stopped
// while it was being prepared.
var errPlaybackStopped = errors.New("playback stopped")

func newPlaybackQueue(m *metrics.Metrics) *playbackQueue {
	return &playbackQueue{metrics: m, playing: make(map[uint64]ports.PlayingBuffer)}
}

// Play creates a buffer on out, registers it and starts it. admit is
// consulted before the buffer is created; a StopAll that lands while the
// buffer is being created or started stops it again.
func (q *playbackQueue) Play(out ports.AudioContext, buf pcm.Buffer, admit func() bool) error {
	q.mu.Lock()
	gen := q.gen
	q.mu.Unlock()
	if admit != nil && !admit() {
		return errPlaybackStopped
	}

	playing, err := out.CreateBuffer(buf)
	if err != nil {
		return err
	}

	q.mu.Lock()
	if q.gen != gen {
		q.mu.Unlock()
		playing.Stop()
		return errPlaybackStopped
	}
	q.nextID++
	id := q.nextID
	q.playing[id] = playing
	n := len(q.playing)
	q.mu.Unlock()
	q.metrics.SetPlaying(n)

	if err := playing.Start(func() { q.remove(id) }); err != nil {
		q.remove(id)
		return err
	}

	q.mu.Lock()
	stale := q.gen != gen
	q.mu.Unlock()
	if stale {
		q.remove(id)
		playing.Stop()
		return errPlaybackStopped
	}
	return nil
}

func (q *playbackQueue) remove(id uint64) {
	q.mu.Lock()
	delete(q.playing, id)
	n := len(q.playing)
	q.mu.Unlock()
	q.metrics.SetPlaying(n)
}

// StopAll stops and evicts every playing buffer, even mid-playback.
func (q *playbackQueue) StopAll() {
	q.mu.Lock()
	q.gen++
	playing := make([]ports.PlayingBuffer, 0, len(q.playing))
	for id, buf := range q.playing {
		playing = append(playing, buf)
		delete(q.playing, id)
	}
	q.mu.Unlock()
	q.metrics.SetPlaying(0)

	for _, buf := range playing {
		buf.Stop()
	}
}

// Len reports how many buffers are playing.
func (q *playbackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.playing)
}
