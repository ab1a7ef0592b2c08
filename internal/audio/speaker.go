package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"earshot/internal/pcm"
)

// Speaker plays reply audio through a single oto player that pulls from a
// queue of buffers. oto allows one context per process, so one Speaker
// serves every connection.
type Speaker struct {
	sampleRate int
	queue      *playQueue

	once    sync.Once
	initErr error
	ctx     *oto.Context
	player  *oto.Player
}

func NewSpeaker(sampleRate int) *Speaker {
	if sampleRate <= 0 {
		sampleRate = pcm.ReplySampleRate
	}
	return &Speaker{sampleRate: sampleRate, queue: newPlayQueue()}
}

func (s *Speaker) start() error {
	s.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   s.sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if err != nil {
			s.initErr = fmt.Errorf("failed to init speaker: %w", err)
			return
		}
		<-ready
		s.ctx = ctx
		s.player = ctx.NewPlayer(s.queue)
		s.player.Play()
	})
	return s.initErr
}

// NewBuffer prepares buf for playback at the speaker's rate.
func (s *Speaker) NewBuffer(buf pcm.Buffer) *SpeakerBuffer {
	mono := mixdown(buf)
	if buf.SampleRate > 0 && buf.SampleRate != s.sampleRate {
		mono = pcm.ResampleTo(mono, buf.SampleRate, s.sampleRate)
	}
	data := pcm.Buffer{SampleRate: s.sampleRate, Channels: [][]float32{mono}}.Int16LE()
	return &SpeakerBuffer{speaker: s, entry: &queueEntry{data: data}}
}

// Close pauses the player. Queued buffers are dropped without completing.
func (s *Speaker) Close() {
	s.queue.clear()
	if s.player != nil {
		s.player.Pause()
	}
}

func mixdown(buf pcm.Buffer) []float32 {
	switch len(buf.Channels) {
	case 0:
		return nil
	case 1:
		return buf.Channels[0]
	}
	out := make([]float32, buf.Len())
	for _, ch := range buf.Channels {
		for i := range out {
			out[i] += ch[i] / float32(len(buf.Channels))
		}
	}
	return out
}

// SpeakerBuffer implements ports.PlayingBuffer.
type SpeakerBuffer struct {
	speaker *Speaker
	entry   *queueEntry
}

func (b *SpeakerBuffer) Start(onEnded func()) error {
	if err := b.speaker.start(); err != nil {
		return err
	}
	b.entry.onEnded = onEnded
	b.speaker.queue.push(b.entry)
	return nil
}

func (b *SpeakerBuffer) Stop() {
	b.speaker.queue.remove(b.entry)
}

type queueEntry struct {
	data    []byte
	offset  int
	onEnded func()
}

// playQueue is the io.Reader behind the player. Entries play back to back;
// when the queue is empty it yields silence so the player keeps running.
type playQueue struct {
	mu      sync.Mutex
	entries []*queueEntry
}

func newPlayQueue() *playQueue {
	return &playQueue{}
}

func (q *playQueue) push(e *queueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
}

// remove drops e without firing its completion.
func (q *playQueue) remove(e *queueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, entry := range q.entries {
		if entry == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

func (q *playQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}

func (q *playQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *playQueue) Read(p []byte) (int, error) {
	var finished []func()

	q.mu.Lock()
	n := 0
	for n < len(p) && len(q.entries) > 0 {
		head := q.entries[0]
		copied := copy(p[n:], head.data[head.offset:])
		head.offset += copied
		n += copied
		if head.offset >= len(head.data) {
			q.entries = q.entries[1:]
			if head.onEnded != nil {
				finished = append(finished, head.onEnded)
			}
		}
	}
	q.mu.Unlock()

	clear(p[n:])
	for _, done := range finished {
		done()
	}
	return len(p), nil
}
