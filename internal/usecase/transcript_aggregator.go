package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"earshot/internal/domain"
	"earshot/internal/metrics"
	"earshot/internal/ports"
)

// DefaultDebounceInterval bounds how often pending text reaches the
// visible transcript buffer.
const DefaultDebounceInterval = 200 * time.Millisecond

// transcriptAggregator merges transcription fragments into segments and
// debounces them into a per-sender visible buffer. The visible buffer is
// only ever cleared by Consume.
type transcriptAggregator struct {
	events    ports.EventSink
	metrics   *metrics.Metrics
	afterFunc afterFunc
	interval  time.Duration
	now       func() time.Time
	newID     func() string

	mu       sync.Mutex
	segments []domain.Segment
	pending  map[domain.Sender]string
	buffer   map[domain.Sender]string
	timer    stopper
	timerGen uint64
}

func newTranscriptAggregator(events ports.EventSink, m *metrics.Metrics, interval time.Duration) *transcriptAggregator {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	return &transcriptAggregator{
		events:    events,
		metrics:   m,
		afterFunc: realAfterFunc,
		interval:  interval,
		now:       time.Now,
		newID:     uuid.NewString,
		pending:   make(map[domain.Sender]string),
		buffer:    make(map[domain.Sender]string),
	}
}

// Add merges one fragment into the segment list and queues it for the
// next flush.
func (a *transcriptAggregator) Add(sender domain.Sender, text string) {
	if text == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	last := len(a.segments) - 1
	if last >= 0 && a.segments[last].Sender == sender && a.segments[last].Partial {
		a.segments[last].Text += text
	} else {
		a.segments = append(a.segments, domain.Segment{
			ID:        a.newID(),
			Sender:    sender,
			Text:      text,
			CreatedAt: a.now(),
			Partial:   true,
		})
	}

	a.pending[sender] += text
	if a.timer == nil {
		a.timerGen++
		gen := a.timerGen
		a.timer = a.afterFunc(a.interval, func() { a.flush(gen) })
	}

	a.events.TranscriptUpdated(a.segmentsLocked())
}

// flush moves pending text into the visible buffer. Callbacks of timers
// cancelled by Reset, or of a timer that already flushed, do nothing.
func (a *transcriptAggregator) flush(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.timerGen || a.timer == nil {
		return
	}
	a.timer = nil
	if len(a.pending) == 0 {
		return
	}
	for sender, text := range a.pending {
		a.buffer[sender] += text
		delete(a.pending, sender)
	}
	a.metrics.TranscriptFlushed()
	a.events.TranscriptFlushed(a.bufferLocked())
}

// TurnComplete finalizes every segment.
func (a *transcriptAggregator) TurnComplete() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.segments) == 0 {
		return
	}
	for i := range a.segments {
		a.segments[i].Partial = false
	}
	a.events.TranscriptUpdated(a.segmentsLocked())
}

// Consume clears and returns the visible buffer of sender.
func (a *transcriptAggregator) Consume(sender domain.Sender) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := a.buffer[sender]
	delete(a.buffer, sender)
	return text
}

func (a *transcriptAggregator) Buffer() map[domain.Sender]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bufferLocked()
}

func (a *transcriptAggregator) Segments() []domain.Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.segmentsLocked()
}

// Reset drops every segment and buffered fragment.
func (a *transcriptAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.timerGen++
	a.segments = nil
	a.pending = make(map[domain.Sender]string)
	a.buffer = make(map[domain.Sender]string)
	a.events.TranscriptUpdated(nil)
}

func (a *transcriptAggregator) segmentsLocked() []domain.Segment {
	out := make([]domain.Segment, len(a.segments))
	copy(out, a.segments)
	return out
}

func (a *transcriptAggregator) bufferLocked() map[domain.Sender]string {
	out := make(map[domain.Sender]string, len(a.buffer))
	for sender, text := range a.buffer {
		out[sender] = text
	}
	return out
}
