package usecase

import (
	"fmt"
	"testing"
	"time"

	"earshot/internal/domain"
)

func newTestAggregator() (*transcriptAggregator, *fakeEventSink, *manualTimers) {
	events := &fakeEventSink{}
	timers := &manualTimers{}
	a := newTranscriptAggregator(events, nil, 0)
	a.afterFunc = timers.afterFunc
	n := 0
	a.newID = func() string {
		n++
		return fmt.Sprintf("seg-%d", n)
	}
	a.now = func() time.Time { return time.Unix(1700000000, 0) }
	return a, events, timers
}

func TestAggregatorMergesSameSenderPartials(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAggregator()
	a.Add(domain.SenderUser, "Hello")
	a.Add(domain.SenderUser, " world")

	segments := a.Segments()
	if len(segments) != 1 {
		t.Fatalf("expected one segment, got %d", len(segments))
	}
	if segments[0].Text != "Hello world" || !segments[0].Partial {
		t.Fatalf("unexpected segment: %+v", segments[0])
	}

	a.Add(domain.SenderModel, "Hi")
	segments = a.Segments()
	if len(segments) != 2 || segments[1].Sender != domain.SenderModel || segments[1].ID != "seg-2" {
		t.Fatalf("expected model fragment to start a new segment: %+v", segments)
	}
	if segments[0].Text != "Hello world" {
		t.Fatalf("earlier segment must not change: %+v", segments[0])
	}
}

func TestAggregatorTurnCompleteFinalizesWithoutMerging(t *testing.T) {
	t.Parallel()

	a, events, _ := newTestAggregator()
	a.Add(domain.SenderUser, "one")
	a.Add(domain.SenderModel, "two")
	a.TurnComplete()

	segments := a.Segments()
	if len(segments) != 2 {
		t.Fatalf("turn complete must not merge or remove segments: %+v", segments)
	}
	for _, s := range segments {
		if s.Partial {
			t.Fatalf("expected finalized segment: %+v", s)
		}
	}
	if segments[0].Text != "one" || segments[1].Text != "two" {
		t.Fatalf("turn complete must not alter text: %+v", segments)
	}

	a.Add(domain.SenderModel, "three")
	if got := len(a.Segments()); got != 3 {
		t.Fatalf("fragment after finalize must start a new segment, got %d", got)
	}
	if len(events.updates) != 4 {
		t.Fatalf("expected an update per change, got %d", len(events.updates))
	}
}

func TestAggregatorDebouncesFlushes(t *testing.T) {
	t.Parallel()

	a, events, timers := newTestAggregator()
	a.Add(domain.SenderUser, "Hel")
	a.Add(domain.SenderUser, "lo")
	a.Add(domain.SenderModel, "Hey")

	if timers.count() != 1 {
		t.Fatalf("expected a single pending timer, got %d", timers.count())
	}
	if got := timers.get(0).delay; got != DefaultDebounceInterval {
		t.Fatalf("unexpected debounce interval %s", got)
	}
	if len(a.Buffer()) != 0 {
		t.Fatalf("buffer must not change before the flush")
	}

	timers.fire(0)
	buffer := a.Buffer()
	if buffer[domain.SenderUser] != "Hello" || buffer[domain.SenderModel] != "Hey" {
		t.Fatalf("unexpected buffer: %+v", buffer)
	}
	if flushes := events.snapshotFlushes(); len(flushes) != 1 {
		t.Fatalf("expected one coalesced flush, got %d", len(flushes))
	}

	a.Add(domain.SenderUser, " there")
	if timers.count() != 2 {
		t.Fatalf("expected a new timer after the flush")
	}
	timers.fire(1)
	if got := a.Buffer()[domain.SenderUser]; got != "Hello there" {
		t.Fatalf("buffer must accumulate across flushes, got %q", got)
	}
}

func TestAggregatorConsumeClearsOnlySender(t *testing.T) {
	t.Parallel()

	a, _, timers := newTestAggregator()
	a.Add(domain.SenderUser, "question")
	a.Add(domain.SenderModel, "answer")
	timers.fire(0)

	if got := a.Consume(domain.SenderUser); got != "question" {
		t.Fatalf("unexpected consumed text %q", got)
	}
	buffer := a.Buffer()
	if _, ok := buffer[domain.SenderUser]; ok {
		t.Fatalf("expected user buffer cleared")
	}
	if buffer[domain.SenderModel] != "answer" {
		t.Fatalf("model buffer must be untouched: %+v", buffer)
	}
	if len(a.Segments()) != 2 {
		t.Fatalf("consume must not touch segments")
	}
}

func TestAggregatorIgnoresEmptyFragments(t *testing.T) {
	t.Parallel()

	a, events, timers := newTestAggregator()
	a.Add(domain.SenderUser, "")

	if len(a.Segments()) != 0 || timers.count() != 0 || len(events.updates) != 0 {
		t.Fatalf("empty fragment must be a no-op")
	}
}

func TestAggregatorResetStopsPendingFlush(t *testing.T) {
	t.Parallel()

	a, events, timers := newTestAggregator()
	a.Add(domain.SenderUser, "scratch")
	a.Reset()
	timers.fire(0)

	if len(a.Segments()) != 0 || len(a.Buffer()) != 0 {
		t.Fatalf("expected empty transcript after reset")
	}
	if len(events.snapshotFlushes()) != 0 {
		t.Fatalf("reset must cancel the pending flush")
	}
}

func TestAggregatorCallbackRacingResetIsIgnored(t *testing.T) {
	t.Parallel()

	a, events, timers := newTestAggregator()
	a.Add(domain.SenderUser, "scratch")
	stale := timers.get(0).fn
	a.Reset()
	a.Add(domain.SenderUser, "fresh")

	// The first timer had already fired and was waiting on the lock.
	stale()
	if n := len(events.snapshotFlushes()); n != 0 {
		t.Fatalf("stale callback must not flush, got %d flushes", n)
	}

	a.Add(domain.SenderUser, " text")
	if n := timers.count(); n != 2 {
		t.Fatalf("expected the armed timer to be reused, got %d timers", n)
	}

	timers.fire(1)
	flushes := events.snapshotFlushes()
	if len(flushes) != 1 || flushes[0][domain.SenderUser] != "fresh text" {
		t.Fatalf("unexpected flushes: %+v", flushes)
	}
}
