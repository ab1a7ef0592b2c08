package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"earshot/internal/domain"
	"earshot/internal/pcm"
	"earshot/internal/ports"
)

type manualTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (m *manualTimers) afterFunc(d time.Duration, fn func()) stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{delay: d, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (m *manualTimers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *manualTimers) get(i int) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timers[i]
}

// fire runs timer i unless it was stopped or already fired.
func (m *manualTimers) fire(i int) {
	m.mu.Lock()
	t := m.timers[i]
	run := !t.stopped && !t.fired
	t.fired = true
	m.mu.Unlock()
	if run {
		t.fn()
	}
}

var errFakeClosed = errors.New("capture closed")

type fakeCapture struct {
	// beforeStart runs at the top of Start, outside the fake's lock.
	beforeStart func()

	mu         sync.Mutex
	onSamples  func([]float32)
	startErr   error
	started    int
	stopped    int
	closed     int
	lateStarts int
}

func (f *fakeCapture) Start(onSamples func([]float32)) error {
	if f.beforeStart != nil {
		f.beforeStart()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed > 0 {
		f.lateStarts++
		return errFakeClosed
	}
	if f.startErr != nil {
		return f.startErr
	}
	f.started++
	f.onSamples = onSamples
	return nil
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	f.onSamples = nil
	return nil
}

func (f *fakeCapture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeCapture) push(samples []float32) {
	f.mu.Lock()
	cb := f.onSamples
	f.mu.Unlock()
	if cb != nil {
		cb(samples)
	}
}

func (f *fakeCapture) counts() (started, stopped, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped, f.closed
}

// startsAfterClose counts Start calls made once the source was closed.
func (f *fakeCapture) startsAfterClose() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lateStarts
}

type fakePlayingBuffer struct {
	mu      sync.Mutex
	buf     pcm.Buffer
	onEnded func()
	started int
	stopped int
}

func (b *fakePlayingBuffer) Start(onEnded func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started++
	b.onEnded = onEnded
	return nil
}

func (b *fakePlayingBuffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped++
	b.onEnded = nil
}

func (b *fakePlayingBuffer) end() {
	b.mu.Lock()
	cb := b.onEnded
	b.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (b *fakePlayingBuffer) stopCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

type fakeAudioContext struct {
	rate      int
	micErr    error
	systemErr error

	// beforeSystemStart and beforeCreate run outside the fake's lock so
	// they may call back into the controller.
	beforeSystemStart func()
	beforeCreate      func()

	mu      sync.Mutex
	mic     *fakeCapture
	system  *fakeCapture
	buffers []*fakePlayingBuffer
	closed  int
}

func (c *fakeAudioContext) SampleRate() int { return c.rate }

func (c *fakeAudioContext) OpenMicrophone(context.Context, ports.MicrophoneConstraints) (ports.CaptureStream, error) {
	if c.micErr != nil {
		return nil, c.micErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mic = &fakeCapture{}
	return c.mic, nil
}

func (c *fakeAudioContext) OpenSystemAudio(context.Context) (ports.CaptureStream, error) {
	if c.systemErr != nil {
		return nil, c.systemErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.system = &fakeCapture{beforeStart: c.beforeSystemStart}
	return c.system, nil
}

func (c *fakeAudioContext) CreateBuffer(buf pcm.Buffer) (ports.PlayingBuffer, error) {
	if c.beforeCreate != nil {
		c.beforeCreate()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b := &fakePlayingBuffer{buf: buf}
	c.buffers = append(c.buffers, b)
	return b, nil
}

func (c *fakeAudioContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeAudioContext) microphone() *fakeCapture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mic
}

func (c *fakeAudioContext) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeAudioContext) playingBuffers() []*fakePlayingBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakePlayingBuffer(nil), c.buffers...)
}

type fakeEngine struct {
	rate      int
	err       error
	micErr    error
	systemErr error

	beforeSystemStart func()
	beforeCreate      func()

	mu        sync.Mutex
	contexts  []*fakeAudioContext
	latencies []domain.LatencyPreference
}

func (e *fakeEngine) NewContext(_ context.Context, latency domain.LatencyPreference) (ports.AudioContext, error) {
	e.mu.Lock()
	e.latencies = append(e.latencies, latency)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	rate := e.rate
	if rate == 0 {
		rate = 48000
	}
	c := &fakeAudioContext{
		rate:              rate,
		micErr:            e.micErr,
		systemErr:         e.systemErr,
		beforeSystemStart: e.beforeSystemStart,
		beforeCreate:      e.beforeCreate,
	}
	e.mu.Lock()
	e.contexts = append(e.contexts, c)
	e.mu.Unlock()
	return c, nil
}

func (e *fakeEngine) latency(i int) domain.LatencyPreference {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latencies[i]
}

func (e *fakeEngine) context(i int) *fakeAudioContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contexts[i]
}

func (e *fakeEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.contexts)
}

type fakeHandle struct {
	mu      sync.Mutex
	sent    []ports.OutboundMessage
	sendErr error
	closed  int
}

func (h *fakeHandle) Send(msg ports.OutboundMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	h.sent = append(h.sent, msg)
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
	return errors.New("already closing")
}

func (h *fakeHandle) sentMessages() []ports.OutboundMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ports.OutboundMessage(nil), h.sent...)
}

func (h *fakeHandle) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeOpen struct {
	credential string
	cfg        ports.ModelConfig
	onEvent    func(ports.LiveEvent)
	handle     *fakeHandle
}

type fakeService struct {
	openErr error

	mu    sync.Mutex
	opens []*fakeOpen
}

func (s *fakeService) Open(_ context.Context, credential string, cfg ports.ModelConfig, onEvent func(ports.LiveEvent)) (ports.LiveHandle, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	open := &fakeOpen{credential: credential, cfg: cfg, onEvent: onEvent, handle: &fakeHandle{}}
	s.mu.Lock()
	s.opens = append(s.opens, open)
	s.mu.Unlock()
	return open.handle, nil
}

func (s *fakeService) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opens)
}

func (s *fakeService) open(i int) *fakeOpen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[i]
}

func (o *fakeOpen) emit(kind ports.LiveEventKind) {
	o.onEvent(ports.LiveEvent{Kind: kind, Handle: o.handle})
}

func (o *fakeOpen) fail(err error) {
	o.onEvent(ports.LiveEvent{Kind: ports.LiveEventError, Handle: o.handle, Err: err})
}

func (o *fakeOpen) message(msg domain.ServerMessage) {
	o.onEvent(ports.LiveEvent{Kind: ports.LiveEventMessage, Handle: o.handle, Message: msg})
}

type sessionErrorEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu       sync.Mutex
	statuses []domain.Status
	errors   []sessionErrorEvent
	updates  [][]domain.Segment
	flushes  []map[domain.Sender]string
}

func (f *fakeEventSink) SessionStateChanged(status domain.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
}

func (f *fakeEventSink) TranscriptUpdated(segments []domain.Segment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, segments)
}

func (f *fakeEventSink) TranscriptFlushed(buffer map[domain.Sender]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes = append(f.flushes, buffer)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, sessionErrorEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStatuses() []domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Status(nil), f.statuses...)
}

func (f *fakeEventSink) snapshotErrors() []sessionErrorEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sessionErrorEvent(nil), f.errors...)
}

func (f *fakeEventSink) snapshotFlushes() []map[domain.Sender]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[domain.Sender]string(nil), f.flushes...)
}

type fakeRules struct {
	transform string
	err       error
}

func (f *fakeRules) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.transform != "" {
		return f.transform, nil
	}
	return text, nil
}

type fakeClipboard struct {
	lastText string
	err      error
}

func (f *fakeClipboard) SetText(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.lastText = text
	return nil
}

type fakeOrganizer struct {
	note       *domain.Note
	err        error
	text       string
	credential string
}

func (f *fakeOrganizer) Organize(_ context.Context, text, credential string) (*domain.Note, error) {
	f.text = text
	f.credential = credential
	if f.err != nil {
		return nil, f.err
	}
	return f.note, nil
}
