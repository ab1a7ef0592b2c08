package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"earshot/internal/domain"
	"earshot/internal/dsp"
	"earshot/internal/logging"
	"earshot/internal/metrics"
	"earshot/internal/pcm"
	"earshot/internal/ports"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrSetup             = errors.New("session setup failed")
	ErrConnectAborted    = errors.New("connect superseded or cancelled")
	ErrNotConnected      = errors.New("no connected session")
)

// DefaultReconnectDelay is the fixed wait before an automatic reconnect.
const DefaultReconnectDelay = 1500 * time.Millisecond

const (
	messageMissingCredential = "An API key is required to connect."
	messagePermissionDenied  = "Microphone access was denied."
	messageSetup             = "Could not start the live session."
)

// Config controls the live session.
type Config struct {
	Model            ports.ModelConfig
	SystemAudio      bool
	BlockSize        int
	ReconnectDelay   time.Duration
	DebounceInterval time.Duration
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
}

// SessionController owns the live-session lifecycle: hardware acquisition,
// the remote handshake, the send and receive paths and auto-reconnect.
type SessionController struct {
	engine  ports.AudioEngine
	service ports.LiveService
	events  ports.EventSink
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	afterFunc  afterFunc
	transcript *transcriptAggregator
	playback   *playbackQueue

	// active and live mirror state for the audio callback, which must not
	// wait on mu.
	active atomic.Bool
	live   atomic.Pointer[domain.SessionConfig]

	mu    sync.Mutex
	state sessionState
}

func NewSessionController(
	engine ports.AudioEngine,
	service ports.LiveService,
	events ports.EventSink,
	cfg Config,
) *SessionController {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = dsp.DefaultBlockSize
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	logger := logging.OrDiscard(cfg.Logger)

	c := &SessionController{
		engine:     engine,
		service:    service,
		events:     events,
		cfg:        cfg,
		logger:     logger,
		metrics:    cfg.Metrics,
		afterFunc:  realAfterFunc,
		transcript: newTranscriptAggregator(events, cfg.Metrics, cfg.DebounceInterval),
		playback:   newPlaybackQueue(cfg.Metrics),
		state:      newSessionState(),
	}
	initial := domain.SessionConfig{}.Normalize()
	c.live.Store(&initial)
	c.metrics.SetState(domain.SessionStateDisconnected)
	return c
}

// Connect starts a new session, replacing any current one. Hardware is
// acquired synchronously; the remote handshake completes in the background
// and is reported through the event sink.
func (c *SessionController) Connect(ctx context.Context, credential string, cfg domain.SessionConfig) error {
	return c.connect(ctx, credential, cfg, false)
}

func (c *SessionController) connect(ctx context.Context, credential string, cfg domain.SessionConfig, reconnect bool) error {
	cfg = cfg.Normalize()
	c.live.Store(&cfg)

	c.mu.Lock()
	previousHandle, previous := c.state.detach()
	if credential == "" {
		c.state.fail(messageMissingCredential)
		c.active.Store(false)
		c.publishLocked()
		c.mu.Unlock()

		c.release(previousHandle, previous)
		c.events.SessionError(domain.ErrorCodeMissingCredential, messageMissingCredential)
		c.metrics.ConnectFailed(domain.ErrorCodeMissingCredential)
		return ErrMissingCredential
	}

	attempt := c.state.beginConnect(credential, cfg, reconnect)
	resources := newActiveResources(c.logger)
	c.state.resources = resources
	c.active.Store(true)
	c.publishLocked()
	c.mu.Unlock()

	c.release(previousHandle, previous)
	c.logger.Info("session connecting",
		slog.Uint64("attempt", attempt),
		slog.Bool("reconnect", reconnect),
		slog.String("latency", string(cfg.LatencyPreference)),
	)

	audio, err := c.engine.NewContext(ctx, cfg.LatencyPreference)
	if err != nil {
		return c.failConnect(attempt, domain.ErrorCodeSetup, ErrSetup, err)
	}
	if !resources.attachEngine(audio) {
		_ = audio.Close()
		return ErrConnectAborted
	}

	mic, err := audio.OpenMicrophone(ctx, ports.DefaultMicrophone)
	if err != nil {
		return c.failConnect(attempt, domain.ErrorCodePermissionDenied, ErrPermissionDenied, err)
	}
	if !resources.attachMicrophone(mic) {
		_ = mic.Close()
		return ErrConnectAborted
	}

	if c.cfg.SystemAudio {
		system, err := audio.OpenSystemAudio(ctx)
		switch {
		case err != nil:
			c.logger.Warn("system audio unavailable, continuing with microphone only", slog.String("error", err.Error()))
		case !resources.attachSystem(system):
			_ = system.Close()
			return ErrConnectAborted
		}
	}

	handle, err := c.service.Open(ctx, credential, c.cfg.Model, func(event ports.LiveEvent) {
		c.handleEvent(attempt, event)
	})
	if err != nil {
		return c.failConnect(attempt, domain.ErrorCodeSetup, ErrSetup, err)
	}

	c.mu.Lock()
	if !c.state.current(attempt) || !c.state.active {
		c.mu.Unlock()
		if err := handle.Close(); err != nil {
			c.logger.Debug("close of abandoned session failed", slog.String("error", err.Error()))
		}
		return ErrConnectAborted
	}
	c.state.handle = handle
	c.mu.Unlock()
	return nil
}

// failConnect moves a connect attempt to the error state and releases what
// it had acquired. Attempts that were superseded or disconnected only
// release.
func (c *SessionController) failConnect(attempt uint64, code domain.ErrorCode, sentinel, cause error) error {
	c.mu.Lock()
	if !c.state.current(attempt) || !c.state.active {
		c.mu.Unlock()
		return ErrConnectAborted
	}
	handle, resources := c.state.detach()
	message := messageSetup
	if code == domain.ErrorCodePermissionDenied {
		message = messagePermissionDenied
	}
	c.state.fail(message)
	c.active.Store(false)
	c.publishLocked()
	c.mu.Unlock()

	c.release(handle, resources)
	c.logger.Error("session connect failed",
		slog.Uint64("attempt", attempt),
		slog.String("code", string(code)),
		slog.String("error", cause.Error()),
	)
	c.events.SessionError(code, cause.Error())
	c.metrics.ConnectFailed(code)
	return fmt.Errorf("%w: %v", sentinel, cause)
}

// Disconnect ends the session. It never triggers an automatic reconnect.
func (c *SessionController) Disconnect() {
	c.mu.Lock()
	handle, resources := c.state.detach()
	quiet := c.state.status == domain.SessionStateDisconnected && handle == nil && resources == nil
	c.state.disconnect()
	c.active.Store(false)
	if !quiet {
		c.publishLocked()
	}
	c.mu.Unlock()

	c.release(handle, resources)
	if !quiet {
		c.logger.Info("session disconnected")
	}
}

// release closes a detached handle best effort and tears down resources.
func (c *SessionController) release(handle ports.LiveHandle, resources *activeResources) {
	if handle != nil {
		if err := handle.Close(); err != nil {
			c.logger.Warn("live session close failed", slog.String("error", err.Error()))
		}
	}
	resources.teardown(c.playback.StopAll)
}

// UpdateConfig replaces the session config. The noise gate threshold and
// talkback take effect on the next block; latency applies on next connect.
func (c *SessionController) UpdateConfig(cfg domain.SessionConfig) domain.SessionConfig {
	cfg = cfg.Normalize()
	c.live.Store(&cfg)

	c.mu.Lock()
	c.state.config = cfg
	c.mu.Unlock()

	if !cfg.Talkback {
		c.playback.StopAll()
	}
	return cfg
}

// Config returns the session config currently in effect.
func (c *SessionController) Config() domain.SessionConfig {
	return *c.live.Load()
}

func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.snapshot()
}

// SendText sends a text turn over the connected session.
func (c *SessionController) SendText(text string) error {
	c.mu.Lock()
	handle := c.state.handle
	connected := c.state.active && c.state.status == domain.SessionStateConnected
	c.mu.Unlock()

	if handle == nil || !connected {
		return ErrNotConnected
	}
	return handle.Send(ports.OutboundMessage{Text: text})
}

func (c *SessionController) Segments() []domain.Segment {
	return c.transcript.Segments()
}

func (c *SessionController) TranscriptBuffer() map[domain.Sender]string {
	return c.transcript.Buffer()
}

// ConsumeTranscript clears and returns the visible buffer of sender.
func (c *SessionController) ConsumeTranscript(sender domain.Sender) string {
	return c.transcript.Consume(sender)
}

// ClearTranscript drops all segments and buffered text.
func (c *SessionController) ClearTranscript() {
	c.transcript.Reset()
}

// Spectrum returns byte frequency data of the processed microphone signal,
// or nil while no pipeline is running.
func (c *SessionController) Spectrum() []uint8 {
	c.mu.Lock()
	resources := c.state.resources
	c.mu.Unlock()

	analyser := resources.analyser()
	if analyser == nil {
		return nil
	}
	return analyser.ByteFrequencyData()
}

// Playing reports how many reply buffers are playing.
func (c *SessionController) Playing() int {
	return c.playback.Len()
}

func (c *SessionController) handleEvent(attempt uint64, event ports.LiveEvent) {
	switch event.Kind {
	case ports.LiveEventOpened:
		c.handleOpened(attempt, event.Handle)
	case ports.LiveEventMessage:
		c.handleMessage(attempt, event.Message)
	case ports.LiveEventError:
		c.handleError(attempt, event)
	case ports.LiveEventClosed:
		c.handleClosed(attempt)
	}
}

func (c *SessionController) handleOpened(attempt uint64, handle ports.LiveHandle) {
	c.mu.Lock()
	resources := c.state.resources
	if !c.state.current(attempt) || !c.state.active || resources == nil {
		c.mu.Unlock()
		c.logger.Debug("discarding session opened after cancel", slog.Uint64("attempt", attempt))
		if handle != nil {
			_ = handle.Close()
		}
		return
	}
	c.state.handle = handle
	c.state.opened()
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("session connected", slog.Uint64("attempt", attempt))
	if err := c.startPipeline(resources, handle); err != nil {
		_ = c.failConnect(attempt, domain.ErrorCodeSetup, ErrSetup, err)
	}
}

func (c *SessionController) handleMessage(attempt uint64, msg domain.ServerMessage) {
	c.mu.Lock()
	live := c.state.current(attempt) && c.state.active
	resources := c.state.resources
	c.mu.Unlock()
	if !live {
		return
	}

	if msg.InputTranscription != "" {
		c.transcript.Add(domain.SenderUser, msg.InputTranscription)
	}
	if msg.OutputTranscription != "" {
		c.transcript.Add(domain.SenderModel, msg.OutputTranscription)
	}
	if msg.Interrupted {
		c.playback.StopAll()
	}
	for _, chunk := range msg.Audio {
		c.playReply(resources, chunk)
	}
	if msg.TurnComplete {
		c.transcript.TurnComplete()
	}
	if msg.GoAway {
		c.logger.Info("server requested the session wind down", slog.Uint64("attempt", attempt))
	}
}

func (c *SessionController) playReply(resources *activeResources, chunk string) {
	if !c.live.Load().Talkback {
		return
	}
	buf, err := pcm.DecodeReply(chunk)
	if err != nil {
		c.metrics.DecodeError()
		c.logger.Warn("skipping reply audio chunk", slog.String("error", err.Error()))
		return
	}
	out := resources.audioContext()
	if out == nil {
		return
	}
	err = c.playback.Play(out, buf, resources.acceptingFrames)
	if errors.Is(err, errPlaybackStopped) {
		return
	}
	if err != nil {
		c.logger.Warn("reply playback failed", slog.String("error", err.Error()))
	}
}

func (c *SessionController) handleError(attempt uint64, event ports.LiveEvent) {
	c.mu.Lock()
	if !c.state.current(attempt) {
		c.mu.Unlock()
		return
	}
	if !c.state.active {
		handle, resources := c.state.detach()
		c.mu.Unlock()
		c.release(handle, resources)
		return
	}
	if c.state.reconnectRequested {
		c.mu.Unlock()
		return
	}

	c.state.requestReconnect()
	handle, resources := c.state.detach()
	if handle == nil {
		handle = event.Handle
	}
	credential := c.state.credential
	c.publishLocked()
	c.mu.Unlock()

	c.release(handle, resources)
	c.logger.Warn("live session error, reconnecting",
		slog.Uint64("attempt", attempt),
		slog.Duration("delay", c.cfg.ReconnectDelay),
		slog.Any("error", event.Err),
	)
	c.metrics.ReconnectScheduled()
	c.afterFunc(c.cfg.ReconnectDelay, func() {
		c.reconnect(credential)
	})
}

// reconnect runs from the reconnect timer. It only proceeds while the
// session is still live and waiting for a reconnect, and uses the config in
// effect when it fires.
func (c *SessionController) reconnect(credential string) {
	c.mu.Lock()
	proceed := c.state.active && c.state.reconnectRequested
	cfg := c.state.config
	c.mu.Unlock()
	if !proceed {
		c.logger.Debug("reconnect skipped")
		return
	}

	if err := c.connect(context.Background(), credential, cfg, true); err != nil && !errors.Is(err, ErrConnectAborted) {
		c.logger.Error("reconnect failed", slog.String("error", err.Error()))
	}
}

func (c *SessionController) handleClosed(attempt uint64) {
	c.mu.Lock()
	if !c.state.current(attempt) || c.state.reconnectRequested {
		c.mu.Unlock()
		return
	}
	handle, resources := c.state.detach()
	quiet := resources == nil &&
		(c.state.status == domain.SessionStateDisconnected || c.state.status == domain.SessionStateError)
	if !quiet {
		c.state.closed()
		c.active.Store(false)
		c.publishLocked()
	}
	c.mu.Unlock()

	c.release(handle, resources)
	if !quiet {
		c.logger.Info("live session closed", slog.Uint64("attempt", attempt))
	}
}

// publishLocked reports the current status. Callers hold mu so that
// status events leave in transition order.
func (c *SessionController) publishLocked() {
	status := c.state.snapshot()
	c.metrics.SetState(status.State)
	c.events.SessionStateChanged(status)
}
