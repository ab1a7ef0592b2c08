package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"earshot/internal/domain"
	"earshot/internal/logging"
	"earshot/internal/ports"
)

const (
	DefaultLiveURL   = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultLiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice     = "Zephyr"

	defaultHandshakeTimeout = 15 * time.Second
	sendQueueSize           = 64
)

var (
	ErrSendQueueFull = errors.New("live send queue is full")
	ErrSessionClosed = errors.New("live session closed")
)

// LiveConfig controls the Live API websocket client.
type LiveConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	Dialer           *websocket.Dialer
	Logger           *slog.Logger
}

// LiveService implements ports.LiveService over the Gemini Live API.
type LiveService struct {
	cfg    LiveConfig
	logger *slog.Logger
}

func NewLiveService(cfg LiveConfig) *LiveService {
	if cfg.URL == "" {
		cfg.URL = DefaultLiveURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &LiveService{cfg: cfg, logger: logging.OrDiscard(cfg.Logger)}
}

// Open dials in the background. The returned handle accepts Close right
// away; onEvent receives Opened once the server acknowledged setup, and
// exactly one Closed at the end, preceded by Error on abnormal termination.
func (s *LiveService) Open(ctx context.Context, credential string, cfg ports.ModelConfig, onEvent func(ports.LiveEvent)) (ports.LiveHandle, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}

	wsURL, err := buildLiveURL(s.cfg.URL, credential)
	if err != nil {
		return nil, err
	}
	setup, err := json.Marshal(buildSetup(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to encode live setup: %w", err)
	}

	session := &liveSession{
		onEvent:  onEvent,
		logger:   s.logger,
		outbound: make(chan []byte, sendQueueSize),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	go session.run(ctx, s.cfg.Dialer, wsURL, setup, s.cfg.HandshakeTimeout)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

type liveSession struct {
	onEvent func(ports.LiveEvent)
	logger  *slog.Logger

	outbound chan []byte
	closing  chan struct{}
	done     chan struct{}

	connMu sync.Mutex
	conn   *websocket.Conn

	errMu sync.Mutex
	err   error

	ended     atomic.Bool
	closeOnce sync.Once
}

func (s *liveSession) Send(msg ports.OutboundMessage) error {
	if s.ended.Load() {
		return ErrSessionClosed
	}
	select {
	case <-s.closing:
		return ErrSessionClosed
	default:
	}

	payload, err := json.Marshal(newRealtimeInput(msg))
	if err != nil {
		return fmt.Errorf("failed to encode live message: %w", err)
	}

	select {
	case s.outbound <- payload:
		return nil
	case <-s.closing:
		return ErrSessionClosed
	default:
		return ErrSendQueueFull
	}
}

// Close asks the session to end. It does not wait, so it is safe to call
// from inside onEvent.
func (s *liveSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			return
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	})
	return nil
}

// Done is closed once the session has fully ended.
func (s *liveSession) Done() <-chan struct{} {
	return s.done
}

func (s *liveSession) run(ctx context.Context, dialer *websocket.Dialer, wsURL string, setup []byte, timeout time.Duration) {
	defer close(s.done)
	defer s.finish()

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		s.setErr(fmt.Errorf("failed to connect to live service: %w", err))
		return
	}
	if !s.attach(conn) {
		_ = conn.Close()
		return
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, setup); err != nil {
		s.setErr(fmt.Errorf("failed to send live setup: %w", err))
		return
	}
	if err := s.awaitSetup(conn, timeout); err != nil {
		s.setErr(err)
		return
	}
	s.emit(ports.LiveEvent{Kind: ports.LiveEventOpened, Handle: s})

	readDone := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(conn, readDone)
	}()
	s.readLoop(conn)
	close(readDone)
	_ = conn.Close()
	<-writerDone
}

func (s *liveSession) attach(conn *websocket.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	select {
	case <-s.closing:
		return false
	default:
	}
	s.conn = conn
	return true
}

func (s *liveSession) awaitSetup(conn *websocket.Conn, timeout time.Duration) error {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("live setup failed: %w", err)
		}
		var msg serverMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

func (s *liveSession) writeLoop(conn *websocket.Conn, readDone <-chan struct{}) {
	for {
		select {
		case <-s.closing:
			return
		case <-readDone:
			return
		case payload := <-s.outbound:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.setErr(fmt.Errorf("failed to send live message: %w", err))
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *liveSession) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read live event: %w", err))
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Debug("ignoring undecodable live event", slog.String("error", err.Error()))
			continue
		}
		if event, ok := msg.toDomain(); ok {
			s.emit(ports.LiveEvent{Kind: ports.LiveEventMessage, Handle: s, Message: event})
		}
	}
}

// finish reports how the session ended.
func (s *liveSession) finish() {
	s.ended.Store(true)
	if err := s.waitErr(); err != nil {
		s.emit(ports.LiveEvent{Kind: ports.LiveEventError, Handle: s, Err: err})
	}
	s.emit(ports.LiveEvent{Kind: ports.LiveEventClosed, Handle: s})
}

func (s *liveSession) emit(event ports.LiveEvent) {
	if s.onEvent != nil {
		s.onEvent(event)
	}
}

func (s *liveSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// setErr records the first abnormal error. Normal closes and errors caused
// by a local Close are not errors.
func (s *liveSession) setErr(err error) {
	if err == nil {
		return
	}
	select {
	case <-s.closing:
		return
	default:
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func buildLiveURL(base, credential string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultLiveURL
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	liveURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid live API URL: %w", err)
	}
	if liveURL.Scheme != "ws" && liveURL.Scheme != "wss" {
		return "", fmt.Errorf("invalid live API URL scheme %q", liveURL.Scheme)
	}
	query := liveURL.Query()
	query.Set("key", credential)
	liveURL.RawQuery = query.Encode()
	return liveURL.String(), nil
}
