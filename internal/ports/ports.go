package ports

import (
	"context"

	"earshot/internal/domain"
	"earshot/internal/pcm"
)

// MicrophoneConstraints describes the primary capture request.
type MicrophoneConstraints struct {
	Channels         int
	EchoCancellation bool
	AutoGainControl  bool
	NoiseSuppression bool
}

// DefaultMicrophone is the only microphone request the session makes.
var DefaultMicrophone = MicrophoneConstraints{
	Channels:         1,
	EchoCancellation: true,
	AutoGainControl:  true,
	NoiseSuppression: true,
}

// AudioEngine creates per-connection audio contexts.
type AudioEngine interface {
	NewContext(ctx context.Context, latency domain.LatencyPreference) (AudioContext, error)
}

// AudioContext owns the hardware for one connection attempt.
type AudioContext interface {
	// SampleRate is the rate every capture stream delivers samples at.
	SampleRate() int
	OpenMicrophone(ctx context.Context, constraints MicrophoneConstraints) (CaptureStream, error)
	OpenSystemAudio(ctx context.Context) (CaptureStream, error)
	CreateBuffer(buf pcm.Buffer) (PlayingBuffer, error)
	Close() error
}

// CaptureStream is an acquired capture source. Acquisition happens when the
// stream is opened; samples only flow between Start and Stop.
type CaptureStream interface {
	Start(onSamples func(samples []float32)) error
	Stop() error
	Close() error
}

// PlayingBuffer is a playable reply-audio buffer. onEnded fires once the
// buffer has been fully played; it does not fire after Stop.
type PlayingBuffer interface {
	Start(onEnded func()) error
	Stop()
}

// ModelConfig describes the remote live session.
type ModelConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
	ResponseAudio     bool
}

// LiveEventKind discriminates LiveEvent.
type LiveEventKind int

const (
	LiveEventOpened LiveEventKind = iota + 1
	LiveEventMessage
	LiveEventClosed
	LiveEventError
)

func (k LiveEventKind) String() string {
	switch k {
	case LiveEventOpened:
		return "opened"
	case LiveEventMessage:
		return "message"
	case LiveEventClosed:
		return "closed"
	case LiveEventError:
		return "error"
	default:
		return "unknown"
	}
}

// LiveEvent is one asynchronous notification from a live session.
type LiveEvent struct {
	Kind    LiveEventKind
	Handle  LiveHandle
	Message domain.ServerMessage
	Err     error
}

// OutboundMessage carries either an audio frame or text.
type OutboundMessage struct {
	Media *pcm.Frame
	Text  string
}

// LiveHandle is an open (or opening) remote session.
type LiveHandle interface {
	Send(msg OutboundMessage) error
	Close() error
}

// LiveService opens remote live sessions. Open returns immediately; the
// handshake completes asynchronously and is reported through onEvent.
type LiveService interface {
	Open(ctx context.Context, credential string, cfg ModelConfig, onEvent func(LiveEvent)) (LiveHandle, error)
}

// NoteOrganizer turns transcript text into a structured note.
type NoteOrganizer interface {
	Organize(ctx context.Context, text string, credential string) (*domain.Note, error)
}

// RulesEngine transforms transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(status domain.Status)
	TranscriptUpdated(segments []domain.Segment)
	TranscriptFlushed(buffer map[domain.Sender]string)
	SessionError(code domain.ErrorCode, detail string)
}
