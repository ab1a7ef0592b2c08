package domain

import "time"

// SessionState models the live-session lifecycle.
type SessionState string

const (
	SessionStateDisconnected SessionState = "disconnected"
	SessionStateConnecting   SessionState = "connecting"
	SessionStateConnected    SessionState = "connected"
	SessionStateError        SessionState = "error"
)

// ErrorCode identifies errors surfaced to the UI. Only fatal connect-time
// failures carry one.
type ErrorCode string

const (
	ErrorCodeStartup           ErrorCode = "startup"
	ErrorCodeMissingCredential ErrorCode = "missing_credential"
	ErrorCodePermissionDenied  ErrorCode = "permission_denied"
	ErrorCodeSetup             ErrorCode = "setup"
	ErrorCodeNotes             ErrorCode = "notes"
	ErrorCodeRules             ErrorCode = "rules"
	ErrorCodeClipboard         ErrorCode = "clipboard"
)

// LatencyPreference is the audio engine latency hint.
type LatencyPreference string

const (
	LatencyInteractive LatencyPreference = "interactive"
	LatencyBalanced    LatencyPreference = "balanced"
	LatencyPlayback    LatencyPreference = "playback"
)

// Valid reports whether p is one of the known preferences.
func (p LatencyPreference) Valid() bool {
	switch p {
	case LatencyInteractive, LatencyBalanced, LatencyPlayback:
		return true
	default:
		return false
	}
}

const (
	MinNoiseGateThreshold = 0.0
	MaxNoiseGateThreshold = 0.05
)

// SessionConfig is supplied at connect time and may be replaced between
// connects (or while connected) without forcing a reconnect.
type SessionConfig struct {
	LatencyPreference  LatencyPreference `json:"latencyPreference" yaml:"latency_preference"`
	NoiseGateThreshold float64           `json:"noiseGateThreshold" yaml:"noise_gate_threshold"`
	Talkback           bool              `json:"talkback" yaml:"talkback"`
}

// Normalize clamps the threshold into range and defaults the latency hint.
func (c SessionConfig) Normalize() SessionConfig {
	if !c.LatencyPreference.Valid() {
		c.LatencyPreference = LatencyInteractive
	}
	if c.NoiseGateThreshold < MinNoiseGateThreshold {
		c.NoiseGateThreshold = MinNoiseGateThreshold
	}
	if c.NoiseGateThreshold > MaxNoiseGateThreshold {
		c.NoiseGateThreshold = MaxNoiseGateThreshold
	}
	return c
}

// Status summarizes the current runtime status. Reconnecting is only
// meaningful while State is connecting.
type Status struct {
	State        SessionState `json:"state"`
	Reconnecting bool         `json:"reconnecting"`
	Message      string       `json:"message,omitempty"`
}

// Sender tags who produced a piece of transcript text.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderModel Sender = "model"
)

// Segment is one unit of the transcript. Only the last segment of a
// transcript is ever mutated after being appended.
type Segment struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Partial   bool      `json:"partial"`
}

// ServerMessage is one decoded event from the remote live service.
type ServerMessage struct {
	InputTranscription  string   `json:"inputTranscription,omitempty"`
	OutputTranscription string   `json:"outputTranscription,omitempty"`
	TurnComplete        bool     `json:"turnComplete,omitempty"`
	Interrupted         bool     `json:"interrupted,omitempty"`
	GoAway              bool     `json:"goAway,omitempty"`
	Audio               []string `json:"audio,omitempty"`
}

// Note is the structured summary produced by the note organizer.
type Note struct {
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Topics      []string `json:"topics"`
	ActionItems []string `json:"actionItems"`
	Decisions   []string `json:"decisions"`
	Sentiment   string   `json:"sentiment"`
}

// NoteResult is returned once a transcript has been organized into a note.
type NoteResult struct {
	Transcript string `json:"transcript"`
	Note       *Note  `json:"note"`
	Markdown   string `json:"markdown"`
	Copied     bool   `json:"copied"`
}
