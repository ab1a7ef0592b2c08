package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"earshot/internal/audio"
	"earshot/internal/bootstrap"
	"earshot/internal/config"
	"earshot/internal/domain"
	"earshot/internal/usecase"
)

const (
	eventSession    = "earshot:session"
	eventTranscript = "earshot:transcript"
	eventFlush      = "earshot:flush"
	eventError      = "earshot:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	notes      *usecase.NoteTaker
	speaker    *audio.Speaker
	cfg        config.Config
	bootErr    error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsClipboard{})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.notes = services.Notes
	a.speaker = services.Speaker
	a.SessionStateChanged(a.controller.Status())
}

func (a *App) shutdown(_ context.Context) {
	if a.controller != nil {
		a.controller.Disconnect()
	}
	if a.speaker != nil {
		a.speaker.Close()
	}
}

// Connect opens a live session with the given settings.
func (a *App) Connect(cfg domain.SessionConfig) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	err := a.controller.Connect(a.ctx, a.cfg.Gemini.APIKey, cfg)
	if err != nil && !errors.Is(err, usecase.ErrConnectAborted) {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// Disconnect ends the live session.
func (a *App) Disconnect() domain.Status {
	if a.controller == nil {
		return a.GetStatus()
	}
	a.controller.Disconnect()
	return a.controller.Status()
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateDisconnected}
	}
	return a.controller.Status()
}

// GetConfig returns the session settings in effect.
func (a *App) GetConfig() domain.SessionConfig {
	if a.controller == nil {
		return a.cfg.Session.Domain()
	}
	return a.controller.Config()
}

// UpdateConfig applies new settings without reconnecting.
func (a *App) UpdateConfig(cfg domain.SessionConfig) (domain.SessionConfig, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionConfig{}, err
	}
	return a.controller.UpdateConfig(cfg), nil
}

// GetSegments returns the transcript so far.
func (a *App) GetSegments() []domain.Segment {
	if a.controller == nil {
		return nil
	}
	return a.controller.Segments()
}

// GetSpectrum returns the current byte frequency data. Bytes are widened so
// they reach the frontend as numbers rather than base64.
func (a *App) GetSpectrum() []int {
	if a.controller == nil {
		return nil
	}
	return widen(a.controller.Spectrum())
}

// ConsumeTranscript returns and clears the flushed text for one sender.
func (a *App) ConsumeTranscript(sender string) string {
	if a.controller == nil {
		return ""
	}
	return a.controller.ConsumeTranscript(domain.Sender(sender))
}

// ClearTranscript drops all transcript state.
func (a *App) ClearTranscript() {
	if a.controller != nil {
		a.controller.ClearTranscript()
	}
}

// SendText sends a typed message on the live session.
func (a *App) SendText(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SendText(text)
}

// OrganizeNotes turns the transcript into a note and copies it.
func (a *App) OrganizeNotes() (domain.NoteResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.NoteResult{}, err
	}
	return a.notes.Take(a.ctx, usecase.TranscriptText(a.controller.Segments()), a.cfg.Gemini.APIKey)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"provider":    "Gemini Live",
		"model":       a.cfg.Gemini.LiveModel,
		"voice":       a.cfg.Gemini.Voice,
		"notesModel":  a.cfg.Gemini.NotesModel,
		"systemAudio": a.cfg.Audio.SystemAudio,
		"rulesFile":   a.cfg.Rules.Path,
		"hasKey":      fmt.Sprintf("%t", a.cfg.Gemini.APIKey != ""),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(status domain.Status) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]any{
		"state":        string(status.State),
		"reconnecting": status.Reconnecting,
		"label":        stateLabel(status),
		"message":      status.Message,
	})
}

// TranscriptUpdated emits the full segment list.
func (a *App) TranscriptUpdated(segments []domain.Segment) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, segments)
}

// TranscriptFlushed emits the debounced per-sender buffer.
func (a *App) TranscriptFlushed(buffer map[domain.Sender]string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventFlush, buffer)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func stateLabel(status domain.Status) string {
	switch status.State {
	case domain.SessionStateDisconnected:
		return "Disconnected"
	case domain.SessionStateConnecting:
		if status.Reconnecting {
			return "Reconnecting..."
		}
		return "Connecting..."
	case domain.SessionStateConnected:
		return "Live"
	case domain.SessionStateError:
		return "Error"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeMissingCredential:
		return "API key missing"
	case domain.ErrorCodePermissionDenied:
		return "Microphone access denied"
	case domain.ErrorCodeSetup:
		return "Session setup failed"
	case domain.ErrorCodeNotes:
		return "Note organization failed"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func widen(data []uint8) []int {
	if data == nil {
		return nil
	}
	out := make([]int, len(data))
	for i, v := range data {
		out[i] = int(v)
	}
	return out
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
