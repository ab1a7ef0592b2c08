package gemini

import (
	"strings"

	"earshot/internal/domain"
	"earshot/internal/ports"
)

type setupMessage struct {
	Setup setup `json:"setup"`
}

type setup struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// buildSetup always requests transcription of both directions; the
// transcript is the product even when reply audio is muted locally.
func buildSetup(cfg ports.ModelConfig) setupMessage {
	model := cfg.Model
	if model == "" {
		model = DefaultLiveModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	msg := setupMessage{Setup: setup{
		Model:                    model,
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}}
	if cfg.ResponseAudio {
		voice := cfg.Voice
		if voice == "" {
			voice = DefaultVoice
		}
		msg.Setup.GenerationConfig = generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice},
			}},
		}
	} else {
		msg.Setup.GenerationConfig = generationConfig{ResponseModalities: []string{"TEXT"}}
	}
	if instruction := strings.TrimSpace(cfg.SystemInstruction); instruction != "" {
		msg.Setup.SystemInstruction = &content{Parts: []part{{Text: instruction}}}
	}
	return msg
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	Audio *blob  `json:"audio,omitempty"`
	Text  string `json:"text,omitempty"`
}

func newRealtimeInput(msg ports.OutboundMessage) realtimeInputMessage {
	if msg.Media != nil {
		return realtimeInputMessage{RealtimeInput: realtimeInput{
			Audio: &blob{MIMEType: msg.Media.MIMEType, Data: msg.Media.Data},
		}}
	}
	return realtimeInputMessage{RealtimeInput: realtimeInput{Text: msg.Text}}
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete"`
	ServerContent *serverContent `json:"serverContent"`
	GoAway        *goAway        `json:"goAway"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn"`
	TurnComplete        bool           `json:"turnComplete"`
	Interrupted         bool           `json:"interrupted"`
	InputTranscription  *transcription `json:"inputTranscription"`
	OutputTranscription *transcription `json:"outputTranscription"`
}

type transcription struct {
	Text string `json:"text"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft"`
}

// toDomain flattens a server message. ok is false for messages carrying
// nothing the session acts on.
func (m serverMessage) toDomain() (domain.ServerMessage, bool) {
	var out domain.ServerMessage
	if m.GoAway != nil {
		out.GoAway = true
	}
	if c := m.ServerContent; c != nil {
		out.TurnComplete = c.TurnComplete
		out.Interrupted = c.Interrupted
		if c.InputTranscription != nil {
			out.InputTranscription = c.InputTranscription.Text
		}
		if c.OutputTranscription != nil {
			out.OutputTranscription = c.OutputTranscription.Text
		}
		if c.ModelTurn != nil {
			for _, p := range c.ModelTurn.Parts {
				if p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio/pcm") && p.InlineData.Data != "" {
					out.Audio = append(out.Audio, p.InlineData.Data)
				}
			}
		}
	}

	ok := out.GoAway || out.TurnComplete || out.Interrupted ||
		out.InputTranscription != "" || out.OutputTranscription != "" || len(out.Audio) > 0
	return out, ok
}
