package bootstrap

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"earshot/internal/audio"
	"earshot/internal/config"
	"earshot/internal/logging"
	"earshot/internal/metrics"
	"earshot/internal/pcm"
	"earshot/internal/ports"
	"earshot/internal/providers/gemini"
	"earshot/internal/rules"
	"earshot/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Notes      *usecase.NoteTaker
	Speaker    *audio.Speaker
	Registry   *prometheus.Registry
	Logger     *slog.Logger
	Config     config.Config
}

// Build loads configuration and wires all backend dependencies.
func Build(eventSink ports.EventSink, clipboard ports.Clipboard) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWithConfig(cfg, eventSink, clipboard)
}

// BuildWithConfig wires the runtime graph from an already loaded config.
func BuildWithConfig(cfg config.Config, eventSink ports.EventSink, clipboard ports.Clipboard) (Services, error) {
	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})

	rulesEngine, err := rules.Load(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	instruments := metrics.New(registry)

	speaker := audio.NewSpeaker(pcm.ReplySampleRate)
	engine := audio.NewMalgoEngine(audio.EngineConfig{
		SampleRate:  cfg.Audio.SampleRate,
		SystemAudio: cfg.Audio.SystemAudio,
		FFmpeg: audio.FFmpegConfig{
			Command:     cfg.Audio.FFmpegCommand,
			InputFormat: cfg.Audio.FFmpegInputFormat,
			Device:      cfg.Audio.SystemAudioDevice,
			SampleRate:  cfg.Audio.SampleRate,
		},
		Logger: logger.With(slog.String("component", "audio")),
	}, speaker)

	live := gemini.NewLiveService(gemini.LiveConfig{
		URL:    cfg.Gemini.LiveURL,
		Logger: logger.With(slog.String("component", "live")),
	})
	organizer := gemini.NewNoteOrganizer(gemini.NotesConfig{
		Model:   cfg.Gemini.NotesModel,
		BaseURL: cfg.Gemini.NotesBaseURL,
		Logger:  logger.With(slog.String("component", "notes")),
	})

	controller := usecase.NewSessionController(
		engine,
		live,
		eventSink,
		usecase.Config{
			Model: ports.ModelConfig{
				Model:             cfg.Gemini.LiveModel,
				Voice:             cfg.Gemini.Voice,
				SystemInstruction: cfg.Gemini.SystemInstruction,
				ResponseAudio:     true,
			},
			SystemAudio:    cfg.Audio.SystemAudio != audio.SystemAudioNone,
			BlockSize:      cfg.Audio.BlockSize,
			ReconnectDelay: cfg.Session.ReconnectDelay,
			Logger:         logger.With(slog.String("component", "session")),
			Metrics:        instruments,
		},
	)
	controller.UpdateConfig(cfg.Session.Domain())

	return Services{
		Controller: controller,
		Notes:      usecase.NewNoteTaker(rulesEngine, organizer, clipboard, eventSink),
		Speaker:    speaker,
		Registry:   registry,
		Logger:     logger,
		Config:     cfg,
	}, nil
}
