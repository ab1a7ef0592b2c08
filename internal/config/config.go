package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"earshot/internal/domain"
)

// Config stores runtime configuration for both binaries.
type Config struct {
	Gemini  GeminiConfig  `yaml:"gemini"`
	Audio   AudioConfig   `yaml:"audio"`
	Session SessionConfig `yaml:"session"`
	Rules   RulesConfig   `yaml:"rules"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type GeminiConfig struct {
	APIKey            string `yaml:"api_key"`
	LiveURL           string `yaml:"live_url"`
	LiveModel         string `yaml:"live_model"`
	Voice             string `yaml:"voice"`
	SystemInstruction string `yaml:"system_instruction"`
	NotesModel        string `yaml:"notes_model"`
	NotesBaseURL      string `yaml:"notes_base_url"`
}

type AudioConfig struct {
	SampleRate  int    `yaml:"sample_rate"`
	BlockSize   int    `yaml:"block_size"`
	SystemAudio string `yaml:"system_audio"`
	// FFmpeg settings only apply when SystemAudio is "ffmpeg".
	FFmpegCommand     string `yaml:"ffmpeg_command"`
	FFmpegInputFormat string `yaml:"ffmpeg_input_format"`
	SystemAudioDevice string `yaml:"system_audio_device"`
}

// SessionConfig holds the connect-time defaults.
type SessionConfig struct {
	Latency        string        `yaml:"latency"`
	NoiseGate      float64       `yaml:"noise_gate"`
	Talkback       bool          `yaml:"talkback"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type RulesConfig struct {
	Path           string `yaml:"path"`
	IterationLimit int    `yaml:"iteration_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Domain converts the defaults into a normalized session config.
func (s SessionConfig) Domain() domain.SessionConfig {
	return domain.SessionConfig{
		LatencyPreference:  domain.LatencyPreference(s.Latency),
		NoiseGateThreshold: s.NoiseGate,
		Talkback:           s.Talkback,
	}.Normalize()
}

func defaults(home string) Config {
	earshotRules := filepath.Join(home, ".config", "earshot", "cleanup.rules")
	earshotYAML := filepath.Join(home, ".config", "earshot", "cleanup.yaml")

	return Config{
		Gemini: GeminiConfig{
			LiveURL:    "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent",
			LiveModel:  "gemini-2.5-flash-native-audio-preview-09-2025",
			Voice:      "Zephyr",
			NotesModel: "gemini-2.5-flash",
		},
		Audio: AudioConfig{
			SampleRate:        48000,
			BlockSize:         4096,
			SystemAudio:       "none",
			FFmpegCommand:     "ffmpeg",
			FFmpegInputFormat: "pulse",
			SystemAudioDevice: "default.monitor",
		},
		Session: SessionConfig{
			Latency:        string(domain.LatencyInteractive),
			NoiseGate:      0.01,
			ReconnectDelay: 1500 * time.Millisecond,
		},
		Rules: RulesConfig{
			Path:           firstExisting(earshotRules, earshotYAML),
			IterationLimit: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load resolves configuration from defaults, the optional YAML file named
// by EARSHOT_CONFIG_FILE, then environment variables, in that order.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := defaults(home)
	if path := strings.TrimSpace(os.Getenv("EARSHOT_CONFIG_FILE")); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.Gemini = GeminiConfig{
		APIKey:            envOrDefault("GEMINI_API_KEY", cfg.Gemini.APIKey),
		LiveURL:           envOrDefault("EARSHOT_GEMINI_WS_URL", cfg.Gemini.LiveURL),
		LiveModel:         envOrDefault("EARSHOT_GEMINI_LIVE_MODEL", cfg.Gemini.LiveModel),
		Voice:             envOrDefault("EARSHOT_GEMINI_VOICE", cfg.Gemini.Voice),
		SystemInstruction: envOrDefault("EARSHOT_SYSTEM_INSTRUCTION", cfg.Gemini.SystemInstruction),
		NotesModel:        envOrDefault("EARSHOT_GEMINI_NOTES_MODEL", cfg.Gemini.NotesModel),
		NotesBaseURL:      envOrDefault("EARSHOT_GEMINI_NOTES_BASE_URL", cfg.Gemini.NotesBaseURL),
	}
	cfg.Audio = AudioConfig{
		SampleRate:        envOrDefaultInt("EARSHOT_SAMPLE_RATE", cfg.Audio.SampleRate),
		BlockSize:         envOrDefaultInt("EARSHOT_BLOCK_SIZE", cfg.Audio.BlockSize),
		SystemAudio:       strings.ToLower(envOrDefault("EARSHOT_SYSTEM_AUDIO", cfg.Audio.SystemAudio)),
		FFmpegCommand:     envOrDefault("EARSHOT_FFMPEG_COMMAND", cfg.Audio.FFmpegCommand),
		FFmpegInputFormat: envOrDefault("EARSHOT_FFMPEG_INPUT_FORMAT", cfg.Audio.FFmpegInputFormat),
		SystemAudioDevice: envOrDefault("EARSHOT_SYSTEM_AUDIO_DEVICE", cfg.Audio.SystemAudioDevice),
	}
	cfg.Session = SessionConfig{
		Latency:        strings.ToLower(envOrDefault("EARSHOT_LATENCY", cfg.Session.Latency)),
		NoiseGate:      envOrDefaultFloat("EARSHOT_NOISE_GATE", cfg.Session.NoiseGate),
		Talkback:       envOrDefaultBool("EARSHOT_TALKBACK", cfg.Session.Talkback),
		ReconnectDelay: envOrDefaultMillis("EARSHOT_RECONNECT_DELAY_MS", cfg.Session.ReconnectDelay),
	}
	cfg.Rules = RulesConfig{
		Path:           envOrDefault("EARSHOT_RULES_FILE", cfg.Rules.Path),
		IterationLimit: envOrDefaultInt("EARSHOT_RULE_ITERATION_LIMIT", cfg.Rules.IterationLimit),
	}
	cfg.Log = LogConfig{
		Level:  envOrDefault("EARSHOT_LOG_LEVEL", cfg.Log.Level),
		Format: envOrDefault("EARSHOT_LOG_FORMAT", cfg.Log.Format),
		Output: envOrDefault("EARSHOT_LOG_OUTPUT", cfg.Log.Output),
	}
	cfg.Metrics.Addr = envOrDefault("EARSHOT_METRICS_ADDR", cfg.Metrics.Addr)

	return sanitize(cfg), nil
}

func overlayFile(cfg *Config, path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return nil
}

func sanitize(cfg Config) Config {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.BlockSize < 256 {
		cfg.Audio.BlockSize = 4096
	}
	switch cfg.Audio.SystemAudio {
	case "none", "loopback", "ffmpeg":
	default:
		cfg.Audio.SystemAudio = "none"
	}
	if cfg.Session.ReconnectDelay <= 0 {
		cfg.Session.ReconnectDelay = 1500 * time.Millisecond
	}
	normalized := cfg.Session.Domain()
	cfg.Session.Latency = string(normalized.LatencyPreference)
	cfg.Session.NoiseGate = normalized.NoiseGateThreshold
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	return cfg
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
