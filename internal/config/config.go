package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"voicechat/internal/domain"
)

// Config stores runtime configuration for the voice pipeline.
type Config struct {
	Deepgram DeepgramConfig `yaml:"deepgram"`
	Audio    AudioConfig    `yaml:"audio"`
	Speech   SpeechConfig   `yaml:"speech"`
	Rules    RulesConfig    `yaml:"rules"`
	Session  SessionConfig  `yaml:"session"`
	LogLevel string         `yaml:"log_level"`
}

type DeepgramConfig struct {
	APIKey       string        `yaml:"api_key"`
	APIBaseURL   string        `yaml:"api_base"`
	Model        string        `yaml:"model"`
	Language     string        `yaml:"language"`
	SmartFormat  bool          `yaml:"smart_format"`
	Timeout      time.Duration `yaml:"timeout"`
	LiveCaptions bool          `yaml:"live_captions"`
}

type AudioConfig struct {
	Backend          string `yaml:"backend"`
	RecorderCommand  string `yaml:"ffmpeg_command"`
	InputFormat      string `yaml:"input_format"`
	InputDevice      string `yaml:"input_device"`
	SampleRate       int    `yaml:"sample_rate"`
	Channels         int    `yaml:"channels"`
	EchoCancellation bool   `yaml:"echo_cancellation"`
	NoiseSuppression bool   `yaml:"noise_suppression"`
	AutoGainControl  bool   `yaml:"auto_gain_control"`
}

type SpeechConfig struct {
	Engine    string              `yaml:"engine"`
	Command   string              `yaml:"command"`
	AutoSpeak bool                `yaml:"auto_speak"`
	MaxChars  int                 `yaml:"max_chars"`
	Voice     domain.VoiceOptions `yaml:"voice"`
}

type RulesConfig struct {
	Path           string `yaml:"path"`
	IterationLimit int    `yaml:"iteration_limit"`
}

type SessionConfig struct {
	ChunkSize      int           `yaml:"chunk_size"`
	MaxDuration    int           `yaml:"max_recording_seconds"`
	ErrorDisplay   time.Duration `yaml:"error_display"`
	StreamingGrace time.Duration `yaml:"streaming_grace"`
}

const (
	AudioBackendFFMPEG    = "ffmpeg"
	AudioBackendPortAudio = "portaudio"

	SpeechEngineBridge  = "bridge"
	SpeechEngineCommand = "command"
	SpeechEngineNone    = "none"
)

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "whisper-large",
			Language:    "ar",
			SmartFormat: true,
			Timeout:     30 * time.Second,
		},
		Audio: AudioConfig{
			Backend:          AudioBackendFFMPEG,
			RecorderCommand:  "ffmpeg",
			InputFormat:      "pulse",
			InputDevice:      "default",
			SampleRate:       16000,
			Channels:         1,
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
		},
		Speech: SpeechConfig{
			Engine:    SpeechEngineBridge,
			AutoSpeak: true,
			Voice:     domain.DefaultVoiceOptions(),
		},
		Rules: RulesConfig{
			IterationLimit: 30,
		},
		Session: SessionConfig{
			ChunkSize:      4096,
			MaxDuration:    10,
			ErrorDisplay:   3 * time.Second,
			StreamingGrace: time.Second,
		},
		LogLevel: "info",
	}
}

// Load resolves configuration from defaults, an optional YAML file named by
// VOICECHAT_CONFIG, and environment variables (including a local .env file).
// Environment variables win over file values.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("VOICECHAT_CONFIG")); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if cfg.Rules.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Rules.Path = firstExisting(filepath.Join(home, ".config", "voicechat", "substitutions.rules"))
		}
	}

	normalize(&cfg)
	return cfg, nil
}

// Redacted returns a copy that is safe to print.
func (c Config) Redacted() Config {
	if c.Deepgram.APIKey != "" {
		c.Deepgram.APIKey = "********"
	}
	return c
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

func applyEnv(cfg *Config) {
	overrideString(&cfg.Deepgram.APIKey, "DEEPGRAM_API_KEY")
	overrideString(&cfg.Deepgram.APIBaseURL, "DEEPGRAM_API_BASE")
	overrideString(&cfg.Deepgram.Model, "DEEPGRAM_MODEL")
	overrideString(&cfg.Deepgram.Language, "DEEPGRAM_LANGUAGE")
	overrideBool(&cfg.Deepgram.SmartFormat, "DEEPGRAM_SMART_FORMAT")
	overrideMillis(&cfg.Deepgram.Timeout, "DEEPGRAM_TIMEOUT_MS")
	overrideBool(&cfg.Deepgram.LiveCaptions, "VOICECHAT_LIVE_CAPTIONS")

	overrideString(&cfg.Audio.Backend, "VOICECHAT_AUDIO_BACKEND")
	overrideString(&cfg.Audio.RecorderCommand, "VOICECHAT_FFMPEG_COMMAND")
	overrideString(&cfg.Audio.InputFormat, "VOICECHAT_AUDIO_INPUT_FORMAT")
	overrideString(&cfg.Audio.InputDevice, "VOICECHAT_AUDIO_INPUT_DEVICE", "PULSE_SOURCE")
	overrideInt(&cfg.Audio.SampleRate, "VOICECHAT_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "VOICECHAT_CHANNELS")
	overrideBool(&cfg.Audio.EchoCancellation, "VOICECHAT_ECHO_CANCELLATION")
	overrideBool(&cfg.Audio.NoiseSuppression, "VOICECHAT_NOISE_SUPPRESSION")
	overrideBool(&cfg.Audio.AutoGainControl, "VOICECHAT_AUTO_GAIN_CONTROL")

	overrideString(&cfg.Speech.Engine, "VOICECHAT_SPEECH_ENGINE")
	overrideString(&cfg.Speech.Command, "VOICECHAT_SPEECH_COMMAND")
	overrideBool(&cfg.Speech.AutoSpeak, "VOICECHAT_AUTO_SPEAK")
	overrideInt(&cfg.Speech.MaxChars, "VOICECHAT_SPEECH_MAX_CHARS")
	overrideString(&cfg.Speech.Voice.Language, "VOICECHAT_SPEECH_LANGUAGE")
	overrideFloat(&cfg.Speech.Voice.Rate, "VOICECHAT_SPEECH_RATE")
	overrideFloat(&cfg.Speech.Voice.Pitch, "VOICECHAT_SPEECH_PITCH")
	overrideFloat(&cfg.Speech.Voice.Volume, "VOICECHAT_SPEECH_VOLUME")
	overrideString(&cfg.Speech.Voice.VoiceHint, "VOICECHAT_SPEECH_VOICE_HINT")

	overrideString(&cfg.Rules.Path, "VOICECHAT_RULES_FILE")
	overrideInt(&cfg.Rules.IterationLimit, "VOICECHAT_RULE_ITERATION_LIMIT")

	overrideInt(&cfg.Session.ChunkSize, "VOICECHAT_AUDIO_CHUNK_SIZE")
	overrideInt(&cfg.Session.MaxDuration, "VOICECHAT_MAX_RECORDING_SECONDS")
	overrideMillis(&cfg.Session.ErrorDisplay, "VOICECHAT_ERROR_DISPLAY_MS")
	overrideMillis(&cfg.Session.StreamingGrace, "VOICECHAT_STREAMING_GRACE_MS")

	overrideString(&cfg.LogLevel, "VOICECHAT_LOG_LEVEL")
}

func normalize(cfg *Config) {
	defaults := Defaults()

	cfg.Audio.Backend = strings.ToLower(cfg.Audio.Backend)
	if cfg.Audio.Backend != AudioBackendPortAudio {
		cfg.Audio.Backend = AudioBackendFFMPEG
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = defaults.Audio.SampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = defaults.Audio.Channels
	}

	switch cfg.Speech.Engine = strings.ToLower(cfg.Speech.Engine); cfg.Speech.Engine {
	case SpeechEngineBridge, SpeechEngineCommand, SpeechEngineNone:
	default:
		cfg.Speech.Engine = defaults.Speech.Engine
	}
	if cfg.Speech.Voice.Language == "" {
		cfg.Speech.Voice.Language = defaults.Speech.Voice.Language
	}
	if cfg.Speech.Voice.Rate <= 0 {
		cfg.Speech.Voice.Rate = defaults.Speech.Voice.Rate
	}
	if cfg.Speech.Voice.Pitch <= 0 {
		cfg.Speech.Voice.Pitch = defaults.Speech.Voice.Pitch
	}
	if cfg.Speech.Voice.Volume <= 0 || cfg.Speech.Voice.Volume > 1 {
		cfg.Speech.Voice.Volume = defaults.Speech.Voice.Volume
	}
	if cfg.Speech.MaxChars < 0 {
		cfg.Speech.MaxChars = 0
	}

	if cfg.Deepgram.Timeout <= 0 {
		cfg.Deepgram.Timeout = defaults.Deepgram.Timeout
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = defaults.Rules.IterationLimit
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = defaults.Session.ChunkSize
	}
	if cfg.Session.MaxDuration < 0 {
		cfg.Session.MaxDuration = defaults.Session.MaxDuration
	}
	if cfg.Session.ErrorDisplay < 0 {
		cfg.Session.ErrorDisplay = defaults.Session.ErrorDisplay
	}
	if cfg.Session.StreamingGrace < 0 {
		cfg.Session.StreamingGrace = defaults.Session.StreamingGrace
	}
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
	return ""
}

func lookup(keys ...string) (string, bool) {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value, true
		}
	}
	return "", false
}

func overrideString(dst *string, keys ...string) {
	if value, ok := lookup(keys...); ok {
		*dst = value
	}
}

func overrideInt(dst *int, key string) {
	value, ok := lookup(key)
	if !ok {
		return
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		*dst = parsed
	}
}

func overrideFloat(dst *float64, key string) {
	value, ok := lookup(key)
	if !ok {
		return
	}
	if parsed, err := strconv.ParseFloat(value, 64); err == nil {
		*dst = parsed
	}
}

func overrideMillis(dst *time.Duration, key string) {
	value, ok := lookup(key)
	if !ok {
		return
	}
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		*dst = time.Duration(parsed) * time.Millisecond
	}
}

func overrideBool(dst *bool, key string) {
	value, ok := lookup(key)
	if !ok {
		return
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}
