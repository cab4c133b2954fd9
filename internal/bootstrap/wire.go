package bootstrap

import (
	"errors"

	"voicechat/internal/audio"
	"voicechat/internal/config"
	"voicechat/internal/logging"
	"voicechat/internal/ports"
	"voicechat/internal/providers/deepgram"
	"voicechat/internal/rules"
	"voicechat/internal/speech"
	"voicechat/internal/usecase"
)

// Options carries the runtime-specific pieces of the graph.
type Options struct {
	Events ports.EventSink
	// Emitter publishes webview events. The bridge speech engine needs it.
	Emitter speech.Emitter
}

// Services is the assembled runtime graph.
type Services struct {
	Controller  *usecase.VoiceController
	Speech      *speech.Controller
	Bridge      *speech.BridgeEngine
	Transcriber *deepgram.Client
	Config      config.Config
}

// Build loads configuration and wires all backend dependencies.
func Build(opts Options) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return Assemble(cfg, opts)
}

// Assemble wires the graph for an already resolved configuration.
func Assemble(cfg config.Config, opts Options) (Services, error) {
	if opts.Events == nil {
		return Services{}, errors.New("bootstrap: event sink is required")
	}
	logging.Init(cfg.LogLevel)

	subs, err := rules.LoadSubstitutions(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	deepgramCfg := deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		Language:    cfg.Deepgram.Language,
		SmartFormat: cfg.Deepgram.SmartFormat,
		Timeout:     cfg.Deepgram.Timeout,
	}
	transcriber := deepgram.NewClient(deepgramCfg)

	var captions ports.CaptionProvider
	if cfg.Deepgram.LiveCaptions {
		captions = deepgram.NewCaptions(deepgramCfg)
	}

	engine, bridge := SpeechEngine(cfg.Speech, opts.Emitter)
	speaker := speech.NewController(engine, rules.NewPreparer(subs, cfg.Speech.MaxChars))

	controller := usecase.NewVoiceController(
		Microphone(cfg.Audio, cfg.Session.ChunkSize),
		transcriber,
		captions,
		speaker,
		opts.Events,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:       cfg.Audio.SampleRate,
				Channels:         cfg.Audio.Channels,
				InputFormat:      cfg.Audio.InputFormat,
				InputDevice:      cfg.Audio.InputDevice,
				EchoCancellation: cfg.Audio.EchoCancellation,
				NoiseSuppression: cfg.Audio.NoiseSuppression,
				AutoGainControl:  cfg.Audio.AutoGainControl,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			ChunkSize:      cfg.Session.ChunkSize,
			MaxDuration:    cfg.Session.MaxDuration,
			Language:       cfg.Deepgram.Language,
			Voice:          cfg.Speech.Voice,
			AutoSpeak:      cfg.Speech.AutoSpeak,
			ErrorDisplay:   cfg.Session.ErrorDisplay,
			StreamingGrace: cfg.Session.StreamingGrace,
		},
	)
	speaker.SetListener(controller.SpeechChanged)

	return Services{
		Controller:  controller,
		Speech:      speaker,
		Bridge:      bridge,
		Transcriber: transcriber,
		Config:      cfg,
	}, nil
}

// Microphone selects the capture back end.
func Microphone(cfg config.AudioConfig, chunkSize int) ports.Microphone {
	if cfg.Backend == config.AudioBackendPortAudio {
		return audio.NewPortAudioMicrophone(chunkSize / 2)
	}
	return audio.NewFFMPEGMicrophone(cfg.RecorderCommand)
}

// SpeechEngine selects the synthesis back end. The bridge engine is returned
// separately so the UI can feed it voices and playback events.
func SpeechEngine(cfg config.SpeechConfig, emit speech.Emitter) (ports.SpeechEngine, *speech.BridgeEngine) {
	switch cfg.Engine {
	case config.SpeechEngineNone:
		return nil, nil
	case config.SpeechEngineCommand:
		return speech.NewCommandEngine(cfg.Command, nil), nil
	default:
		bridge := speech.NewBridgeEngine(emit)
		return bridge, bridge
	}
}
